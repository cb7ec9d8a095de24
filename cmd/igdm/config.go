package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/igdmgo/igdm/pkg/igapi"
	"github.com/igdmgo/igdm/pkg/igdm"
)

// Config is the CLI's on-disk configuration: client tunables plus the HTTP
// transport section.
type Config struct {
	Client igdm.Config  `yaml:"client"`
	API    igapi.Config `yaml:"api"`
}

func loadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err = yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	// Env overrides trump the file. Empty paths would make login fail with
	// a clear message rather than guessing locations.
	if v := os.Getenv("IGDM_SESSION_PATH"); v != "" {
		cfg.Client.SessionPath = v
	}
	if v := os.Getenv("IGDM_COOKIES_PATH"); v != "" {
		cfg.Client.CookiesPath = v
	}
	if v := os.Getenv("IGDM_ARCHIVE_PATH"); v != "" {
		cfg.Client.ArchivePath = v
	}
	cfg.Client.ApplyDefaults()
	return &cfg, nil
}

// prepareClient loads config, builds the transport and client, and stashes
// everything on the cli context for the command body.
func prepareClient(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := makeLogger(ctx)
	api, err := igapi.NewClient(cfg.API, log)
	if err != nil {
		return err
	}
	client := igdm.NewClient(api, api, api, &cfg.Client, log)

	newCtx := context.WithValue(ctx.Context, contextKeyConfig, cfg)
	newCtx = context.WithValue(newCtx, contextKeyClient, client)
	newCtx = context.WithValue(newCtx, contextKeyLogger, log)
	ctx.Context = newCtx
	return nil
}
