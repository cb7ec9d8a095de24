package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/igdmgo/igdm/pkg/igdm"
)

type contextKey int

const (
	contextKeyConfig contextKey = iota
	contextKeyClient
	contextKeyLogger
)

func getConfig(ctx *cli.Context) *Config {
	return ctx.Context.Value(contextKeyConfig).(*Config)
}

func getClient(ctx *cli.Context) *igdm.Client {
	return ctx.Context.Value(contextKeyClient).(*igdm.Client)
}

func getLogger(ctx *cli.Context) zerolog.Logger {
	return ctx.Context.Value(contextKeyLogger).(zerolog.Logger)
}

func getConfigPath() string {
	baseDir, _ := os.UserConfigDir()
	return filepath.Join(baseDir, "igdm", "config.yaml")
}

func main() {
	// Optional .env for overrides like IGDM_SESSION_PATH; absence is fine.
	_ = godotenv.Load()

	app := &cli.App{
		Name:    "igdm",
		Usage:   "Instagram direct messages from the terminal",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to config file",
				Value: getConfigPath(),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (trace, debug, info, warn, error)",
				Value: "info",
			},
		},
		Commands: []*cli.Command{
			loginCommand,
			whoamiCommand,
			listenCommand,
			requestsCommand,
			historyCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func makeLogger(ctx *cli.Context) zerolog.Logger {
	level, err := zerolog.ParseLevel(ctx.String("log-level"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
