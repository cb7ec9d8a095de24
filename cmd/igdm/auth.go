package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var loginCommand = &cli.Command{
	Name:   "login",
	Usage:  "Establish a session (cookie set on first run) and persist it",
	Before: prepareClient,
	Action: login,
}

func login(ctx *cli.Context) error {
	client := getClient(ctx)
	cfg := getConfig(ctx)
	if err := client.Login(ctx.Context); err != nil {
		return err
	}
	defer client.Logout()
	fmt.Printf("Logged in as @%s\n", client.Self().Username)
	fmt.Printf("Session saved to %s\n", cfg.Client.SessionPath)
	return nil
}

var whoamiCommand = &cli.Command{
	Name:   "whoami",
	Usage:  "Validate stored credentials and print the logged-in account",
	Before: prepareClient,
	Action: whoami,
}

func whoami(ctx *cli.Context) error {
	client := getClient(ctx)
	if err := client.Login(ctx.Context); err != nil {
		return err
	}
	defer client.Logout()
	self := client.Self()
	fmt.Printf("Logged in as @%s (%s)\n", self.Username, self.ID)
	if self.FullName != "" {
		fmt.Printf("Name: %s\n", self.FullName)
	}
	return nil
}
