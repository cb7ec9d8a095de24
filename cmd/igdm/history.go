package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

var historyCommand = &cli.Command{
	Name:      "history",
	Usage:     "Show archived messages for a thread",
	ArgsUsage: "<thread-id>",
	Before:    prepareClient,
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Maximum number of messages to show",
			Value: 50,
		},
	},
	Action: history,
}

func history(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("usage: igdm history <thread-id>")
	}
	cfg := getConfig(ctx)
	if cfg.Client.ArchivePath == "" {
		return fmt.Errorf("no archive_path configured, history requires the local archive")
	}
	client := getClient(ctx)
	if err := client.Login(ctx.Context); err != nil {
		return err
	}
	defer client.Logout()

	msgs, err := client.RecentMessages(ctx.Context, ctx.Args().First(), ctx.Int("limit"))
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Println("No archived messages for this thread")
		return nil
	}
	// Archive returns newest first; print oldest first for readability.
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		ts := time.UnixMilli(msg.TimestampMS).Format("2006-01-02 15:04")
		fmt.Printf("[%s] %s: %s\n", ts, msg.SenderID, msg.Text)
	}
	return nil
}
