package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/igdmgo/igdm/pkg/igdm"
)

var listenCommand = &cli.Command{
	Name:   "listen",
	Usage:  "Connect and print incoming messages and notifications",
	Before: prepareClient,
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:  "requests-interval",
			Usage: "How often to poll the pending inbox (0 disables)",
			Value: time.Minute,
		},
	},
	Action: listen,
}

func listen(ctx *cli.Context) error {
	client := getClient(ctx)
	log := getLogger(ctx)

	client.AddEventHandler(func(evt any) {
		switch e := evt.(type) {
		case *igdm.ReadyEvent:
			fmt.Println("Connected. Waiting for messages...")
		case *igdm.MessageCreateEvent:
			ts := time.UnixMilli(e.Message.TimestampMS).Format(time.Kitchen)
			fmt.Printf("[%s] %s in %s: %s\n", ts, e.Message.SenderID, e.Message.ChatID, e.Message.Text)
		case *igdm.NewFollowerEvent:
			fmt.Printf("New follower: @%s\n", e.User.Username)
		case *igdm.FollowRequestEvent:
			fmt.Printf("Follow request from @%s\n", e.User.Username)
		case *igdm.MessageRequestsPolledEvent:
			if len(e.Threads) > 0 {
				fmt.Printf("%d pending message request(s), run 'igdm requests list'\n", len(e.Threads))
			}
		case *igdm.StreamErrorEvent:
			log.Warn().Err(e.Err).Msg("Stream error")
		case *igdm.DisconnectedEvent:
			fmt.Println("Stream disconnected")
		}
	})

	if err := client.Login(ctx.Context); err != nil {
		return err
	}
	if interval := ctx.Duration("requests-interval"); interval > 0 {
		client.StartMessageRequestsMonitor(interval)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Println("Shutting down...")
	return client.Logout()
}
