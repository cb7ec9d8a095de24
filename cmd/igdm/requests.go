package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var requestsCommand = &cli.Command{
	Name:   "requests",
	Usage:  "Manage pending message requests",
	Before: prepareClient,
	Subcommands: []*cli.Command{
		{
			Name:   "list",
			Usage:  "List pending conversations",
			Action: listRequests,
		},
		{
			Name:      "approve",
			Usage:     "Approve a pending conversation",
			ArgsUsage: "<thread-id>",
			Action:    approveRequest,
		},
		{
			Name:      "decline",
			Usage:     "Decline a pending conversation",
			ArgsUsage: "<thread-id>",
			Action:    declineRequest,
		},
	},
}

func listRequests(ctx *cli.Context) error {
	client := getClient(ctx)
	if err := client.Login(ctx.Context); err != nil {
		return err
	}
	defer client.Logout()
	pending := client.PendingChats()
	if len(pending) == 0 {
		fmt.Println("No pending message requests")
		return nil
	}
	for _, chat := range pending {
		title := chat.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %s\n", chat.ID, title)
	}
	return nil
}

func approveRequest(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("usage: igdm requests approve <thread-id>")
	}
	client := getClient(ctx)
	if err := client.Login(ctx.Context); err != nil {
		return err
	}
	defer client.Logout()
	chat, err := client.ApproveMessageRequest(ctx.Context, ctx.Args().First())
	if err != nil {
		return err
	}
	if chat == nil {
		fmt.Println("Thread was not pending; nothing to do")
		return nil
	}
	fmt.Printf("Approved %s\n", chat.ID)
	return nil
}

func declineRequest(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("usage: igdm requests decline <thread-id>")
	}
	client := getClient(ctx)
	if err := client.Login(ctx.Context); err != nil {
		return err
	}
	defer client.Logout()
	chat, err := client.DeclineMessageRequest(ctx.Context, ctx.Args().First())
	if err != nil {
		return err
	}
	if chat == nil {
		fmt.Println("Thread was not pending; nothing to do")
		return nil
	}
	fmt.Printf("Declined %s\n", chat.ID)
	return nil
}
