package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-graph/core"
)

var chatFlags struct {
	sessionID string
}

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat in the terminal",
		Long:  "Reads one message per line. /clear forgets the session history, /exit quits.",
		RunE:  runChat,
	}
	cmd.Flags().StringVarP(&chatFlags.sessionID, "session", "s", "cli", "Session id")
	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	in := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !in.Scan() {
			fmt.Fprintln(out)
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/clear":
			if err := a.orchestrator.Clear(ctx, chatFlags.sessionID); err != nil {
				return err
			}
			fmt.Fprintln(out, "history cleared")
			continue
		}

		reply, err := a.orchestrator.Send(ctx, core.Input{SessionID: chatFlags.sessionID, Message: line})
		if err != nil {
			return err
		}
		fmt.Fprintln(out, reply.Content)
	}
}
