// nimgraph runs the conversational assistant.
//
// Usage:
//
//	nimgraph chat [--session=<id>]
//	nimgraph serve
//	nimgraph catalog [--addr=:8090]
//	nimgraph memory reset | search <query>
//	nimgraph graph validate <file>
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nimgraph",
		Short: "Conversational assistant with tools, web search and long-term memory",
		Long: "nimgraph answers from live tool data and a personal memory, re-searching\n" +
			"the web when an answer falls short and remembering personal facts.",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
	}
	root.PersistentFlags().StringVarP(&rootFlags.configPath, "config", "c", "", "YAML config file")

	root.AddCommand(newChatCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newCatalogCmd())
	root.AddCommand(newMemoryCmd())
	root.AddCommand(newGraphCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
