package main

import (
	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-graph/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and websocket API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(a.orchestrator,
		server.WithLogger(a.logger),
		server.WithGatherer(a.registry),
		server.WithRequestTimeout(a.cfg.Server.RequestTimeout))
	return srv.Serve(ctx, a.cfg.Server.Addr, a.cfg.Server.GRPCAddr)
}
