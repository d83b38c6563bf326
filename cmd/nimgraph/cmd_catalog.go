package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/becomeliminal/nim-graph/tools/catalog"
)

var catalogFlags struct {
	addr        string
	restaurants string
	parking     string
	orders      string
}

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Serve the restaurant, parking and weather tools over MCP (streamable HTTP)",
		RunE:  runCatalog,
	}
	f := cmd.Flags()
	f.StringVar(&catalogFlags.addr, "addr", ":8090", "Listen address")
	f.StringVar(&catalogFlags.restaurants, "restaurants", "", "Restaurants JSON (default: bundled sample)")
	f.StringVar(&catalogFlags.parking, "parking", "", "Parking JSON (default: bundled sample)")
	f.StringVar(&catalogFlags.orders, "orders", "", "Orders JSON file (default: in memory)")
	return cmd
}

func runCatalog(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := newCatalogServer(catalog.Config{
		RestaurantsPath: catalogFlags.restaurants,
		ParkingPath:     catalogFlags.parking,
		OrdersPath:      catalogFlags.orders,
	}, a.logger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server {
		return srv.MCPServer
	}, nil))
	httpSrv := &http.Server{Addr: catalogFlags.addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	ctx := cmd.Context()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	a.logger.Info("catalog listening", zap.String("addr", catalogFlags.addr), zap.String("path", "/mcp"))
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
