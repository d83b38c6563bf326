package mcp_test

import (
	"context"
	"encoding/json"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/becomeliminal/nim-graph/core"
	"github.com/becomeliminal/nim-graph/tools/catalog"
	"github.com/becomeliminal/nim-graph/tools/mcp"
)

func connectCatalog(t *testing.T) *mcp.Gateway {
	t.Helper()
	ctx := context.Background()

	cat, err := catalog.Load(catalog.Config{})
	require.NoError(t, err)
	srv := catalog.NewServer(cat, nil, zaptest.NewLogger(t))

	t1, t2 := sdkmcp.NewInMemoryTransports()
	serverSession, err := srv.MCPServer.Connect(ctx, t1, nil)
	require.NoError(t, err)
	t.Cleanup(func() { serverSession.Close() })

	g := mcp.New(mcp.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, g.ConnectTransport(ctx, "catalog", t2))
	t.Cleanup(func() { g.Close() })
	return g
}

func TestGateway_ToolDiscovery(t *testing.T) {
	g := connectCatalog(t)

	names := map[string]bool{}
	for _, d := range g.Definitions() {
		names[d.Name] = true
		assert.Equal(t, "object", d.InputSchema["type"], d.Name)
	}
	for _, want := range []string{
		"get_restaurant_data", "get_all_restaurants", "get_restaurant_names",
		"get_restaurant_menu", "get_restaurants_by_price_range",
		"get_restaurant_contact_info", "get_restaurants_by_food_type",
		"get_parking_data", "get_open_parking_lots", "get_parking_with_free_spots",
		"place_order",
	} {
		assert.True(t, names[want], "missing tool %s", want)
	}
	assert.False(t, names["get_weather"], "weather tool registered without a client")
}

func TestGateway_InvokeReturnsJSON(t *testing.T) {
	g := connectCatalog(t)
	ctx := context.Background()

	out, err := g.Invoke(ctx, "get_restaurant_names", nil)
	require.NoError(t, err)
	var names []string
	require.NoError(t, json.Unmarshal(out, &names))
	assert.Contains(t, names, "Sasou")

	out, err = g.Invoke(ctx, "get_restaurant_menu", json.RawMessage(`{"restaurant_name":"Sasou"}`))
	require.NoError(t, err)
	var menu struct {
		Restaurant string `json:"restaurant"`
		TotalItems int    `json:"total_items"`
	}
	require.NoError(t, json.Unmarshal(out, &menu))
	assert.Equal(t, "Sasou", menu.Restaurant)
	assert.Equal(t, 3, menu.TotalItems)
}

func TestGateway_ToolLevelErrorIsAResult(t *testing.T) {
	g := connectCatalog(t)
	out, err := g.Invoke(context.Background(), "get_restaurant_contact_info", json.RawMessage(`{"restaurant_name":"Nowhere"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Restaurant 'Nowhere' not found"}`, string(out))
}

func TestGateway_UnknownTool(t *testing.T) {
	g := connectCatalog(t)
	_, err := g.Invoke(context.Background(), "launch_rocket", nil)
	var tie *core.ToolInvocationError
	require.ErrorAs(t, err, &tie)
	assert.Equal(t, "launch_rocket", tie.Tool)
}

func TestGateway_PlaceOrder(t *testing.T) {
	g := connectCatalog(t)
	out, err := g.Invoke(context.Background(), "place_order", json.RawMessage(
		`{"restaurant":"Sasou","items":[{"name":"Salmon Sushi","quantity":2}],"customer_name":"Shibin"}`))
	require.NoError(t, err)

	var order catalog.Order
	require.NoError(t, json.Unmarshal(out, &order))
	assert.Equal(t, 1, order.OrderID)
	assert.Equal(t, "pending", order.Status)
	assert.Equal(t, "Shibin", order.CustomerName)
}
