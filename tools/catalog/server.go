package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// Server exposes a Catalog as MCP tools.
type Server struct {
	MCPServer *sdkmcp.Server

	catalog *Catalog
	weather *WeatherClient
	logger  *zap.Logger
}

type noInput struct{}

type restaurantInput struct {
	RestaurantName string `json:"restaurant_name" jsonschema:"the exact name of the restaurant"`
}

type priceRangeInput struct {
	MinPrice float64 `json:"min_price" jsonschema:"minimum item price in euros"`
	MaxPrice float64 `json:"max_price" jsonschema:"maximum item price in euros"`
}

type foodTypeInput struct {
	FoodType string `json:"food_type" jsonschema:"type of food, e.g. Japanese, Asian, Sushi"`
}

type orderInput struct {
	Restaurant   string      `json:"restaurant" jsonschema:"the name of the restaurant, e.g. Sasou"`
	Items        []OrderItem `json:"items" jsonschema:"items to order with name and quantity"`
	CustomerName string      `json:"customer_name" jsonschema:"the name of the customer"`
}

// NewServer registers every catalog tool. weather may be nil to omit get_weather.
func NewServer(c *Catalog, weather *WeatherClient, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		catalog: c,
		weather: weather,
		logger:  logger.Named("catalog"),
	}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "nim-graph-catalog", Version: "v1.0.0"},
		nil,
	)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_restaurant_data",
		Description: "Get detailed information about a specific restaurant.",
	}, s.handleRestaurantData)
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_all_restaurants",
		Description: "Get all restaurant data from the database.",
	}, s.handleAllRestaurants)
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_restaurant_names",
		Description: "Get all available restaurant names.",
	}, s.handleRestaurantNames)
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_restaurant_menu",
		Description: "Get the menu items and prices for a specific restaurant.",
	}, s.handleMenu)
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_restaurants_by_price_range",
		Description: "Find restaurants with menu items within a specific price range.",
	}, s.handlePriceRange)
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_restaurant_contact_info",
		Description: "Get phone, email, website and address for a specific restaurant.",
	}, s.handleContact)
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_restaurants_by_food_type",
		Description: "Find restaurants that serve a specific type of food.",
	}, s.handleFoodType)
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_parking_data",
		Description: "Get available parking spaces in Munich.",
	}, s.handleParking)
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_open_parking_lots",
		Description: "Get all parking lots that are currently open.",
	}, s.handleOpenParking)
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_parking_with_free_spots",
		Description: "Get parking lots that currently have free spots available.",
	}, s.handleFreeParking)
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "place_order",
		Description: "Place an order at a restaurant.",
	}, s.handlePlaceOrder)
	if weather != nil {
		sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
			Name:        "get_weather",
			Description: "Get the current weather at a restaurant's location.",
		}, s.handleWeather)
	}
	return s
}

// textResult encodes v as the tool's JSON text content.
func textResult(v any) (*sdkmcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal result: %w", err)
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func errorResult(format string, args ...any) (*sdkmcp.CallToolResult, any, error) {
	return textResult(map[string]string{"error": fmt.Sprintf(format, args...)})
}

func (s *Server) handleRestaurantData(ctx context.Context, _ *sdkmcp.CallToolRequest, in restaurantInput) (*sdkmcp.CallToolResult, any, error) {
	r, ok := s.catalog.Restaurant(in.RestaurantName)
	if !ok {
		return errorResult("Restaurant '%s' not found", in.RestaurantName)
	}
	return textResult(r)
}

func (s *Server) handleAllRestaurants(ctx context.Context, _ *sdkmcp.CallToolRequest, _ noInput) (*sdkmcp.CallToolResult, any, error) {
	return textResult(s.catalog.Restaurants())
}

func (s *Server) handleRestaurantNames(ctx context.Context, _ *sdkmcp.CallToolRequest, _ noInput) (*sdkmcp.CallToolResult, any, error) {
	return textResult(s.catalog.RestaurantNames())
}

func (s *Server) handleMenu(ctx context.Context, _ *sdkmcp.CallToolRequest, in restaurantInput) (*sdkmcp.CallToolResult, any, error) {
	r, ok := s.catalog.Restaurant(in.RestaurantName)
	if !ok {
		return errorResult("Restaurant '%s' not found", in.RestaurantName)
	}
	return textResult(map[string]any{
		"restaurant":  r.Title,
		"menu_items":  r.Menu.Items,
		"total_items": len(r.Menu.Items),
	})
}

func (s *Server) handlePriceRange(ctx context.Context, _ *sdkmcp.CallToolRequest, in priceRangeInput) (*sdkmcp.CallToolResult, any, error) {
	if in.MinPrice > in.MaxPrice {
		return errorResult("min_price %.2f is above max_price %.2f", in.MinPrice, in.MaxPrice)
	}
	return textResult(s.catalog.ByPriceRange(in.MinPrice, in.MaxPrice))
}

func (s *Server) handleContact(ctx context.Context, _ *sdkmcp.CallToolRequest, in restaurantInput) (*sdkmcp.CallToolResult, any, error) {
	r, ok := s.catalog.Restaurant(in.RestaurantName)
	if !ok {
		return errorResult("Restaurant '%s' not found", in.RestaurantName)
	}
	return textResult(map[string]any{
		"restaurant": r.Title,
		"phone":      r.ContactInfo.PhoneNumber,
		"email":      r.ContactInfo.Email,
		"website":    r.ContactInfo.Website,
		"address":    r.Address,
	})
}

func (s *Server) handleFoodType(ctx context.Context, _ *sdkmcp.CallToolRequest, in foodTypeInput) (*sdkmcp.CallToolResult, any, error) {
	return textResult(s.catalog.ByFoodType(in.FoodType))
}

func (s *Server) handleParking(ctx context.Context, _ *sdkmcp.CallToolRequest, _ noInput) (*sdkmcp.CallToolResult, any, error) {
	return textResult(s.catalog.ParkingLots())
}

func (s *Server) handleOpenParking(ctx context.Context, _ *sdkmcp.CallToolRequest, _ noInput) (*sdkmcp.CallToolResult, any, error) {
	return textResult(s.catalog.OpenParkingLots())
}

func (s *Server) handleFreeParking(ctx context.Context, _ *sdkmcp.CallToolRequest, _ noInput) (*sdkmcp.CallToolResult, any, error) {
	return textResult(s.catalog.ParkingWithFreeSpots())
}

func (s *Server) handlePlaceOrder(ctx context.Context, _ *sdkmcp.CallToolRequest, in orderInput) (*sdkmcp.CallToolResult, any, error) {
	order, err := s.catalog.PlaceOrder(ctx, in.Restaurant, in.Items, in.CustomerName)
	if err != nil {
		s.logger.Warn("order rejected", zap.Error(err))
		return errorResult("%v", err)
	}
	s.logger.Info("order placed",
		zap.Int("order_id", order.OrderID),
		zap.String("restaurant", order.Restaurant))
	return textResult(order)
}

func (s *Server) handleWeather(ctx context.Context, _ *sdkmcp.CallToolRequest, in restaurantInput) (*sdkmcp.CallToolResult, any, error) {
	r, ok := s.catalog.Restaurant(in.RestaurantName)
	if !ok {
		return errorResult("Restaurant '%s' not found", in.RestaurantName)
	}
	w, err := s.weather.Current(ctx, r.Position)
	if err != nil {
		s.logger.Warn("weather lookup failed", zap.Error(err))
		return errorResult("weather unavailable: %v", err)
	}
	return textResult(w)
}
