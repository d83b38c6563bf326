// Package catalog serves restaurant, parking, order and weather tools over MCP.
package catalog

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
)

//go:embed data/*.json
var sampleData embed.FS

// Catalog answers queries over the restaurant and parking data and records orders.
type Catalog struct {
	restaurants []Restaurant
	parking     []ParkingLot

	ordersPath string
	mu         sync.Mutex
	orders     []Order
}

// Config names the data files. Empty paths fall back to the bundled Munich sample.
type Config struct {
	RestaurantsPath string
	ParkingPath     string
	// OrdersPath persists placed orders as JSON. Empty keeps them in memory.
	OrdersPath string
}

// Load reads the catalogs.
func Load(cfg Config) (*Catalog, error) {
	c := &Catalog{ordersPath: cfg.OrdersPath}
	if err := readJSON(cfg.RestaurantsPath, "data/restaurants.json", &c.restaurants); err != nil {
		return nil, fmt.Errorf("load restaurants: %w", err)
	}
	if err := readJSON(cfg.ParkingPath, "data/parking.json", &c.parking); err != nil {
		return nil, fmt.Errorf("load parking: %w", err)
	}
	if cfg.OrdersPath != "" {
		data, err := os.ReadFile(cfg.OrdersPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read orders: %w", err)
		case len(data) > 0:
			if err := json.Unmarshal(data, &c.orders); err != nil {
				return nil, fmt.Errorf("parse orders: %w", err)
			}
		}
	}
	return c, nil
}

func readJSON(path, fallback string, v any) error {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = sampleData.ReadFile(fallback)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Restaurant returns the restaurant with an exact title match.
func (c *Catalog) Restaurant(name string) (Restaurant, bool) {
	for _, r := range c.restaurants {
		if r.Title == name {
			return r, true
		}
	}
	return Restaurant{}, false
}

// Restaurants returns every restaurant.
func (c *Catalog) Restaurants() []Restaurant {
	return append([]Restaurant(nil), c.restaurants...)
}

// RestaurantNames returns all titles.
func (c *Catalog) RestaurantNames() []string {
	names := make([]string, 0, len(c.restaurants))
	for _, r := range c.restaurants {
		names = append(names, r.Title)
	}
	return names
}

// ByPriceRange returns restaurants with menu items priced within [min, max].
func (c *Catalog) ByPriceRange(min, max float64) []map[string]any {
	var out []map[string]any
	for _, r := range c.restaurants {
		var items []MenuItem
		for _, it := range r.Menu.Items {
			if it.Price >= min && it.Price <= max {
				items = append(items, it)
			}
		}
		if len(items) > 0 {
			out = append(out, map[string]any{
				"restaurant":       r.Title,
				"address":          r.Address,
				"affordable_items": items,
				"item_count":       len(items),
			})
		}
	}
	return out
}

// ByFoodType returns restaurants whose food types contain foodType, case-insensitively.
func (c *Catalog) ByFoodType(foodType string) []map[string]any {
	needle := strings.ToLower(foodType)
	var out []map[string]any
	for _, r := range c.restaurants {
		for _, ft := range r.FoodTypes {
			if strings.Contains(strings.ToLower(ft), needle) {
				out = append(out, map[string]any{
					"restaurant":  r.Title,
					"address":     r.Address,
					"food_types":  r.FoodTypes,
					"price_level": r.PriceSummary.PriceRangeLevel,
				})
				break
			}
		}
	}
	return out
}

// ParkingLots returns the full parking catalog.
func (c *Catalog) ParkingLots() []ParkingLot {
	return append([]ParkingLot(nil), c.parking...)
}

// OpenParkingLots returns lots whose current status is OPEN.
func (c *Catalog) OpenParkingLots() []LotSummary {
	var out []LotSummary
	for _, lot := range c.parking {
		if lot.BusinessHours.CurrentStatus != "OPEN" {
			continue
		}
		out = append(out, LotSummary{
			Title:            lot.Title,
			Address:          lot.Address,
			Distance:         lot.Distance,
			Duration:         lot.Duration,
			PriceSummary:     lot.PriceSummary.PriceSummaryText,
			FreeSpots:        lot.Parking.FreeSpotsNumber,
			TotalSpots:       lot.Parking.SpotsNumber,
			NextStatusChange: lot.BusinessHours.NextStatusChange,
		})
	}
	return out
}

// ParkingWithFreeSpots returns lots with at least one free spot.
func (c *Catalog) ParkingWithFreeSpots() []LotSummary {
	var out []LotSummary
	for _, lot := range c.parking {
		free := lot.Parking.FreeSpotsNumber
		if free <= 0 {
			continue
		}
		total := lot.Parking.SpotsNumber
		if total <= 0 {
			total = 1
		}
		out = append(out, LotSummary{
			Title:        lot.Title,
			Address:      lot.Address,
			Distance:     lot.Distance,
			FreeSpots:    free,
			TotalSpots:   lot.Parking.SpotsNumber,
			Availability: math.Round(float64(free)/float64(total)*1000) / 10,
		})
	}
	return out
}

// PlaceOrder records a pending order and persists it when an orders file is configured.
func (c *Catalog) PlaceOrder(ctx context.Context, restaurant string, items []OrderItem, customer string) (Order, error) {
	if _, ok := c.Restaurant(restaurant); !ok {
		return Order{}, fmt.Errorf("restaurant %q not found", restaurant)
	}
	if len(items) == 0 {
		return Order{}, fmt.Errorf("order has no items")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	order := Order{
		OrderID:      len(c.orders) + 1,
		Restaurant:   restaurant,
		Items:        items,
		CustomerName: customer,
		Status:       "pending",
	}
	orders := append(c.orders, order)
	if c.ordersPath != "" {
		data, err := json.MarshalIndent(orders, "", "  ")
		if err != nil {
			return Order{}, fmt.Errorf("marshal orders: %w", err)
		}
		if err := os.WriteFile(c.ordersPath, data, 0o644); err != nil {
			return Order{}, fmt.Errorf("write orders: %w", err)
		}
	}
	c.orders = orders
	return order, nil
}
