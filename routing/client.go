package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aaroncutress/busroutes/models"
	"resty.dev/v3"
)

const DefaultBaseURL = "http://router.project-osrm.org/route/v1/driving"

var (
	ErrTooFewPoints = errors.New("at least two coordinates are required")
	ErrNoRoute      = errors.New("routing engine returned no route")
)

// Computes a road-following polyline through the given coordinates
type Router interface {
	Route(ctx context.Context, coords models.CoordinateArray) (models.CoordinateArray, error)
}

// OSRM route service client
type Client struct {
	http    *resty.Client
	baseURL string
}

// Creates a new routing engine client
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := resty.New()
	client.SetTimeout(timeout)

	return &Client{
		http:    client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Releases the underlying HTTP client
func (c *Client) Close() error {
	return c.http.Close()
}

type routeResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Returns the full geometry of the fastest route visiting coords in order.
// Detours are discouraged and no turn-by-turn steps are requested.
func (c *Client) Route(ctx context.Context, coords models.CoordinateArray) (models.CoordinateArray, error) {
	if len(coords) < 2 {
		return nil, ErrTooFewPoints
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"overview":          "full",
			"geometries":        "geojson",
			"steps":             "false",
			"alternatives":      "false",
			"continue_straight": "true",
		}).
		Get(c.baseURL + "/" + EncodeCoordinates(coords))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var route routeResponse
	if err := json.Unmarshal(body, &route); err != nil {
		if resp.IsError() {
			return nil, fmt.Errorf("routing engine: %s", resp.Status())
		}
		return nil, fmt.Errorf("decode routing response: %w", err)
	}
	if route.Code != "Ok" {
		return nil, fmt.Errorf("%w: %s %s", ErrNoRoute, route.Code, route.Message)
	}
	if len(route.Routes) == 0 || len(route.Routes[0].Geometry.Coordinates) == 0 {
		return nil, ErrNoRoute
	}

	return models.CoordinatesFromPositions(route.Routes[0].Geometry.Coordinates)
}

// Formats coordinates as the engine's "lon,lat;lon,lat" path segment
func EncodeCoordinates(coords models.CoordinateArray) string {
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = fmt.Sprintf("%.6f,%.6f", c.Longitude, c.Latitude)
	}
	return strings.Join(parts, ";")
}
