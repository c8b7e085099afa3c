package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/aaroncutress/busroutes/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"resty.dev/v3"
)

const (
	DefaultBaseURL = "http://apis.data.go.kr/1613000/BusRouteInfoInqireService"

	routeListEndpoint = "getRouteNoList"
	stopListEndpoint  = "getRouteAcctoThrghSttnList"

	routeRowsPerPage = 2000
	stopRowsPerPage  = 500

	// Upper bound on pages requested for one listing
	maxPages = 50
)

var ErrResultCode = errors.New("catalog returned an error result code")

// Non-success header returned by the catalog service
type ResultError struct {
	Code    string
	Message string
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("catalog result %s: %s", e.Code, e.Message)
}

func (e *ResultError) Is(target error) bool {
	return target == ErrResultCode
}

type Options struct {
	BaseURL    string
	ServiceKey string
	Timeout    time.Duration

	// Attempts after the first for transient failures
	Retries   int
	RetryWait time.Duration
}

// Client for the public bus route catalog
type Client struct {
	http       *resty.Client
	serviceKey string
	retries    int
	retryWait  time.Duration
}

// Creates a new catalog client
func NewClient(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	retryWait := opts.RetryWait
	if retryWait <= 0 {
		retryWait = 500 * time.Millisecond
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)

	return &Client{
		http:       client,
		serviceKey: opts.ServiceKey,
		retries:    max(opts.Retries, 0),
		retryWait:  retryWait,
	}
}

// Releases the underlying HTTP client
func (c *Client) Close() error {
	return c.http.Close()
}

// Returns all routes of the given city
func (c *Client) ListRoutes(ctx context.Context, cityCode string) (models.RouteSummaryArray, error) {
	params := map[string]string{
		"cityCode": cityCode,
	}
	items, err := fetchAll[routeItem](ctx, c, routeListEndpoint, params, routeRowsPerPage)
	if err != nil {
		return nil, fmt.Errorf("list routes of city %s: %w", cityCode, err)
	}

	routes := make(models.RouteSummaryArray, len(items))
	for i, item := range items {
		routes[i] = item.summary()
	}
	return routes, nil
}

// Returns the stops a route passes through, in catalog order
func (c *Client) ListStops(ctx context.Context, cityCode string, routeID models.Key) (models.RawStopArray, error) {
	params := map[string]string{
		"cityCode": cityCode,
		"routeId":  string(routeID),
	}
	items, err := fetchAll[stopItem](ctx, c, stopListEndpoint, params, stopRowsPerPage)
	if err != nil {
		return nil, fmt.Errorf("list stops of route %s: %w", routeID, err)
	}

	stops := make(models.RawStopArray, len(items))
	for i, item := range items {
		stops[i] = item.rawStop()
	}
	return stops, nil
}

// Requests pages of an endpoint until totalCount items are collected
func fetchAll[T any](ctx context.Context, c *Client, endpoint string, params map[string]string, rows int) ([]T, error) {
	var all []T

	for page := 1; page <= maxPages; page++ {
		query := map[string]string{
			"numOfRows": strconv.Itoa(rows),
			"pageNo":    strconv.Itoa(page),
		}
		for k, v := range params {
			query[k] = v
		}

		body, err := c.get(ctx, endpoint, query)
		if err != nil {
			return nil, err
		}

		var env envelope[T]
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("decode %s response: %w (body: %s)", endpoint, err, snippet(body))
		}
		if err := env.check(); err != nil {
			return nil, err
		}

		items := env.Response.Body.Items.Item
		all = append(all, items...)

		total := env.Response.Body.TotalCount
		if len(items) == 0 || !total.Valid || len(all) >= total.Int() {
			break
		}
		log.Debugf("%s page %d: %d of %d items", endpoint, page, len(all), total.Int())
	}

	return all, nil
}

// Performs a GET with the service key attached, retrying transient failures
func (c *Client) get(ctx context.Context, endpoint string, query map[string]string) ([]byte, error) {
	operation := func() ([]byte, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(query).
			SetQueryParam("serviceKey", c.serviceKey).
			SetQueryParam("_type", "json").
			Get(endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		if resp.IsError() {
			err := fmt.Errorf("%s: %s", endpoint, resp.Status())
			if resp.StatusCode() < http.StatusInternalServerError && resp.StatusCode() != http.StatusTooManyRequests {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return body, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryWait
	policy.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		log.Warnf("%s failed, retrying in %s: %v", endpoint, wait.Round(time.Millisecond), err)
	}

	return backoff.RetryNotifyWithData(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.retries)), ctx),
		notify,
	)
}

func snippet(body []byte) string {
	const limit = 120
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
