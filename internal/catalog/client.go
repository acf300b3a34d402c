package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/wa-commerce-bridge/internal/upstream"
)

const (
	serviceName        = "catalog"
	productsPath       = "/wp-json/wc/v3/products"
	defaultHTTPTimeout = 10 * time.Second
)

var tracer = otel.Tracer("wabridge.internal.catalog")

// Client queries the WooCommerce REST API (v3).
type Client struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	pageSize       int
	httpClient     *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithPageSize sets per_page; values outside 1..MaxResults are clamped.
func WithPageSize(n int) Option {
	return func(c *Client) {
		c.pageSize = clampPageSize(n)
	}
}

// NewClient creates a WooCommerce client for the store at baseURL.
func NewClient(baseURL, consumerKey, consumerSecret string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("catalog: base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, errors.New("catalog: invalid base url")
	}
	c := &Client{
		baseURL:        baseURL,
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		pageSize:       MaxResults,
		httpClient:     &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FindProducts searches products by keyword. No matches is an empty slice and
// a nil error; upstream failures come back as *upstream.Error.
func (c *Client) FindProducts(ctx context.Context, query string) ([]Product, error) {
	ctx, span := tracer.Start(ctx, "catalog.find_products")
	defer span.End()

	params := url.Values{}
	params.Set("per_page", strconv.Itoa(c.pageSize))
	if q := strings.TrimSpace(query); q != "" {
		params.Set("search", q)
	}
	endpoint := c.baseURL + productsPath + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		span.RecordError(err)
		return nil, upstream.Transport(serviceName, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.consumerKey != "" {
		req.SetBasicAuth(c.consumerKey, c.consumerSecret)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, upstream.Transport(serviceName, err)
	}
	defer func() { _ = res.Body.Close() }()
	span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))

	if err := upstream.CheckResponse(serviceName, res); err != nil {
		span.RecordError(err)
		return nil, err
	}
	raw, err := upstream.ReadBody(serviceName, res)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var products []Product
	if err := json.Unmarshal(raw, &products); err != nil {
		span.RecordError(err)
		return nil, upstream.Decode(serviceName, err)
	}
	if len(products) > c.pageSize {
		products = products[:c.pageSize]
	}
	if products == nil {
		products = []Product{}
	}
	span.SetAttributes(attribute.Int("wabridge.catalog.results", len(products)))
	return products, nil
}

func clampPageSize(n int) int {
	if n <= 0 || n > MaxResults {
		return MaxResults
	}
	return n
}
