package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const (
	gatewayProvider = "gateway"
	modelsCacheKey  = "models"
)

// ClientConfig configures the HTTP client for a remote gateway.
type ClientConfig struct {
	BaseURL        string
	Timeout        time.Duration
	ModelsCacheTTL time.Duration
	HTTPClient     *http.Client
}

// Client calls a remote gateway over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	cache   *gocache.Cache
	group   singleflight.Group
}

// NewClient builds a gateway client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	ttl := cfg.ModelsCacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		cache:   gocache.New(ttl, 2*ttl),
	}
}

// Generate posts a uniform generate request.
func (c *Client) Generate(ctx context.Context, req Request) (Response, error) {
	var resp Response
	if err := postJSON(ctx, c.http, gatewayProvider, c.baseURL+"/generate", nil, req, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}

// ListModels fetches the gateway registry. Results are cached and concurrent
// callers share one in-flight request.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	if cached, found := c.cache.Get(modelsCacheKey); found {
		if models, ok := cached.([]ModelInfo); ok {
			return models, nil
		}
	}

	result, err, _ := c.group.Do(modelsCacheKey, func() (interface{}, error) {
		if cached, found := c.cache.Get(modelsCacheKey); found {
			if models, ok := cached.([]ModelInfo); ok {
				return models, nil
			}
		}

		var models []ModelInfo
		if err := c.get(ctx, "/models", &models); err != nil {
			return nil, err
		}

		c.cache.SetDefault(modelsCacheKey, models)
		return models, nil
	})
	if err != nil {
		return nil, err
	}

	models, _ := result.([]ModelInfo)
	return models, nil
}

// Health fetches the gateway health payload.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var health Health
	if err := c.get(ctx, "/health", &health); err != nil {
		return Health{}, err
	}
	return health, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return doJSON(c.http, gatewayProvider, req, out)
}
