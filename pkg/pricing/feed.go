// Package pricing supplies the per-resource-type monthly cost table consumed
// by the cost evaluator. The table is fetched once up front and is static for
// the remainder of the run; a failed or slow fetch degrades to the last cached
// table, then to compiled-in defaults, never to a failed run.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// CostTable maps a resource type to its estimated monthly cost in USD.
type CostTable map[string]float64

// Estimates is one feed payload: the live cost table plus, optionally, the
// prior deployment's per-type monthly costs used as the increase baseline.
type Estimates struct {
	Monthly    CostTable          `json:"monthly"`
	PriorCosts map[string]float64 `json:"prior_costs,omitempty"`
	FetchedAt  int64              `json:"fetched_at"`
}

// Cost looks up a type's monthly estimate; unknown types cost zero.
func (e *Estimates) Cost(resourceType string) float64 {
	return e.Monthly[resourceType]
}

// Client fetches cost estimates with local cache fallback.
type Client struct {
	logger    *slog.Logger
	http      *http.Client
	url       string
	cachePath string
	timeout   time.Duration
}

// NewClient builds a feed client. An empty URL means cache/defaults only.
func NewClient(logger *slog.Logger, url, cacheDir string) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cacheDir == "" {
		cacheDir = os.TempDir()
	}
	os.MkdirAll(cacheDir, 0755)

	return &Client{
		logger:    logger,
		http:      &http.Client{},
		url:       url,
		cachePath: filepath.Join(cacheDir, "cost-estimates.json"),
		timeout:   5 * time.Second,
	}
}

// Fetch returns cost estimates, degrading on failure: live feed, then the
// on-disk cache, then Defaults(). It never returns an error.
func (c *Client) Fetch(ctx context.Context) *Estimates {
	if c.url != "" {
		est, err := c.fetchRemote(ctx)
		if err == nil {
			c.saveCache(est)
			return est
		}
		c.logger.Warn("cost feed unavailable, falling back to cache", "url", c.url, "error", err)
	}

	if est, err := c.loadCache(); err == nil {
		return est
	}

	return Defaults()
}

func (c *Client) fetchRemote(ctx context.Context) (*Estimates, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cost feed returned %s", resp.Status)
	}

	var est Estimates
	if err := json.NewDecoder(resp.Body).Decode(&est); err != nil {
		return nil, err
	}
	if len(est.Monthly) == 0 {
		return nil, fmt.Errorf("cost feed returned no estimates")
	}
	est.FetchedAt = time.Now().Unix()
	return &est, nil
}

func (c *Client) loadCache() (*Estimates, error) {
	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		return nil, err
	}
	var est Estimates
	if err := json.Unmarshal(data, &est); err != nil {
		return nil, err
	}
	if len(est.Monthly) == 0 {
		return nil, fmt.Errorf("empty cached table")
	}
	return &est, nil
}

func (c *Client) saveCache(est *Estimates) {
	data, err := json.MarshalIndent(est, "", "  ")
	if err == nil {
		os.WriteFile(c.cachePath, data, 0644)
	}
}

// Defaults is the compiled-in cost table used when neither the feed nor the
// cache is available. Rough monthly on-demand figures; good enough for ceiling
// and count checks, not for billing.
func Defaults() *Estimates {
	return &Estimates{
		Monthly: CostTable{
			"azurerm_virtual_machine":         140.0,
			"azurerm_linux_virtual_machine":   140.0,
			"azurerm_windows_virtual_machine": 180.0,
			"azurerm_kubernetes_cluster":      300.0,
			"azurerm_sql_server":              15.0,
			"azurerm_sql_database":            250.0,
			"azurerm_mssql_server":            15.0,
			"azurerm_mssql_database":          250.0,
			"azurerm_postgresql_server":       120.0,
			"azurerm_mysql_server":            120.0,
			"azurerm_cosmosdb_account":        400.0,
			"azurerm_storage_account":         25.0,
			"azurerm_app_service_plan":        75.0,
			"azurerm_application_gateway":     180.0,
			"azurerm_front_door":              300.0,
			"azurerm_lb":                      20.0,
			"azurerm_public_ip":               4.0,
			"azurerm_virtual_network":         0.0,
			"azurerm_network_security_group":  0.0,
			"azurerm_redis_cache":             200.0,
		},
	}
}
