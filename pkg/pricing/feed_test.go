package pricing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchFromFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Estimates{
			Monthly:    CostTable{"azurerm_virtual_machine": 155},
			PriorCosts: map[string]float64{"azurerm_virtual_machine": 140},
		})
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, t.TempDir())
	est := c.Fetch(context.Background())

	assert.Equal(t, 155.0, est.Cost("azurerm_virtual_machine"))
	assert.Equal(t, 140.0, est.PriorCosts["azurerm_virtual_machine"])
	assert.NotZero(t, est.FetchedAt)
	assert.Zero(t, est.Cost("azurerm_unpriced_type"))
}

func TestFetchFallsBackToCache(t *testing.T) {
	dir := t.TempDir()
	cached := Estimates{Monthly: CostTable{"azurerm_sql_database": 260}}
	data, err := json.Marshal(cached)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cost-estimates.json"), data, 0644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, dir)
	est := c.Fetch(context.Background())
	assert.Equal(t, 260.0, est.Cost("azurerm_sql_database"))
}

func TestFetchFallsBackToDefaults(t *testing.T) {
	c := NewClient(nil, "", t.TempDir())
	est := c.Fetch(context.Background())
	require.NotNil(t, est)
	assert.Equal(t, Defaults().Cost("azurerm_storage_account"), est.Cost("azurerm_storage_account"))
}

func TestFetchCachesSuccessfulResponse(t *testing.T) {
	dir := t.TempDir()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Estimates{Monthly: CostTable{"azurerm_lb": 22}})
	}))

	c := NewClient(nil, srv.URL, dir)
	c.Fetch(context.Background())
	srv.Close()

	// A second client pointed at the now-dead feed serves the cached table.
	c2 := NewClient(nil, srv.URL, dir)
	est := c2.Fetch(context.Background())
	assert.Equal(t, 22.0, est.Cost("azurerm_lb"))
}

func TestFetchRejectsEmptyFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Estimates{})
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, t.TempDir())
	est := c.Fetch(context.Background())
	// An empty payload is treated as a failed fetch, not an empty table.
	assert.Equal(t, Defaults().Cost("azurerm_storage_account"), est.Cost("azurerm_storage_account"))
}
