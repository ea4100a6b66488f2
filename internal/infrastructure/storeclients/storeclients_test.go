package storeclients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyticalClient_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req analyticalQueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "SELECT * FROM trades", req.Query)

		_ = json.NewEncoder(w).Encode(analyticalQueryResponse{
			Rows:      []map[string]any{{"symbol": "AAPL"}},
			TotalRows: 1,
		})
	}))
	defer srv.Close()

	client := NewAnalyticalClient(srv.URL)
	res, err := client.Query(context.Background(), "SELECT * FROM trades", map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalRows)
	assert.Equal(t, "AAPL", res.Rows[0]["symbol"])
}

func TestAnalyticalClient_DiscoverSchema_MapsTypes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(analyticalQueryResponse{
			Rows: []map[string]any{
				{"table": "fct_trades", "name": "symbol", "type": "String"},
				{"table": "fct_trades", "name": "quantity", "type": "Int64"},
				{"table": "fct_trades", "name": "trade_time", "type": "Nullable(DateTime)"},
			},
		})
	}))
	defer srv.Close()

	client := NewAnalyticalClient(srv.URL)
	tables, err := client.DiscoverSchema(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "fct_trades", tables[0].Name)
	assert.Equal(t, "analytical", tables[0].Source)

	byName := map[string]string{}
	nullable := map[string]bool{}
	for _, c := range tables[0].Columns {
		byName[c.Name] = string(c.Dtype)
		nullable[c.Name] = c.Nullable
	}
	assert.Equal(t, "string", byName["symbol"])
	assert.Equal(t, "int64", byName["quantity"])
	assert.Equal(t, "datetime", byName["trade_time"])
	assert.True(t, nullable["trade_time"])
}

func TestLiveClient_Query_RenumbersParamsPositionally(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req liveQueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []any{float64(1), "aapl"}, req.Params)
		_ = json.NewEncoder(w).Encode(analyticalQueryResponse{TotalRows: 0})
	}))
	defer srv.Close()

	client := NewLiveClient(srv.URL)
	_, err := client.Query(context.Background(), "SELECT 1", map[string]any{"a": 1, "b": "aapl"})
	require.NoError(t, err)
}

func TestPointClient_Get(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.HSet("latest:vwap:AAPL", "symbol", "AAPL", "vwap", "150.5")

	pc := NewPointClient(client)
	res, err := pc.Get(context.Background(), map[string]any{"pattern": "latest:vwap", "key": "AAPL"})
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalRows)
	assert.Equal(t, "AAPL", res.Rows[0]["symbol"])
	assert.Equal(t, 150.5, res.Rows[0]["vwap"])
}

func TestPointClient_Get_MissMeansZeroRows(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	pc := NewPointClient(client)
	res, err := pc.Get(context.Background(), map[string]any{"pattern": "latest:vwap", "key": "MSFT"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalRows)
}
