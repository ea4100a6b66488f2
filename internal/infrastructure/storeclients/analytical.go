// Package storeclients implements the concrete backing-store clients the
// Query Router dispatches CompiledSegments against (spec.md §4.3): an
// HTTP SQL client for the analytical store, a positional-parameter HTTP
// client for the live store, and a direct Redis key-lookup client for the
// point store. Grounded on the teacher's pkg/executor/builtin/http.go for
// the net/http request-building shape and on original_source's
// services/query_router.py for the per-target dispatch contract these
// clients are called behind.
package storeclients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vizflow/vizflow/pkg/models"
)

// AnalyticalClient is a read-only HTTP SQL client for the analytical store
// (e.g. a ClickHouse-style HTTP query interface). Parameter substitution
// uses the store's typed named-placeholder form — params travel as a JSON
// object alongside the query text, never interpolated into it
// (spec.md §4.3).
type AnalyticalClient struct {
	baseURL string
	client  *http.Client
}

// NewAnalyticalClient constructs an AnalyticalClient against baseURL.
func NewAnalyticalClient(baseURL string) *AnalyticalClient {
	return &AnalyticalClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type analyticalQueryRequest struct {
	Query  string         `json:"query"`
	Params map[string]any `json:"params,omitempty"`
}

type analyticalQueryResponse struct {
	Columns []struct {
		Name  string `json:"name"`
		Dtype string `json:"dtype"`
	} `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	TotalRows int              `json:"total_rows"`
}

// Query executes sql with named params against the analytical store's HTTP
// query endpoint and returns a uniform QueryResult.
func (a *AnalyticalClient) Query(ctx context.Context, sql string, params map[string]any) (models.QueryResult, error) {
	return postQuery(ctx, a.client, a.baseURL+"/query", analyticalQueryRequest{Query: sql, Params: params})
}

// DiscoverSchema reads the analytical store's system catalog (its
// column-metadata table) and normalizes store-native type names onto the
// engine's Dtype set (spec.md §3 "Dtype is the engine-internal normalized
// form"). Grounded on original_source's schema_registry.py
// _discover_clickhouse + _map_clickhouse_type.
func (a *AnalyticalClient) DiscoverSchema(ctx context.Context) ([]models.TableSchema, error) {
	res, err := a.Query(ctx, "SELECT table, name, type FROM system.columns WHERE table NOT LIKE '%_mv' ORDER BY table, position", nil)
	if err != nil {
		return nil, fmt.Errorf("discover analytical schema: %w", err)
	}

	grouped := map[string]models.Schema{}
	order := make([]string, 0)
	for _, row := range res.Rows {
		table, _ := row["table"].(string)
		name, _ := row["name"].(string)
		chType, _ := row["type"].(string)
		if table == "" || name == "" {
			continue
		}
		if _, ok := grouped[table]; !ok {
			order = append(order, table)
		}
		grouped[table] = append(grouped[table], models.ColumnSchema{
			Name:     name,
			Dtype:    mapClickHouseType(chType),
			Nullable: strings.Contains(chType, "Nullable"),
		})
	}

	tables := make([]models.TableSchema, 0, len(order))
	for _, name := range order {
		tables = append(tables, models.TableSchema{Name: name, Source: "analytical", Columns: grouped[name]})
	}
	return tables, nil
}

// mapClickHouseType maps a ClickHouse-style type string to a normalized
// Dtype, grounded on original_source's _map_clickhouse_type.
func mapClickHouseType(chType string) models.Dtype {
	t := strings.TrimSuffix(strings.TrimPrefix(chType, "Nullable("), ")")
	switch {
	case strings.HasPrefix(t, "DateTime"), strings.HasPrefix(t, "Date"):
		return models.DtypeDatetime
	case strings.HasPrefix(t, "String"), strings.HasPrefix(t, "FixedString"), strings.HasPrefix(t, "UUID"), strings.HasPrefix(t, "Enum"):
		return models.DtypeString
	case strings.HasPrefix(t, "UInt"), strings.HasPrefix(t, "Int"):
		return models.DtypeInt64
	case strings.HasPrefix(t, "Float"), strings.HasPrefix(t, "Decimal"):
		return models.DtypeFloat64
	case strings.HasPrefix(t, "Bool"):
		return models.DtypeBool
	default:
		return models.DtypeString
	}
}

func postQuery(ctx context.Context, client *http.Client, url string, body any) (models.QueryResult, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return models.QueryResult{}, fmt.Errorf("encode query request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return models.QueryResult{}, fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return models.QueryResult{}, fmt.Errorf("store request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.QueryResult{}, fmt.Errorf("read store response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return models.QueryResult{}, fmt.Errorf("store returned %d: %s", resp.StatusCode, string(payload))
	}

	var decoded analyticalQueryResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return models.QueryResult{}, fmt.Errorf("decode store response: %w", err)
	}

	columns := make([]models.ColumnSchema, len(decoded.Columns))
	for i, c := range decoded.Columns {
		columns[i] = models.ColumnSchema{Name: c.Name, Dtype: models.Dtype(c.Dtype)}
	}
	return models.QueryResult{Columns: columns, Rows: decoded.Rows, TotalRows: decoded.TotalRows}, nil
}
