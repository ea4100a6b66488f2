package storeclients

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"net/http"

	"github.com/vizflow/vizflow/pkg/models"
)

// LiveClient is a read-only wire-protocol client for the low-latency live
// store (e.g. a Materialize-style streaming SQL endpoint). Unlike the
// analytical client, the live store's native placeholder form is
// positional, not named, so Query renumbers the segment's named params
// into a positional array before sending (spec.md §4.3).
type LiveClient struct {
	baseURL string
	client  *http.Client
}

// NewLiveClient constructs a LiveClient against baseURL.
func NewLiveClient(baseURL string) *LiveClient {
	return &LiveClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type liveQueryRequest struct {
	Query  string `json:"query"`
	Params []any  `json:"params,omitempty"`
}

// Query executes sql against the live store, substituting named params in
// deterministic key order as positional placeholders.
func (l *LiveClient) Query(ctx context.Context, sql string, params map[string]any) (models.QueryResult, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	positional := make([]any, len(keys))
	for i, k := range keys {
		positional[i] = params[k]
	}

	return postQuery(ctx, l.client, l.baseURL+"/query", liveQueryRequest{Query: sql, Params: positional})
}

// DiscoverSchema reads the live store's catalog and normalizes its
// Postgres-family type names onto the engine's Dtype set, grounded on
// original_source's schema_registry.py _discover_materialize +
// _map_pg_type.
func (l *LiveClient) DiscoverSchema(ctx context.Context) ([]models.TableSchema, error) {
	query := "SELECT s.name AS schema_name, o.name AS object_name, c.name AS column_name, " +
		"c.type_oid::regtype::text AS data_type FROM mz_columns c " +
		"JOIN mz_objects o ON c.id = o.id JOIN mz_schemas s ON o.schema_id = s.id " +
		"WHERE s.name NOT IN ('mz_internal', 'mz_catalog', 'pg_catalog', 'information_schema')"

	res, err := l.Query(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("discover live schema: %w", err)
	}

	grouped := map[string]models.Schema{}
	order := make([]string, 0)
	for _, row := range res.Rows {
		schemaName, _ := row["schema_name"].(string)
		objectName, _ := row["object_name"].(string)
		columnName, _ := row["column_name"].(string)
		pgType, _ := row["data_type"].(string)
		if objectName == "" || columnName == "" {
			continue
		}
		key := schemaName + "." + objectName
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], models.ColumnSchema{
			Name:     columnName,
			Dtype:    mapPGType(pgType),
			Nullable: true,
		})
	}

	tables := make([]models.TableSchema, 0, len(order))
	for _, name := range order {
		tables = append(tables, models.TableSchema{Name: name, Source: "live", Columns: grouped[name]})
	}
	return tables, nil
}

// mapPGType maps a PostgreSQL/Materialize type string to a normalized
// Dtype, grounded on original_source's _map_pg_type.
func mapPGType(pgType string) models.Dtype {
	t := strings.ToLower(strings.TrimSpace(pgType))
	switch t {
	case "text", "varchar", "character varying", "char", "uuid", "name":
		return models.DtypeString
	case "integer", "bigint", "smallint", "int4", "int8", "int2", "serial", "bigserial":
		return models.DtypeInt64
	case "real", "double precision", "float4", "float8", "numeric", "decimal":
		return models.DtypeFloat64
	case "timestamp", "timestamptz", "timestamp with time zone", "timestamp without time zone", "date":
		return models.DtypeDatetime
	case "boolean", "bool":
		return models.DtypeBool
	default:
		return models.DtypeString
	}
}
