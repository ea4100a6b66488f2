package storeclients

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/vizflow/vizflow/pkg/models"
)

// PointClient answers direct key lookups against Redis without going
// through SQL at all (spec.md §4.3, GLOSSARY "Point lookup"). A point
// data_source's config names a key pattern (e.g. "latest:vwap") and the
// segment's params supply the lookup key (e.g. a symbol); the client joins
// them into a single Redis hash key and returns its fields as one row.
type PointClient struct {
	client *redis.Client
}

// NewPointClient constructs a PointClient over an existing Redis client
// (shared with the fast-store cache connection pool).
func NewPointClient(client *redis.Client) *PointClient {
	return &PointClient{client: client}
}

// Get looks up params["pattern"] + ":" + params["key"] as a Redis hash and
// returns its fields as a single-row QueryResult. A missing hash is not an
// error — it is a zero-row result, the same shape a SQL query with no
// matches would produce.
func (p *PointClient) Get(ctx context.Context, params map[string]any) (models.QueryResult, error) {
	pattern, _ := params["pattern"].(string)
	key, _ := params["key"].(string)
	if pattern == "" || key == "" {
		return models.QueryResult{}, nil
	}

	redisKey := pattern + ":" + key
	fields, err := p.client.HGetAll(ctx, redisKey).Result()
	if err != nil {
		return models.QueryResult{}, fmt.Errorf("point lookup %q: %w", redisKey, err)
	}
	if len(fields) == 0 {
		return models.QueryResult{}, nil
	}

	row := make(map[string]any, len(fields))
	columns := make([]models.ColumnSchema, 0, len(fields))
	for name, raw := range fields {
		row[name] = coerceScalar(raw)
		columns = append(columns, models.ColumnSchema{Name: name, Dtype: models.DtypeString})
	}

	return models.QueryResult{Columns: columns, Rows: []map[string]any{row}, TotalRows: 1}, nil
}

// coerceScalar tries numeric interpretations before falling back to the
// raw string, since Redis hash fields carry no type information of their
// own.
func coerceScalar(raw string) any {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
