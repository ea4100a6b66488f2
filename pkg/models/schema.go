package models

// Dtype is the engine-internal normalized column type. Store-native type
// names are mapped onto this set on ingress from catalog queries.
type Dtype string

const (
	DtypeString   Dtype = "string"
	DtypeInt64    Dtype = "int64"
	DtypeFloat64  Dtype = "float64"
	DtypeBool     Dtype = "bool"
	DtypeDatetime Dtype = "datetime"
)

// ColumnSchema describes a single output column.
type ColumnSchema struct {
	Name        string `json:"name"`
	Dtype       Dtype  `json:"dtype"`
	Nullable    bool   `json:"nullable"`
	Description string `json:"description,omitempty"`
}

// Schema is an ordered list of columns — order is significant for SELECT
// emission and for the "output_schema(u) -> v's transform accepts it"
// invariant in spec.md §3.
type Schema []ColumnSchema

// ByName returns the first column with the given name, if present.
func (s Schema) ByName(name string) (ColumnSchema, bool) {
	for _, c := range s {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSchema{}, false
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Name
	}
	return out
}

// TableSchema describes one discoverable table/pattern in a backing
// store's catalog, normalized onto the engine's Dtype set. Grounded on
// original_source's app/schemas/schema.py TableSchema (SPEC_FULL.md §12
// "Schema catalog refresh").
type TableSchema struct {
	Name    string `json:"name"`
	Source  string `json:"source"` // "analytical" | "live" | "point"
	Columns Schema `json:"columns"`
}

// CatalogResponse is the full discovered catalog returned by GET /schema.
type CatalogResponse struct {
	Tables []TableSchema `json:"tables"`
}
