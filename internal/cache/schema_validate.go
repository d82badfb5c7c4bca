package cache

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/procsearch/internal/model"
)

// columnQuerier is the narrow read-only surface schema validation needs;
// satisfied by *PostgresTier in production and by a fake in tests.
type columnQuerier interface {
	QueryColumns(ctx context.Context, table string) ([]string, error)
}

var errSchemaDrift = eris.New("cache: search_cache columns do not match the CacheRow contract")

// ValidateSchema compares the live search_cache table's columns against
// model.CacheRowColumns (§6: "cache row schema is a contract... refuses
// to start... on divergence"). Extra columns in the table are tolerated;
// a missing contract column is not.
func ValidateSchema(ctx context.Context, q columnQuerier, table string) error {
	actual, err := q.QueryColumns(ctx, table)
	if err != nil {
		return eris.Wrap(err, "cache: read information_schema.columns")
	}

	present := make(map[string]struct{}, len(actual))
	for _, c := range actual {
		present[c] = struct{}{}
	}

	var missing []string
	for _, want := range model.CacheRowColumns {
		if _, ok := present[want]; !ok {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return eris.Wrapf(errSchemaDrift, "missing columns: %v", missing)
	}
	return nil
}
