package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/procsearch/internal/model"
)

// FileTier is the most-local tier of the cascade: a plain directory of
// one JSON file per params_hash. It exists to survive both a Postgres
// and a Redis outage at once, at the cost of no cross-replica sharing.
type FileTier struct {
	dir string
}

// NewFileTier creates the tier rooted at dir, creating it if necessary.
func NewFileTier(dir string) (*FileTier, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "file cache: mkdir")
	}
	return &FileTier{dir: dir}, nil
}

func (t *FileTier) Name() TierName { return TierFile }

func (t *FileTier) path(paramsHash string) string {
	return filepath.Join(t.dir, paramsHash+".json")
}

func (t *FileTier) Get(ctx context.Context, paramsHash string) (*model.CacheRow, error) {
	b, err := os.ReadFile(t.path(paramsHash))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "file cache: read")
	}
	var row model.CacheRow
	if err := json.Unmarshal(b, &row); err != nil {
		return nil, eris.Wrap(err, "file cache: unmarshal")
	}
	return &row, nil
}

func (t *FileTier) Put(ctx context.Context, row model.CacheRow) error {
	b, err := json.Marshal(row)
	if err != nil {
		return eris.Wrap(err, "file cache: marshal")
	}
	tmp := t.path(row.ParamsHash) + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return eris.Wrap(err, "file cache: write")
	}
	return os.Rename(tmp, t.path(row.ParamsHash))
}

func (t *FileTier) Health(ctx context.Context) error {
	_, err := os.Stat(t.dir)
	return err
}
