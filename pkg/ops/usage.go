package ops

import (
	"encoding/json"

	"github.com/emanuelteklu/cc-sidecar/pkg/errors"
	"github.com/emanuelteklu/cc-sidecar/pkg/filestore"
)

// Usage reads the token-usage report.
type Usage struct {
	store *filestore.Store
	path  string
}

func NewUsage(store *filestore.Store, path string) *Usage {
	return &Usage{store: store, path: path}
}

// Get returns the report as stored.
func (u *Usage) Get() (json.RawMessage, error) {
	raw, err := u.store.ReadRaw(u.path)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			return nil, errors.Wrap(err, errors.ErrCodeNotFound, "token usage missing").
				WithUserMessage("Token usage file not found")
		}
		return nil, err
	}
	return raw, nil
}
