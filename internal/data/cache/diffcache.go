package cache

import (
	"encoding/json"
	"fmt"

	"upgradeimpact/internal/engine/apidiff"
)

// DiffCache stores API diff results for a (package, old, new) triple.
// Entries never expire.
type DiffCache struct {
	store *Store
}

func NewDiffCache(store *Store) *DiffCache {
	return &DiffCache{store: store}
}

func diffKey(pkg, oldVersion, newVersion string) string {
	return fmt.Sprintf("api_diff:%s:%s:%s", pkg, oldVersion, newVersion)
}

// Get returns the cached changes. A malformed entry is a miss.
func (c *DiffCache) Get(pkg, oldVersion, newVersion string) ([]apidiff.Change, bool) {
	var raw json.RawMessage
	if !c.store.Get(KindAPIDiff, diffKey(pkg, oldVersion, newVersion), 0, &raw) {
		return nil, false
	}
	changes, err := apidiff.Decode(raw)
	if err != nil {
		c.store.logger.Debug("discarding malformed diff cache entry", "package", pkg, "error", err)
		return nil, false
	}
	return changes, true
}

func (c *DiffCache) Put(pkg, oldVersion, newVersion string, changes []apidiff.Change) error {
	data, err := apidiff.Encode(changes)
	if err != nil {
		return err
	}
	return c.store.Set(KindAPIDiff, diffKey(pkg, oldVersion, newVersion), json.RawMessage(data))
}
