package snapshot

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"hiring-data-sync/internal/errors"
	"hiring-data-sync/internal/storage"
)

const (
	keyTimeLayout = "20060102T150405.000000000Z"
	keySuffix     = ".snap"

	// LatestRef resolves to the newest snapshot of a table
	LatestRef = "latest"
)

// Key returns the storage key of a snapshot of table taken at t
func Key(table string, t time.Time) string {
	return fmt.Sprintf("%s/%s-%s%s", table, table, t.UTC().Format(keyTimeLayout), keySuffix)
}

// ParseKey extracts the table and creation time from a snapshot key
func ParseKey(key string) (string, time.Time, error) {
	key = storage.CleanKey(key)
	dir, file := path.Split(key)
	table := strings.TrimSuffix(dir, "/")
	if table == "" || !strings.HasSuffix(file, keySuffix) || !strings.HasPrefix(file, table+"-") {
		return "", time.Time{}, fmt.Errorf("%q is not a snapshot key", key)
	}

	stamp := strings.TrimSuffix(strings.TrimPrefix(file, table+"-"), keySuffix)
	t, err := time.Parse(keyTimeLayout, stamp)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%q has an invalid timestamp: %w", key, err)
	}
	return table, t, nil
}

// Entry is a listed snapshot
type Entry struct {
	Ref       string
	Table     string
	CreatedAt time.Time
	Size      int64
}

// Catalog lists and resolves snapshots kept in a store
type Catalog struct {
	store storage.Store
}

// NewCatalog creates a catalog over store
func NewCatalog(store storage.Store) *Catalog {
	return &Catalog{store: store}
}

// List returns the snapshots of table, newest first. Objects that do not
// follow the key naming are skipped.
func (c *Catalog) List(ctx context.Context, table string) ([]Entry, error) {
	objects, err := c.store.List(ctx, table+"/")
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, obj := range objects {
		t, created, err := ParseKey(obj.Key)
		if err != nil || t != table {
			continue
		}
		entries = append(entries, Entry{Ref: obj.Key, Table: t, CreatedAt: created, Size: obj.Size})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	return entries, nil
}

// Latest returns the newest snapshot of table
func (c *Catalog) Latest(ctx context.Context, table string) (*Entry, error) {
	entries, err := c.List(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.NewStorageReadError(fmt.Sprintf("no snapshots found for table %s", table), nil)
	}
	return &entries[0], nil
}

// Resolve turns a user-supplied reference into a storage key. "latest" and
// an empty reference select the newest snapshot of table.
func (c *Catalog) Resolve(ctx context.Context, table, ref string) (string, error) {
	if ref == "" || ref == LatestRef {
		latest, err := c.Latest(ctx, table)
		if err != nil {
			return "", err
		}
		return latest.Ref, nil
	}
	return storage.CleanKey(ref), nil
}
