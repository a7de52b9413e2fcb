package version

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/storage"
)

// indexMu serialises read-modify-write cycles on index keys within the
// process. Stores shared across processes may lose concurrent updates.
var indexMu sync.Mutex

func metaKey(namespace, id string) string {
	return storage.Key(namespace, "workflow", id, "meta")
}

func indexKey(namespace string) string {
	return storage.Key(namespace, "workflows")
}

func readMeta(ctx context.Context, store storage.Store, namespace, id string) (Metadata, error) {
	b, err := store.Get(ctx, metaKey(namespace, id))
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(b, &meta); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}

func readIndex(ctx context.Context, store storage.Store, namespace string) ([]IndexEntry, error) {
	b, err := store.Get(ctx, indexKey(namespace))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []IndexEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	return entries, nil
}

func writeIndex(ctx context.Context, store storage.Store, namespace string, entries []IndexEntry) error {
	b, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return store.Set(ctx, indexKey(namespace), b, 0)
}

func upsertIndex(ctx context.Context, store storage.Store, meta Metadata) error {
	indexMu.Lock()
	defer indexMu.Unlock()

	entries, err := readIndex(ctx, store, meta.Namespace)
	if err != nil {
		return err
	}
	entry := IndexEntry{ID: meta.ID, Name: meta.Name, UpdatedAt: meta.UpdatedAt}
	i := slices.IndexFunc(entries, func(e IndexEntry) bool { return e.ID == meta.ID })
	if i >= 0 {
		if entries[i] == entry {
			return nil
		}
		entries[i] = entry
	} else {
		entries = append(entries, entry)
	}
	return writeIndex(ctx, store, meta.Namespace, entries)
}

// List returns the workflows saved under namespace, sorted by id.
func List(ctx context.Context, store storage.Store, namespace string) ([]IndexEntry, error) {
	entries, err := readIndex(ctx, store, namespace)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(entries, func(a, b IndexEntry) int { return strings.Compare(a.ID, b.ID) })
	return entries, nil
}

// Delete removes a workflow's metadata and its index entry. Deleting an
// unknown workflow is not an error.
func Delete(ctx context.Context, store storage.Store, namespace, id string) error {
	if err := store.Delete(ctx, metaKey(namespace, id)); err != nil {
		return &PersistenceError{WorkflowID: id, Op: "delete", Err: err}
	}

	indexMu.Lock()
	defer indexMu.Unlock()

	entries, err := readIndex(ctx, store, namespace)
	if err != nil {
		return &PersistenceError{WorkflowID: id, Op: "delete", Err: err}
	}
	kept := slices.DeleteFunc(entries, func(e IndexEntry) bool { return e.ID == id })
	if len(kept) == len(entries) {
		return nil
	}
	if err := writeIndex(ctx, store, namespace, kept); err != nil {
		return &PersistenceError{WorkflowID: id, Op: "delete", Err: err}
	}
	return nil
}
