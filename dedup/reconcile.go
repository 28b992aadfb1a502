// Package dedup decides which freshly crawled listings are new relative to
// the persisted collection and appends them to it.
package dedup

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"

	"github.com/use-agent/listwatch/models"
)

// Store loads and saves the whole listing collection.
type Store interface {
	Load() ([]models.Property, error)
	Save([]models.Property) error
}

// Reconciler merges crawl results into a Store.
type Reconciler struct {
	store  Store
	logger *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(store Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger}
}

// Reconcile returns the records of props that are not yet in the store,
// in encounter order, and persists the extended collection when there are
// any. Duplicates within props count once. Returned records keep their
// images; the store never sees them.
//
// A missing or unreadable store is treated as empty. A failed save is
// returned as an ErrCodeStoreWrite fault.
func (r *Reconciler) Reconcile(ctx context.Context, props []models.Property) ([]models.Property, error) {
	collection := r.load()
	idx := NewIndex(collection)

	diff := []models.Property{}
	for _, p := range props {
		if idx.Contains(p) {
			continue
		}
		idx.Add(p)
		collection = append(collection, p.WithoutImage())
		diff = append(diff, p)
	}

	if len(diff) == 0 {
		r.logger.Debug("no new listings, store left untouched", "known", idx.Len())
		return diff, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.store.Save(collection); err != nil {
		return nil, models.NewCrawlError(models.ErrCodeStoreWrite, "save listing collection", err)
	}
	r.logger.Info("listing collection saved", "total", len(collection), "new", len(diff))
	return diff, nil
}

func (r *Reconciler) load() []models.Property {
	collection, err := r.store.Load()
	switch {
	case err == nil:
		return collection
	case errors.Is(err, fs.ErrNotExist):
		r.logger.Warn("listing store does not exist yet, starting empty", "error", err)
	default:
		r.logger.Error("listing store unreadable, starting empty",
			"error", models.NewCrawlError(models.ErrCodeStoreRead, "load listing collection", err))
	}
	return nil
}
