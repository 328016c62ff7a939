// Package resolver orchestrates alias resolution (read-through cache in
// front of the store) and registration (optimistic conflict pre-check with
// the store's unique index as the authority).
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/linklytics/linklytics/internal"
	"github.com/linklytics/linklytics/internal/apperr"
	"github.com/linklytics/linklytics/internal/cache"
)

// Store is the slice of the document store the resolver needs.
type Store interface {
	FindByAlias(ctx context.Context, alias string) (*internal.URLRecord, error)
	FindByUserAndAlias(ctx context.Context, userID, alias string) (*internal.URLRecord, error)
	InsertURL(ctx context.Context, rec *internal.URLRecord) error
}

// Cache is the best-effort key/value layer; misses and failures look alike.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, val string, ttl time.Duration)
}

type Resolver struct {
	store      Store
	cache      Cache
	baseDomain string
}

func New(store Store, c Cache, baseDomain string) *Resolver {
	return &Resolver{store: store, cache: c, baseDomain: baseDomain}
}

// Resolve returns the record for an alias, cache first. The cached copy may
// carry a stale click log; only its longUrl is meaningful here. A miss falls
// through to the store and backfills the cache best-effort.
func (r *Resolver) Resolve(ctx context.Context, alias string) (*internal.URLRecord, error) {
	if raw, ok := r.cache.Get(ctx, cache.AliasKey(alias)); ok {
		var rec internal.URLRecord
		if err := json.Unmarshal([]byte(raw), &rec); err == nil {
			return &rec, nil
		}
		slog.Warn("corrupt alias cache entry, falling back to store", "alias", alias)
	}

	rec, err := r.store.FindByAlias(ctx, alias)
	if err != nil {
		return nil, err
	}
	r.backfill(ctx, rec)
	return rec, nil
}

func (r *Resolver) backfill(ctx context.Context, rec *internal.URLRecord) {
	body, err := json.Marshal(rec)
	if err != nil {
		slog.Error("error marshalling url record for cache", "alias", rec.Alias, "err", err)
		return
	}
	r.cache.Set(ctx, cache.AliasKey(rec.Alias), string(body), cache.AliasTTL)
}

type RegisterInput struct {
	UserID  string
	LongURL string
	Alias   string // optional; generated when empty
	Topic   string // optional; defaults to "general"
}

// Register creates a new URLRecord and returns it. The conflict check is
// scoped to the owning user; a duplicate-key violation from a concurrent
// registration surfaces as ErrAliasConflict all the same.
func (r *Resolver) Register(ctx context.Context, in RegisterInput) (*internal.URLRecord, error) {
	alias := in.Alias
	if alias == "" {
		var err error
		if alias, err = internal.GenerateAlias(); err != nil {
			return nil, err
		}
	}
	topic := in.Topic
	if topic == "" {
		topic = internal.DefaultTopic
	}

	_, err := r.store.FindByUserAndAlias(ctx, in.UserID, alias)
	if err == nil {
		return nil, apperr.ErrAliasConflict
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	rec := &internal.URLRecord{
		UserID:         in.UserID,
		Alias:          alias,
		LongURL:        in.LongURL,
		ShortURL:       r.baseDomain + "/" + alias,
		Topic:          topic,
		ClickAnalytics: []internal.ClickEvent{},
		CreatedAt:      time.Now().UTC(),
	}
	if err := r.store.InsertURL(ctx, rec); err != nil {
		return nil, err
	}

	// Read-your-writes: the fresh record is resolvable immediately even if
	// the store read path lags.
	r.backfill(ctx, rec)
	return rec, nil
}
