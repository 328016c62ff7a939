// Package store is the document-store layer: users and urls collections,
// with the compound unique index on (userId, alias) acting as the authority
// of record for registration conflicts.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linklytics/linklytics/internal"
	"github.com/linklytics/linklytics/internal/apperr"
)

type Store struct {
	urls  *mongo.Collection
	users *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{
		urls:  db.Collection("urls"),
		users: db.Collection("users"),
	}
}

// EnsureIndexes creates the uniqueness constraints the core relies on. Safe
// to call on every startup; index creation is idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.urls.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "alias", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return apperr.Upstream("create urls index", err)
	}
	_, err = s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "subject", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return apperr.Upstream("create users index", err)
	}
	return nil
}

// InsertURL inserts a new record. A duplicate-key violation surfaces as
// ErrAliasConflict: the pre-check in the resolver is optimistic only and two
// concurrent registrations may both pass it.
func (s *Store) InsertURL(ctx context.Context, rec *internal.URLRecord) error {
	_, err := s.urls.InsertOne(ctx, rec)
	if mongo.IsDuplicateKeyError(err) {
		return apperr.ErrAliasConflict
	}
	if err != nil {
		return apperr.Upstream("insert url", err)
	}
	return nil
}

// FindByAlias resolves an alias with no user scope (redirects carry no
// identity). When two users registered the same alias, the most recently
// created record wins.
func (s *Store) FindByAlias(ctx context.Context, alias string) (*internal.URLRecord, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	var rec internal.URLRecord
	err := s.urls.FindOne(ctx, bson.M{"alias": alias}, opts).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Upstream("find url by alias", err)
	}
	return &rec, nil
}

func (s *Store) FindByUserAndAlias(ctx context.Context, userID, alias string) (*internal.URLRecord, error) {
	var rec internal.URLRecord
	err := s.urls.FindOne(ctx, bson.M{"userId": userID, "alias": alias}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Upstream("find url by user and alias", err)
	}
	return &rec, nil
}

func (s *Store) FindByUser(ctx context.Context, userID string) ([]internal.URLRecord, error) {
	return s.findURLs(ctx, bson.M{"userId": userID})
}

func (s *Store) FindByUserAndTopic(ctx context.Context, userID, topic string) ([]internal.URLRecord, error) {
	return s.findURLs(ctx, bson.M{"userId": userID, "topic": topic})
}

func (s *Store) findURLs(ctx context.Context, filter bson.M) ([]internal.URLRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cur, err := s.urls.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.Upstream("find urls", err)
	}
	var recs []internal.URLRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, apperr.Upstream("decode urls", err)
	}
	return recs, nil
}

// AppendClick pushes ev onto the click log of the record matching alias.
// The match uses the same most-recently-created tie-break as FindByAlias so
// clicks land on the record the redirect actually resolved.
func (s *Store) AppendClick(ctx context.Context, alias string, ev internal.ClickEvent) error {
	opts := options.FindOneAndUpdate().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	err := s.urls.FindOneAndUpdate(ctx,
		bson.M{"alias": alias},
		bson.M{"$push": bson.M{"clickAnalytics": ev}},
		opts,
	).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.ErrNotFound
	}
	if err != nil {
		return apperr.Upstream("append click", err)
	}
	return nil
}

func (s *Store) FindUserBySubject(ctx context.Context, subject string) (*internal.User, error) {
	var user internal.User
	err := s.users.FindOne(ctx, bson.M{"subject": subject}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Upstream("find user", err)
	}
	return &user, nil
}

// InsertUser creates the user on first login. A concurrent first login may
// insert first; the duplicate-key error is treated as success since users
// are immutable once created.
func (s *Store) InsertUser(ctx context.Context, user *internal.User) error {
	_, err := s.users.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		return apperr.Upstream("insert user", err)
	}
	return nil
}
