// Package mongostore is a MongoDB backend for research requests and users.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jonathan/market-research/internal/store"
	"github.com/jonathan/market-research/internal/types"
)

const (
	requestsCollection = "research_requests"
	usersCollection    = "users"

	// maxPatchAttempts bounds optimistic retries of Update when another writer
	// bumps the document version between read and replace.
	maxPatchAttempts = 5
)

// Store implements store.RequestStore and store.UserStore on MongoDB.
// Writes are optimistic: a document carries a version that every replace
// must match.
type Store struct {
	client   *mongo.Client
	requests *mongo.Collection
	users    *mongo.Collection
	now      func() time.Time
}

// Connect dials uri, verifies the connection and ensures indexes exist.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := New(client, database)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps an existing client.
func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:   client,
		requests: db.Collection(requestsCollection),
		users:    db.Collection(usersCollection),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes creates the listing, sweeper and unique email indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.requests.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updatedAt", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create request indexes: %w", err)
	}
	_, err = s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "emailLower", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Create implements store.RequestStore.
func (s *Store) Create(ctx context.Context, req *types.ResearchRequest) error {
	if err := req.CheckInvariants(); err != nil {
		return err
	}
	_, err := s.requests.InsertOne(ctx, toRequestDoc(req, 1))
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to insert research request: %w", err)
	}
	return nil
}

// Get implements store.RequestStore.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*types.ResearchRequest, error) {
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.toRequest(), nil
}

// Update implements store.RequestStore.
func (s *Store) Update(ctx context.Context, id uuid.UUID, patch store.Patch) (*types.ResearchRequest, error) {
	return s.mutate(ctx, id, func(cur *types.ResearchRequest) (*types.ResearchRequest, error) {
		return store.ApplyPatch(cur, patch, s.now())
	})
}

// Transition implements store.RequestStore.
func (s *Store) Transition(ctx context.Context, id uuid.UUID, from, to types.Status, patch store.Patch) (*types.ResearchRequest, error) {
	return s.mutate(ctx, id, func(cur *types.ResearchRequest) (*types.ResearchRequest, error) {
		return store.ApplyTransition(cur, from, to, patch, s.now())
	})
}

// mutate reads the document, applies fn and replaces it if the version is unchanged.
// A version mismatch re-reads and retries, so a transition whose precondition no
// longer holds fails inside fn with store.ErrConflict.
func (s *Store) mutate(ctx context.Context, id uuid.UUID, fn func(*types.ResearchRequest) (*types.ResearchRequest, error)) (*types.ResearchRequest, error) {
	for attempt := 0; attempt < maxPatchAttempts; attempt++ {
		cur, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		next, err := fn(cur.toRequest())
		if err != nil {
			return nil, err
		}
		res, err := s.requests.ReplaceOne(ctx,
			bson.M{"_id": cur.ID, "version": cur.Version},
			toRequestDoc(next, cur.Version+1),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update research request: %w", err)
		}
		if res.MatchedCount == 1 {
			return next, nil
		}
	}
	return nil, fmt.Errorf("%w: research request %s kept changing", store.ErrConflict, id)
}

func (s *Store) load(ctx context.Context, id uuid.UUID) (*requestDoc, error) {
	var doc requestDoc
	err := s.requests.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get research request: %w", err)
	}
	return &doc, nil
}

// List implements store.RequestStore.
func (s *Store) List(ctx context.Context, owner uuid.UUID) ([]*types.ResearchRequest, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetProjection(bson.M{"results": 0})
	return s.find(ctx, bson.M{"owner": owner.String()}, opts)
}

// Delete implements store.RequestStore.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.requests.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("failed to delete research request: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListStale implements store.RequestStore.
func (s *Store) ListStale(ctx context.Context, status types.Status, olderThan time.Time) ([]*types.ResearchRequest, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: 1}}).
		SetProjection(bson.M{"results": 0})
	return s.find(ctx, bson.M{
		"status":    string(status),
		"updatedAt": bson.M{"$lt": olderThan},
	}, opts)
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*types.ResearchRequest, error) {
	cursor, err := s.requests.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list research requests: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	out := make([]*types.ResearchRequest, 0)
	for cursor.Next(ctx) {
		var doc requestDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode research request: %w", err)
		}
		out = append(out, doc.toRequest())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate research requests: %w", err)
	}
	return out, nil
}

// CreateUser implements store.UserStore.
func (s *Store) CreateUser(ctx context.Context, user *store.User) error {
	_, err := s.users.InsertOne(ctx, toUserDoc(user))
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUser implements store.UserStore.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*store.User, error) {
	return s.findUser(ctx, bson.M{"_id": id.String()})
}

// GetUserByEmail implements store.UserStore.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.findUser(ctx, bson.M{"emailLower": strings.ToLower(email)})
}

// UpdateUser implements store.UserStore.
func (s *Store) UpdateUser(ctx context.Context, id uuid.UUID, name, company *string) (*store.User, error) {
	set := bson.M{"updatedAt": s.now()}
	if name != nil {
		set["name"] = *name
	}
	if company != nil {
		set["company"] = *company
	}

	var doc userDoc
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return doc.toUser()
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*store.User, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return doc.toUser()
}

var (
	_ store.RequestStore = (*Store)(nil)
	_ store.UserStore    = (*Store)(nil)
)
