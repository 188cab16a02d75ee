package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	pkgmongo "github.com/dmitrymomot/profilekit/pkg/mongo"
	"github.com/dmitrymomot/profilekit/svc/profile"
)

// CollectionName is the collection profiles are stored in.
const CollectionName = "profiles"

// Collection is the subset of *mongo.Collection the store uses.
type Collection interface {
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) *mongo.SingleResult
	InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error)
	FindOneAndUpdate(ctx context.Context, filter, update any, opts ...options.Lister[options.FindOneAndUpdateOptions]) *mongo.SingleResult
	DeleteOne(ctx context.Context, filter any, opts ...options.Lister[options.DeleteOneOptions]) (*mongo.DeleteResult, error)
}

type document struct {
	ID           string    `bson:"_id"`
	UserID       string    `bson:"user_id"`
	Name         *string   `bson:"name"`
	Email        string    `bson:"email"`
	Country      *string   `bson:"country"`
	Bio          *string   `bson:"bio"`
	AvatarURL    *string   `bson:"avatar_url"`
	ProfileImage *string   `bson:"profile_image"`
	BannerImage  *string   `bson:"banner_image"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func (d document) toProfile() (*profile.Profile, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, errors.Join(profile.ErrNetwork, err)
	}
	return &profile.Profile{
		ID:           id,
		UserID:       d.UserID,
		Name:         d.Name,
		Email:        d.Email,
		Country:      d.Country,
		Bio:          d.Bio,
		AvatarURL:    d.AvatarURL,
		ProfileImage: d.ProfileImage,
		BannerImage:  d.BannerImage,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}, nil
}

// Store is a profile.Repository backed by MongoDB.
type Store struct {
	coll Collection
	now  func() time.Time
}

var _ profile.Repository = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for created_at on insert.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(coll Collection, opts ...Option) *Store {
	s := &Store{coll: coll, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open returns a store over the profiles collection of db with its indexes
// in place.
func Open(ctx context.Context, db *mongo.Database, opts ...Option) (*Store, error) {
	coll := db.Collection(CollectionName)
	if err := EnsureIndexes(ctx, coll); err != nil {
		return nil, err
	}
	return New(coll, opts...), nil
}

// EnsureIndexes creates the unique user_id index.
func EnsureIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("profiles_user_id_key"),
	})
	if err != nil {
		return errors.Join(profile.ErrNetwork, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, userID string) (*profile.Profile, error) {
	var doc document
	if err := s.coll.FindOne(ctx, bson.D{{Key: "user_id", Value: userID}}).Decode(&doc); err != nil {
		return nil, mapError(err)
	}
	return doc.toProfile()
}

func (s *Store) Create(ctx context.Context, userID, email string) (*profile.Profile, error) {
	// BSON dates carry millisecond precision.
	now := s.now().UTC().Truncate(time.Millisecond)
	doc := document{
		ID:        uuid.NewString(),
		UserID:    userID,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return nil, mapError(err)
	}
	return doc.toProfile()
}

func (s *Store) Update(ctx context.Context, userID string, patch profile.Patch) (*profile.Profile, error) {
	update := bson.D{{Key: "$currentDate", Value: bson.D{{Key: "updated_at", Value: true}}}}
	if cols := patch.Columns(); len(cols) > 0 {
		set := make(bson.D, 0, len(cols))
		for _, c := range cols {
			set = append(set, bson.E{Key: c.Name, Value: c.Value})
		}
		update = append(update, bson.E{Key: "$set", Value: set})
	}

	var doc document
	err := s.coll.FindOneAndUpdate(ctx,
		bson.D{{Key: "user_id", Value: userID}},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, mapError(err)
	}
	return doc.toProfile()
}

func (s *Store) Delete(ctx context.Context, userID string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.D{{Key: "user_id", Value: userID}}); err != nil {
		return mapError(err)
	}
	return nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return profile.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return errors.Join(profile.ErrConflict, err)
	case pkgmongo.IsNetworkError(err):
		return errors.Join(profile.ErrNetwork, err)
	default:
		return errors.Join(profile.ErrNetwork, errors.New("mongostore: command failed"), err)
	}
}
