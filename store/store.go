// Package store persists places and users and provides the multi-document
// transactions that keep a user's places list in step with place creators.
package store

import (
	"context"
	"errors"

	"places-server/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound     = errors.New("store: document not found")
	ErrDuplicateKey = errors.New("store: duplicate key")
	// ErrConflict means a concurrent writer changed a document the
	// transaction depended on. The whole transaction is discarded.
	ErrConflict = errors.New("store: write conflict")
)

// Store is the entity store used by the services. Single-document reads and
// writes go straight through; anything touching a place and its creator at
// once goes through Begin.
type Store interface {
	FindPlace(ctx context.Context, placeID string) (models.Place, error)
	FindPlacesByCreator(ctx context.Context, userID string) ([]models.Place, error)
	ReplacePlace(ctx context.Context, place models.Place) error

	FindUser(ctx context.Context, userID string) (models.User, error)
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
	// FindUserWithPlaces loads a user and its places, ordered as in User.Places.
	FindUserWithPlaces(ctx context.Context, userID string) (models.User, []models.Place, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	InsertUser(ctx context.Context, user models.User) error

	Begin(ctx context.Context) (Tx, error)
}

// Tx stages writes that become visible together on Commit. Abort discards
// them and is a no-op after Commit, so callers may always defer it.
type Tx interface {
	InsertPlace(ctx context.Context, place models.Place) error
	DeletePlace(ctx context.Context, placeID string) error
	// ReplaceUserPlaces rewrites the places list of userID, failing with
	// ErrConflict at the latest on Commit if the stored version is no longer
	// expectedVersion.
	ReplaceUserPlaces(ctx context.Context, userID string, places []string, expectedVersion int64) error
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}

// NewID returns a fresh document id.
func NewID() string {
	return primitive.NewObjectID().Hex()
}
