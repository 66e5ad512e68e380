package services

import (
	"context"
	"log"
	"strings"
	"time"

	"places-server/models"
	"places-server/store"
	"places-server/utils/errors"
)

const (
	DefaultGeocodeTimeout = 5 * time.Second
	DefaultCommitTimeout  = 5 * time.Second
)

// PlaceService owns every write that touches a place. Creating and deleting a
// place also rewrites the creator's places list in the same transaction.
type PlaceService struct {
	store          store.Store
	geocoder       Geocoder
	events         EventPublisher
	geocodeTimeout time.Duration
	commitTimeout  time.Duration
}

func NewPlaceService(st store.Store, geocoder Geocoder, events EventPublisher, geocodeTimeout, commitTimeout time.Duration) *PlaceService {
	if events == nil {
		events = noopPublisher{}
	}
	if geocodeTimeout <= 0 {
		geocodeTimeout = DefaultGeocodeTimeout
	}
	if commitTimeout <= 0 {
		commitTimeout = DefaultCommitTimeout
	}
	return &PlaceService{
		store:          st,
		geocoder:       geocoder,
		events:         events,
		geocodeTimeout: geocodeTimeout,
		commitTimeout:  commitTimeout,
	}
}

type CreatePlaceRequest struct {
	Title       string `validate:"required"`
	Description string `validate:"required,min=5"`
	Address     string `validate:"required"`
	CreatorID   string `validate:"required"`
	ImagePath   string `validate:"required"`
}

type UpdatePlaceRequest struct {
	PlaceID     string `validate:"required"`
	Title       string `validate:"required"`
	Description string `validate:"required,min=5"`
	// ActorID is the authenticated caller, if any. When set it must match
	// the place's creator.
	ActorID string
}

type DeletePlaceRequest struct {
	PlaceID string `validate:"required"`
	ActorID string
}

func (s *PlaceService) GetPlace(ctx context.Context, placeID string) (models.Place, error) {
	place, err := s.store.FindPlace(ctx, placeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Place{}, errors.NotFound("Could not find place for the provided id.")
		}
		return models.Place{}, errors.Storage("Something went wrong, could not find a place.", err)
	}
	return place, nil
}

func (s *PlaceService) GetPlacesByUser(ctx context.Context, userID string) ([]models.Place, error) {
	_, places, err := s.store.FindUserWithPlaces(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, errors.Storage("Fetching places failed, please try again later.", err)
	}
	if len(places) == 0 {
		return nil, errors.NotFound("Could not find places for the provided user id.")
	}
	return places, nil
}

// CreatePlace geocodes the address, then inserts the place and appends its id
// to the creator's places list in one transaction. Nothing is written unless
// both halves commit.
func (s *PlaceService) CreatePlace(ctx context.Context, req CreatePlaceRequest) (models.Place, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	req.Address = strings.TrimSpace(req.Address)
	if err := validateRequest(req); err != nil {
		return models.Place{}, err
	}

	location, err := s.resolve(ctx, req.Address)
	if err != nil {
		return models.Place{}, err
	}

	creator, err := s.store.FindUser(ctx, req.CreatorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Place{}, errors.NotFound("Could not find user for provided id.")
		}
		return models.Place{}, errors.Storage("Creating place failed, please try again.", err)
	}

	place := models.Place{
		ID:          store.NewID(),
		Title:       req.Title,
		Description: req.Description,
		Address:     req.Address,
		Location:    location,
		Image:       req.ImagePath,
		Creator:     creator.ID,
	}

	err = s.inTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertPlace(ctx, place); err != nil {
			return err
		}
		return tx.ReplaceUserPlaces(ctx, creator.ID, creator.WithPlace(place.ID), creator.Version)
	})
	if err != nil {
		return models.Place{}, errors.Storage("Creating place failed, please try again.", err)
	}

	s.publish(ctx, SubjectPlaceCreated, place)
	return place, nil
}

// UpdatePlace changes title and description only. Location and creator are
// fixed at creation. A missing place is reported before invalid input.
func (s *PlaceService) UpdatePlace(ctx context.Context, req UpdatePlaceRequest) (models.Place, error) {
	place, err := s.GetPlace(ctx, req.PlaceID)
	if err != nil {
		return models.Place{}, err
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	if err := validateRequest(req); err != nil {
		return models.Place{}, err
	}
	if req.ActorID != "" && req.ActorID != place.Creator {
		return models.Place{}, errors.ErrForbidden
	}

	updated := place
	updated.Title = req.Title
	updated.Description = req.Description
	if err := s.store.ReplacePlace(ctx, updated); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Place{}, errors.NotFound("Could not find place for the provided id.")
		}
		return models.Place{}, errors.Storage("Something went wrong, could not update place.", err)
	}
	return updated, nil
}

// DeletePlace removes the place and detaches it from its creator in one
// transaction. It returns the deleted place so callers can clean up its image.
func (s *PlaceService) DeletePlace(ctx context.Context, req DeletePlaceRequest) (models.Place, error) {
	if err := validateRequest(req); err != nil {
		return models.Place{}, err
	}

	place, err := s.GetPlace(ctx, req.PlaceID)
	if err != nil {
		return models.Place{}, err
	}
	if req.ActorID != "" && req.ActorID != place.Creator {
		return models.Place{}, errors.ErrForbidden
	}

	creator, err := s.store.FindUser(ctx, place.Creator)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Place{}, errors.NotFound("Could not find the creator of this place.")
		}
		return models.Place{}, errors.Storage("Something went wrong, could not delete place.", err)
	}

	err = s.inTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.DeletePlace(ctx, place.ID); err != nil {
			return err
		}
		return tx.ReplaceUserPlaces(ctx, creator.ID, creator.WithoutPlace(place.ID), creator.Version)
	})
	if err != nil {
		return models.Place{}, errors.Storage("Something went wrong, could not delete place.", err)
	}

	s.publish(ctx, SubjectPlaceDeleted, place)
	return place, nil
}

// resolve bounds the geocoder call. Anything that is not already an address
// failure, a timeout included, counts as the service being unavailable.
func (s *PlaceService) resolve(ctx context.Context, address string) (models.Location, error) {
	ctx, cancel := context.WithTimeout(ctx, s.geocodeTimeout)
	defer cancel()

	location, err := s.geocoder.Resolve(ctx, address)
	if err == nil {
		return location, nil
	}
	if errors.IsGeocode(err) || errors.Is(err, errors.ErrInvalidInput) {
		return models.Location{}, err
	}
	return models.Location{}, errors.GeocodeUnavailable(err)
}

// inTransaction runs stage inside a transaction bounded by the commit timeout.
// Any error from stage or Commit leaves the store untouched.
func (s *PlaceService) inTransaction(ctx context.Context, stage func(ctx context.Context, tx store.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.commitTimeout)
	defer cancel()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Abort(context.WithoutCancel(ctx)); err != nil {
			log.Printf("Failed to abort transaction: %v", err)
		}
	}()

	if err := stage(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PlaceService) publish(ctx context.Context, subject string, place models.Place) {
	event := PlaceEvent{
		PlaceID:    place.ID,
		CreatorID:  place.Creator,
		Title:      place.Title,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, subject, event); err != nil {
		log.Printf("Failed to publish %s for place %s: %v", subject, place.ID, err)
	}
}
