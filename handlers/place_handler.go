package handlers

import (
	"net/http"

	"places-server/middleware"
	"places-server/services"

	"github.com/gorilla/mux"
)

type PlaceHandler struct {
	placeService *services.PlaceService
	images       *ImageStore
}

func NewPlaceHandler(placeService *services.PlaceService, images *ImageStore) *PlaceHandler {
	return &PlaceHandler{placeService: placeService, images: images}
}

func (h *PlaceHandler) GetPlaceByID(w http.ResponseWriter, r *http.Request) {
	place, err := h.placeService.GetPlace(r.Context(), mux.Vars(r)["pid"])
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"place": place})
}

func (h *PlaceHandler) GetPlacesByUserID(w http.ResponseWriter, r *http.Request) {
	places, err := h.placeService.GetPlacesByUser(r.Context(), mux.Vars(r)["uid"])
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"places": places})
}

func (h *PlaceHandler) CreatePlace(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Address     string `json:"address"`
		Creator     string `json:"creator"`
		Image       string `json:"image"`
	}
	uploaded, err := decodeRequest(w, r, h.images, &input)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	imagePath, err := h.images.imagePath(input.Image, uploaded)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	// An authenticated caller always creates places for themselves.
	creator := input.Creator
	if userID, ok := middleware.UserIDFromContext(r.Context()); ok {
		creator = userID
	}

	place, err := h.placeService.CreatePlace(r.Context(), services.CreatePlaceRequest{
		Title:       input.Title,
		Description: input.Description,
		Address:     input.Address,
		CreatorID:   creator,
		ImagePath:   imagePath,
	})
	if err != nil {
		h.images.Remove(uploaded)
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, map[string]any{"place": place})
}

func (h *PlaceHandler) UpdatePlace(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if _, err := decodeRequest(w, r, h.images, &input); err != nil {
		middleware.WriteError(w, err)
		return
	}

	actorID, _ := middleware.UserIDFromContext(r.Context())
	place, err := h.placeService.UpdatePlace(r.Context(), services.UpdatePlaceRequest{
		PlaceID:     mux.Vars(r)["pid"],
		Title:       input.Title,
		Description: input.Description,
		ActorID:     actorID,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"place": place})
}

func (h *PlaceHandler) DeletePlace(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.UserIDFromContext(r.Context())
	place, err := h.placeService.DeletePlace(r.Context(), services.DeletePlaceRequest{
		PlaceID: mux.Vars(r)["pid"],
		ActorID: actorID,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	h.images.Remove(place.Image)
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"message": "Deleted place."})
}
