package handlers

import (
	"net/http"

	"places-server/middleware"
	"places-server/models"
	"places-server/services"
)

type AuthHandler struct {
	userService *services.UserService
	images      *ImageStore
}

type authResponse struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}

func NewAuthHandler(userService *services.UserService, images *ImageStore) *AuthHandler {
	return &AuthHandler{userService: userService, images: images}
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Image    string `json:"image"`
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

	result, err := h.userService.Signup(r.Context(), services.SignupRequest{
		Name:      input.Name,
		Email:     input.Email,
		Password:  input.Password,
		ImagePath: imagePath,
	})
	if err != nil {
		h.images.Remove(uploaded)
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, authResponse{User: result.User, Token: result.Token})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if _, err := decodeRequest(w, r, h.images, &input); err != nil {
		middleware.WriteError(w, err)
		return
	}

	result, err := h.userService.Login(r.Context(), services.LoginRequest{
		Email:    input.Email,
		Password: input.Password,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, authResponse{User: result.User, Token: result.Token})
}
