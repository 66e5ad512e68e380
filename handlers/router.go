package handlers

import (
	"net/http"

	"places-server/middleware"

	"github.com/gorilla/mux"
)

type RouterConfig struct {
	Places *PlaceHandler
	Users  *UserHandler
	Auth   *AuthHandler
	Images *ImageStore

	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter
	// JWTSecret protects the mutating place routes when RequireAuth is set.
	JWTSecret   string
	RequireAuth bool
}

func NewRouter(cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = middleware.NotFoundHandler()
	r.MethodNotAllowedHandler = middleware.NotFoundHandler()

	r.Use(middleware.RequestLogger())
	r.Use(middleware.ErrorMiddleware())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	if cfg.RateLimiter != nil {
		r.Use(middleware.RateLimitMiddleware(cfg.RateLimiter))
	}

	// Uploaded images
	if cfg.Images != nil {
		r.PathPrefix("/uploads/images/").Handler(
			http.StripPrefix("/uploads/images/", http.FileServer(http.Dir(cfg.Images.Dir()))),
		).Methods("GET")
	}

	// Place routes
	placeRouter := r.PathPrefix("/api/places").Subrouter()
	placeRouter.HandleFunc("/user/{uid}", cfg.Places.GetPlacesByUserID).Methods("GET", "OPTIONS")
	placeRouter.HandleFunc("/{pid}", cfg.Places.GetPlaceByID).Methods("GET", "OPTIONS")

	protected := placeRouter.NewRoute().Subrouter()
	if cfg.RequireAuth {
		protected.Use(middleware.JWTMiddleware(cfg.JWTSecret))
	}
	protected.HandleFunc("", cfg.Places.CreatePlace).Methods("POST", "OPTIONS")
	protected.HandleFunc("/{pid}", cfg.Places.UpdatePlace).Methods("PATCH", "OPTIONS")
	protected.HandleFunc("/{pid}", cfg.Places.DeletePlace).Methods("DELETE", "OPTIONS")

	// User routes
	userRouter := r.PathPrefix("/api/users").Subrouter()
	userRouter.HandleFunc("", cfg.Users.GetUsers).Methods("GET", "OPTIONS")
	userRouter.HandleFunc("/signup", cfg.Auth.Signup).Methods("POST", "OPTIONS")
	userRouter.HandleFunc("/login", cfg.Auth.Login).Methods("POST", "OPTIONS")

	return r
}
