package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"places-server/config"
	"places-server/handlers"
	"places-server/middleware"
	"places-server/services"
	"places-server/store"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Entity store
	var st store.Store
	switch cfg.StoreBackend {
	case config.BackendMemory:
		log.Println("Using in-memory store, data will not survive a restart")
		st = store.NewMemoryStore()
	case config.BackendMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		mongoStore, err := store.NewMongoStore(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		cancel()
		if err != nil {
			log.Fatalf("MongoDB connection failed: %v", err)
		}
		defer mongoStore.Close(context.Background())
		st = mongoStore
	default:
		log.Fatalf("Unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	// Geocoder, memoised in Redis when configured
	httpClient := &http.Client{Timeout: cfg.GeocodeTimeout}
	var geocoder services.Geocoder = services.NewGoogleGeocoder(httpClient, cfg.GeocoderURL, cfg.GoogleAPIKey)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		geocoder = services.NewCachedGeocoder(geocoder, redisClient, cfg.GeocodeCacheTTL)
	}

	// Place events
	var events services.EventPublisher
	if cfg.NATSURL != "" {
		publisher, err := services.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			log.Fatalf("NATS connection failed: %v", err)
		}
		defer publisher.Close()
		events = publisher
	}

	images, err := handlers.NewImageStore(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		log.Fatal(err)
	}

	tokens := services.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	placeService := services.NewPlaceService(st, geocoder, events, cfg.GeocodeTimeout, cfg.CommitTimeout)
	userService := services.NewUserService(st, tokens)

	router := handlers.NewRouter(handlers.RouterConfig{
		Places:         handlers.NewPlaceHandler(placeService, images),
		Users:          handlers.NewUserHandler(userService),
		Auth:           handlers.NewAuthHandler(userService, images),
		Images:         images,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimiter:    middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		JWTSecret:      cfg.JWTSecret,
		RequireAuth:    cfg.AuthRequired,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server starting on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
}
