package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

type App struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":5000"`

	// Store
	StoreBackend  string        `envconfig:"STORE_BACKEND" default:"mongo"`
	MongoURI      string        `envconfig:"MONGODB_URI" default:"mongodb://localhost:27017/?replicaSet=rs0"`
	MongoDatabase string        `envconfig:"MONGODB_DATABASE" default:"mern"`
	CommitTimeout time.Duration `envconfig:"COMMIT_TIMEOUT" default:"5s"`

	// Geocoding; an empty REDIS_ADDR disables the cache
	GoogleAPIKey    string        `envconfig:"GOOGLE_API_KEY"`
	GeocoderURL     string        `envconfig:"GEOCODER_URL" default:"https://maps.googleapis.com/maps/api/geocode/json"`
	GeocodeTimeout  time.Duration `envconfig:"GEOCODE_TIMEOUT" default:"5s"`
	RedisAddr       string        `envconfig:"REDIS_ADDR"`
	RedisDB         int           `envconfig:"REDIS_DB" default:"0"`
	GeocodeCacheTTL time.Duration `envconfig:"GEOCODE_CACHE_TTL" default:"24h"`

	// Auth
	JWTSecret    string        `envconfig:"JWT_SECRET" required:"true"`
	JWTTTL       time.Duration `envconfig:"JWT_TTL" default:"1h"`
	AuthRequired bool          `envconfig:"AUTH_REQUIRED" default:"false"`

	// Events; an empty NATS_URL disables publishing
	NATSURL string `envconfig:"NATS_URL"`

	// HTTP
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
	UploadDir       string        `envconfig:"UPLOAD_DIR" default:"uploads/images"`
	MaxUploadBytes  int64         `envconfig:"MAX_UPLOAD_BYTES" default:"500000"`
	RateLimitRPS    float64       `envconfig:"RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst  int           `envconfig:"RATE_LIMIT_BURST" default:"40"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads an optional .env file and then the process environment.
func Load() (App, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment only")
	}
	var c App
	err := envconfig.Process("", &c)
	return c, err
}
