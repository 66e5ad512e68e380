package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":5000", c.HTTPAddr)
	assert.Equal(t, BackendMongo, c.StoreBackend)
	assert.Equal(t, 5*time.Second, c.CommitTimeout)
	assert.Equal(t, 5*time.Second, c.GeocodeTimeout)
	assert.Equal(t, 24*time.Hour, c.GeocodeCacheTTL)
	assert.Equal(t, []string{"*"}, c.AllowedOrigins)
	assert.Equal(t, int64(500000), c.MaxUploadBytes)
	assert.False(t, c.AuthRequired)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_BACKEND", BackendMemory)
	t.Setenv("GEOCODE_TIMEOUT", "250ms")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:3000,http://example.com")
	t.Setenv("AUTH_REQUIRED", "true")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, c.StoreBackend)
	assert.Equal(t, 250*time.Millisecond, c.GeocodeTimeout)
	assert.Equal(t, []string{"http://localhost:3000", "http://example.com"}, c.AllowedOrigins)
	assert.True(t, c.AuthRequired)
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	require.NoError(t, os.Unsetenv("JWT_SECRET"))

	_, err := Load()
	assert.Error(t, err)
}
