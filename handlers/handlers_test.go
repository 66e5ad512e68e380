package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"places-server/models"
	"places-server/services"
	"places-server/store"
	"places-server/utils/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGeocoder struct {
	loc models.Location
	err error
}

func (g stubGeocoder) Resolve(context.Context, string) (models.Location, error) {
	return g.loc, g.err
}

type server struct {
	handler http.Handler
	store   *store.MemoryStore
	images  *ImageStore
	tokens  *services.TokenIssuer
}

func newServer(t *testing.T, geo services.Geocoder, requireAuth bool) *server {
	t.Helper()
	st := store.NewMemoryStore()
	images, err := NewImageStore(t.TempDir(), 500000)
	require.NoError(t, err)
	tokens := services.NewTokenIssuer("test-secret", time.Hour)
	placeService := services.NewPlaceService(st, geo, nil, time.Second, time.Second)
	userService := services.NewUserService(st, tokens)

	return &server{
		handler: NewRouter(RouterConfig{
			Places:         NewPlaceHandler(placeService, images),
			Users:          NewUserHandler(userService),
			Auth:           NewAuthHandler(userService, images),
			Images:         images,
			AllowedOrigins: []string{"*"},
			JWTSecret:      "test-secret",
			RequireAuth:    requireAuth,
		}),
		store:  st,
		images: images,
		tokens: tokens,
	}
}

func (s *server) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *server) signup(t *testing.T, email string) models.User {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/users/signup", map[string]string{
		"name":     "Test User1",
		"email":    email,
		"password": "1testers",
		"image":    "uploads/images/u1.png",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		User  models.User `json:"user"`
		Token string      `json:"token"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Token)
	return resp.User
}

func placeBody(creator string) map[string]string {
	return map[string]string{
		"title":       "Empire State Building",
		"description": "One of the most famous sky scrapers in the world!",
		"address":     "20 W 34th St., New York, NY 10001",
		"creator":     creator,
		"image":       "uploads/images/empire.png",
	}
}

func decodePlace(t *testing.T, rec *httptest.ResponseRecorder) models.Place {
	t.Helper()
	var resp struct {
		Place models.Place `json:"place"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Place
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Message
}

var empireState = models.Location{Lat: 40.7484, Lng: -73.9857}

func TestPlaceLifecycle(t *testing.T) {
	s := newServer(t, stubGeocoder{loc: empireState}, false)
	user := s.signup(t, "test1@test.com")

	rec := s.do(t, http.MethodPost, "/api/places", placeBody(user.ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodePlace(t, rec)
	assert.Equal(t, user.ID, created.Creator)
	assert.Equal(t, empireState, created.Location)

	rec = s.do(t, http.MethodGet, "/api/places/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created, decodePlace(t, rec))

	rec = s.do(t, http.MethodGet, "/api/places/user/"+user.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Places []models.Place `json:"places"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Equal(t, []models.Place{created}, list.Places)

	rec = s.do(t, http.MethodPatch, "/api/places/"+created.ID, map[string]string{
		"title":       "Empire State",
		"description": "Still very tall",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Empire State", decodePlace(t, rec).Title)

	rec = s.do(t, http.MethodDelete, "/api/places/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/places/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/places/user/"+user.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	stored, err := s.store.FindUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Places)
}

func TestCreatePlace_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		geo    stubGeocoder
		mutate func(map[string]string)
		status int
	}{
		{"empty address", stubGeocoder{loc: empireState}, func(b map[string]string) { b["address"] = "" }, http.StatusUnprocessableEntity},
		{"unknown creator", stubGeocoder{loc: empireState}, func(b map[string]string) { b["creator"] = "nobody" }, http.StatusNotFound},
		{"address not found", stubGeocoder{err: errors.GeocodeNotFound("x")}, func(map[string]string) {}, http.StatusUnprocessableEntity},
		{"geocoder down", stubGeocoder{err: errors.GeocodeUnavailable(nil)}, func(map[string]string) {}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(t, tt.geo, false)
			user := s.signup(t, "test1@test.com")
			body := placeBody(user.ID)
			tt.mutate(body)

			rec := s.do(t, http.MethodPost, "/api/places", body)
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, errorMessage(t, rec))

			places, err := s.store.FindPlacesByCreator(context.Background(), user.ID)
			require.NoError(t, err)
			assert.Empty(t, places)
		})
	}
}

func TestCreatePlace_MalformedJSON(t *testing.T) {
	s := newServer(t, stubGeocoder{loc: empireState}, false)
	req := httptest.NewRequest(http.MethodPost, "/api/places", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, path string, fields map[string]string, file []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		fw, err := mw.CreateFormFile("image", "upload.png")
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func uploadedFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestCreatePlace_MultipartUploadAndCleanup(t *testing.T) {
	s := newServer(t, stubGeocoder{loc: empireState}, false)
	user := s.signup(t, "test1@test.com")
	fields := placeBody(user.ID)
	delete(fields, "image")

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, multipartRequest(t, "/api/places", fields, pngBytes(t)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodePlace(t, rec)
	assert.Equal(t, ".png", filepath.Ext(created.Image))
	assert.Len(t, uploadedFiles(t, s.images.Dir()), 1)

	// Served back as a static file.
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/images/"+filepath.Base(created.Image), nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// A rejected request leaves no file behind.
	fields["creator"] = "nobody"
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, multipartRequest(t, "/api/places", fields, pngBytes(t)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Len(t, uploadedFiles(t, s.images.Dir()), 1)

	// Deleting the place removes its image.
	rec = s.do(t, http.MethodDelete, "/api/places/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, uploadedFiles(t, s.images.Dir()))
}

func TestCreatePlace_RejectsNonImageUpload(t *testing.T) {
	s := newServer(t, stubGeocoder{loc: empireState}, false)
	user := s.signup(t, "test1@test.com")
	fields := placeBody(user.ID)
	delete(fields, "image")

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, multipartRequest(t, "/api/places", fields, []byte("plain text, not an image")))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, uploadedFiles(t, s.images.Dir()))
}

func TestUsersEndpoints(t *testing.T) {
	s := newServer(t, stubGeocoder{loc: empireState}, false)

	rec := s.do(t, http.MethodGet, "/api/users", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	user := s.signup(t, "test1@test.com")

	rec = s.do(t, http.MethodGet, "/api/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	var list struct {
		Users []models.User `json:"users"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list.Users, 1)
	assert.Equal(t, user.ID, list.Users[0].ID)

	rec = s.do(t, http.MethodPost, "/api/users/signup", map[string]string{
		"name": "Other", "email": "test1@test.com", "password": "12345678", "image": "x.png",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/users/login", map[string]string{"email": "test1@test.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/users/login", map[string]string{"email": "test1@test.com", "password": "1testers"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	s := newServer(t, stubGeocoder{loc: empireState}, false)
	rec := s.do(t, http.MethodGet, "/api/nothing-here", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Could not find this route.", errorMessage(t, rec))
}

func TestRequireAuth(t *testing.T) {
	s := newServer(t, stubGeocoder{loc: empireState}, true)
	owner := s.signup(t, "owner@test.com")
	other := s.signup(t, "other@test.com")
	ownerToken, err := s.tokens.Issue(owner)
	require.NoError(t, err)
	otherToken, err := s.tokens.Issue(other)
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/api/places", placeBody(owner.ID))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The token decides the creator, not the body.
	rec = s.do(t, http.MethodPost, "/api/places", placeBody(other.ID), "Authorization", "Bearer "+ownerToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodePlace(t, rec)
	assert.Equal(t, owner.ID, created.Creator)

	rec = s.do(t, http.MethodDelete, "/api/places/"+created.ID, nil, "Authorization", "Bearer "+otherToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Reads stay public.
	rec = s.do(t, http.MethodGet, "/api/places/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/places/"+created.ID, nil, "Authorization", "Bearer "+ownerToken)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStoredImagesCannotBeReferencedByPath(t *testing.T) {
	s := newServer(t, stubGeocoder{loc: empireState}, false)
	user := s.signup(t, "test1@test.com")

	avatar := filepath.Join(s.images.Dir(), "avatar.png")
	require.NoError(t, os.WriteFile(avatar, pngBytes(t), 0o644))

	body := placeBody(user.ID)
	body["image"] = filepath.ToSlash(avatar)
	rec := s.do(t, http.MethodPost, "/api/places", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/users/signup", map[string]string{
		"name": "Other", "email": "other@test.com", "password": "12345678", "image": filepath.ToSlash(avatar),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	places, err := s.store.FindPlacesByCreator(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, places)
	assert.FileExists(t, avatar)
}

func TestImageStore_Owns(t *testing.T) {
	images, err := NewImageStore(t.TempDir(), 1024)
	require.NoError(t, err)

	assert.True(t, images.Owns(filepath.ToSlash(filepath.Join(images.Dir(), "a.png"))))
	assert.True(t, images.Owns(filepath.Join(images.Dir(), "sub", "..", "a.png")))
	assert.False(t, images.Owns(""))
	assert.False(t, images.Owns("uploads/images/a.png"))
	assert.False(t, images.Owns(filepath.Join(images.Dir(), "sub", "a.png")))
}

func TestCreatePlace_JPEGUploadKeepsJPEGExtension(t *testing.T) {
	s := newServer(t, stubGeocoder{loc: empireState}, false)
	user := s.signup(t, "test1@test.com")
	fields := placeBody(user.ID)
	delete(fields, "image")

	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, image.NewRGBA(image.Rect(0, 0, 2, 2)), nil))

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, multipartRequest(t, "/api/places", fields, jpg.Bytes()))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, ".jpeg", filepath.Ext(decodePlace(t, rec).Image))
}
