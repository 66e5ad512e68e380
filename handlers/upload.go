package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"places-server/utils/errors"

	"github.com/google/uuid"
)

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpeg",
}

// ImageStore saves uploaded images under dir with random names. Stored paths
// are what places and users reference.
type ImageStore struct {
	dir      string
	maxBytes int64
}

func NewImageStore(dir string, maxBytes int64) (*ImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &ImageStore{dir: filepath.Clean(dir), maxBytes: maxBytes}, nil
}

func (s *ImageStore) Dir() string {
	return s.dir
}

// Save writes the uploaded file and returns its path.
func (s *ImageStore) Save(file multipart.File, header *multipart.FileHeader) (string, error) {
	if header.Size > s.maxBytes {
		return "", errors.Validation("Invalid image, the file is too large.")
	}
	sniff := make([]byte, 512)
	n, err := io.ReadFull(file, sniff)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", errors.Validation("Invalid image.", err.Error())
	}
	ext, ok := imageExtensions[http.DetectContentType(sniff[:n])]
	if !ok {
		return "", errors.Validation("Invalid image, only png, jpg and jpeg are allowed.")
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "Could not store image.", http.StatusInternalServerError)
	}

	path := filepath.Join(s.dir, uuid.NewString()+ext)
	out, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "Could not store image.", http.StatusInternalServerError)
	}
	defer out.Close()
	if _, err := io.Copy(out, io.LimitReader(file, s.maxBytes)); err != nil {
		os.Remove(path)
		return "", errors.Wrap(err, errors.CodeInternal, "Could not store image.", http.StatusInternalServerError)
	}
	return filepath.ToSlash(path), nil
}

// Owns reports whether path points into the upload dir.
func (s *ImageStore) Owns(path string) bool {
	if path == "" {
		return false
	}
	return filepath.Dir(filepath.Clean(filepath.FromSlash(path))) == s.dir
}

// imagePath picks the stored image for a request. A freshly uploaded file
// wins. A path given as a plain field may not point into the upload dir, since
// files there belong to the request that uploaded them.
func (s *ImageStore) imagePath(field, uploaded string) (string, error) {
	if uploaded != "" {
		return uploaded, nil
	}
	if s.Owns(field) {
		return "", errors.Validation("Invalid image, upload the file instead of referencing a stored one.")
	}
	return field, nil
}

// Remove deletes an image previously returned by Save. Paths outside the
// upload dir are ignored.
func (s *ImageStore) Remove(path string) {
	if !s.Owns(path) {
		return
	}
	clean := filepath.Clean(filepath.FromSlash(path))
	if err := os.Remove(clean); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to remove image %s: %v", clean, err)
	}
}

// decodeRequest fills dst from a JSON body or from multipart form fields.
// For multipart requests an "image" file part is saved and its path returned.
func decodeRequest(w http.ResponseWriter, r *http.Request, images *ImageStore, dst any) (string, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			return "", errors.Validation("Invalid inputs passed, please check your data.", err.Error())
		}
		return "", nil
	}

	// Form fields plus the image, with headroom for multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, images.maxBytes+1<<20)
	if err := r.ParseMultipartForm(images.maxBytes); err != nil {
		return "", errors.Validation("Invalid inputs passed, please check your data.", err.Error())
	}
	fields := map[string]string{}
	for key, values := range r.MultipartForm.Value {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", errors.ErrInvalidInput
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return "", errors.Validation("Invalid inputs passed, please check your data.", err.Error())
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", errors.Validation("Invalid image.", err.Error())
	}
	defer file.Close()
	return images.Save(file, header)
}
