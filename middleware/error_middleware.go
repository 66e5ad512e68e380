package middleware

import (
	"encoding/json"
	"log"
	"net/http"

	"places-server/utils/errors"
)

// ErrorMiddleware turns panics into a 500 response. If the handler already
// started writing, the panic is only logged.
func ErrorMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := wrapWriter(w)
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Printf("Panic recovered on %s %s: %v", r.Method, r.URL.Path, rec)
					if rw.wroteHeader {
						return
					}
					WriteError(rw, errors.ErrInternal)
				}
			}()
			next.ServeHTTP(rw, r)
		})
	}
}

// NotFoundHandler answers unmatched routes.
func NotFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, errors.ErrRouteNotFound)
	})
}

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// WriteError writes err as a JSON {message, code} response. Internal details
// are logged for server errors and never sent to the client.
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *errors.APIError
	if !errors.As(err, &apiErr) {
		apiErr = errors.Wrap(err, errors.CodeInternal, errors.ErrInternal.Message, errors.ErrInternal.Status)
	}
	// Log server errors
	if apiErr.Status >= 500 {
		log.Printf("Server error %s (Details: %s)", apiErr.Error(), apiErr.Details)
	}

	WriteJSON(w, apiErr.Status, errorBody{Message: apiErr.Message, Code: apiErr.Code})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// statusWriter records whether headers went out and with which status.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func wrapWriter(w http.ResponseWriter) *statusWriter {
	if sw, ok := w.(*statusWriter); ok {
		return sw
	}
	return &statusWriter{ResponseWriter: w, status: http.StatusOK}
}

func (w *statusWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
