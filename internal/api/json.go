package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"routecap/internal/model"
	"routecap/internal/obs"
	"routecap/internal/store"
)

const maxBodyBytes = 1 << 20

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps engine errors to problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *model.ValidationError
		ie *model.InsufficientStopsError
		nf *model.NotFoundError
		ce *model.ComputationError
	)
	switch {
	case errors.As(err, &ve):
		writeProblem(w, http.StatusBadRequest, "Invalid request", ve.Error(), r.URL.Path)
	case errors.As(err, &ie):
		writeProblem(w, http.StatusBadRequest, "Not enough trips", ie.Error(), r.URL.Path)
	case errors.As(err, &nf), errors.Is(err, store.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not found", err.Error(), r.URL.Path)
	case errors.As(err, &ce):
		log.Printf("req_id=%s path=%s computation error: %v", obs.RequestID(r.Context()), r.URL.Path, err)
		writeProblem(w, http.StatusInternalServerError, "Optimization failed", ce.Error(), r.URL.Path)
	case r.Context().Err() != nil && errors.Is(err, r.Context().Err()):
		writeProblem(w, http.StatusServiceUnavailable, "Request cancelled", err.Error(), r.URL.Path)
	default:
		log.Printf("req_id=%s path=%s internal error: %v", obs.RequestID(r.Context()), r.URL.Path, err)
		writeProblem(w, http.StatusInternalServerError, "Internal error", "", r.URL.Path)
	}
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return &model.ValidationError{Field: "body", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}
