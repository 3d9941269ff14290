// Package envelope writes the {status, message, data} JSON responses shared by every API handler.
package envelope

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Status values carried in the envelope.
const (
	StatusOK   = 1
	StatusFail = 0
)

// DefaultMaxBodyBytes bounds request bodies when callers pass a non-positive limit.
const DefaultMaxBodyBytes int64 = 1 << 20

// Response is the wire envelope.
type Response struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// Write encodes v with status code.
func Write(w http.ResponseWriter, code int, v Response) {
	if v.Data == nil {
		v.Data = struct{}{}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes a 200 success envelope.
func OK(w http.ResponseWriter, msg string, data any) {
	Write(w, http.StatusOK, Response{Status: StatusOK, Message: msg, Data: data})
}

// Fail writes a failure envelope with the given HTTP status.
func Fail(w http.ResponseWriter, code int, msg string) {
	Write(w, code, Response{Status: StatusFail, Message: msg})
}

// MethodNotAllowed writes 405 with an Allow header.
func MethodNotAllowed(w http.ResponseWriter, allow ...string) {
	for _, m := range allow {
		w.Header().Add("Allow", m)
	}
	Fail(w, http.StatusMethodNotAllowed, "method not allowed")
}

// RateLimited writes 429 with Retry-After (seconds, at least 1).
func RateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int64(retryAfter / time.Second)
	if retryAfter%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	Fail(w, http.StatusTooManyRequests, "too many requests")
}

// DecodeJSON decodes exactly one JSON object from the request body into dst.
// Unknown fields and trailing data are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errors.New("empty body")
	}
	defer func() { _ = r.Body.Close() }()

	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}

	body := http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	// Ensure there is no extra data after the first JSON value.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after JSON object")
	}
	return nil
}

// IsBodyTooLarge reports whether err came from an exceeded MaxBytesReader limit.
func IsBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
