package webdav

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoBaseURL is returned when the client is built without a server URL
var ErrNoBaseURL = errors.New("webdav: base url missing")

// StatusError is returned when the server answers with an unexpected status
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webdav: %s /%s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsNotFound reports whether err is a 404 from the server
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsUnauthorized reports whether the server rejected the credentials
func IsUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized) || hasStatus(err, http.StatusForbidden)
}

func hasStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}
