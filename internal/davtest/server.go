// Package davtest runs an in-memory WebDAV server for tests.
package davtest

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"strings"
	"sync"
	"testing"

	"golang.org/x/net/webdav"
)

// Prefix is the path under which the server mounts its collection tree
const Prefix = "/dav"

// Credentials accepted by servers created with New
const (
	Username = "alice"
	Password = "s3cret"
)

// Server is an httptest WebDAV server whose file ETags are quoted MD5 digests
type Server struct {
	*httptest.Server

	fs webdav.FileSystem

	mu       sync.Mutex
	requests map[string][]string // method -> request paths
	faults   []fault
}

type fault struct {
	method string
	suffix string
	status int
}

// New starts a server requiring Username/Password and closes it when the test ends
func New(t *testing.T) *Server {
	t.Helper()

	s := &Server{
		fs:       md5FS{webdav.NewMemFS()},
		requests: make(map[string][]string),
	}
	handler := &webdav.Handler{
		Prefix:     Prefix,
		FileSystem: s.fs,
		LockSystem: webdav.NewMemLS(),
	}

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != Username || pass != Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="davtest"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		s.mu.Lock()
		s.requests[r.Method] = append(s.requests[r.Method], r.URL.Path)
		status := 0
		for _, f := range s.faults {
			if f.method == r.Method && strings.HasSuffix(r.URL.Path, f.suffix) {
				status = f.status
				break
			}
		}
		s.mu.Unlock()

		if status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)

	return s
}

// BaseURL is the URL clients should be configured with
func (s *Server) BaseURL() string {
	return s.URL + Prefix
}

// Fail makes requests with method whose path ends in suffix answer status
func (s *Server) Fail(method, suffix string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, fault{method: method, suffix: suffix, status: status})
}

// ClearFaults removes all injected failures
func (s *Server) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = nil
}

// Requests returns the paths requested with method since the last Reset
func (s *Server) Requests(method string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests[method]...)
}

// Count returns how many requests used method since the last Reset
func (s *Server) Count(method string) int {
	return len(s.Requests(method))
}

// Reset forgets recorded requests
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = make(map[string][]string)
}

// Put stores content at p, creating parent collections
func (s *Server) Put(t *testing.T, p string, content string) {
	t.Helper()
	ctx := context.Background()
	p = "/" + strings.Trim(p, "/")

	if err := s.mkdirAll(ctx, path.Dir(p)); err != nil {
		t.Fatalf("davtest: mkdir %s: %v", path.Dir(p), err)
	}
	f, err := s.fs.OpenFile(ctx, p, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		t.Fatalf("davtest: open %s: %v", p, err)
	}
	if _, err := io.WriteString(f, content); err != nil {
		t.Fatalf("davtest: write %s: %v", p, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("davtest: close %s: %v", p, err)
	}
}

// Mkdir creates a collection and its parents
func (s *Server) Mkdir(t *testing.T, p string) {
	t.Helper()
	if err := s.mkdirAll(context.Background(), "/"+strings.Trim(p, "/")); err != nil {
		t.Fatalf("davtest: mkdir %s: %v", p, err)
	}
}

// Get returns the content stored at p and whether it exists
func (s *Server) Get(t *testing.T, p string) (string, bool) {
	t.Helper()
	f, err := s.fs.OpenFile(context.Background(), "/"+strings.Trim(p, "/"), os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false
		}
		t.Fatalf("davtest: open %s: %v", p, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("davtest: read %s: %v", p, err)
	}
	return string(data), true
}

// IsDir reports whether p is an existing collection
func (s *Server) IsDir(p string) bool {
	fi, err := s.fs.Stat(context.Background(), "/"+strings.Trim(p, "/"))
	return err == nil && fi.IsDir()
}

// ETag returns the MD5 hex digest the server reports for content
func ETag(content string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(content)))
}

func (s *Server) mkdirAll(ctx context.Context, dir string) error {
	dir = strings.Trim(dir, "/")
	if dir == "" || dir == "." {
		return nil
	}
	cur := ""
	for _, seg := range strings.Split(dir, "/") {
		cur += "/" + seg
		if err := s.fs.Mkdir(ctx, cur, 0777); err != nil && !errors.Is(err, os.ErrExist) {
			if fi, statErr := s.fs.Stat(ctx, cur); statErr == nil && fi.IsDir() {
				continue
			}
			return err
		}
	}
	return nil
}

// md5FS reports quoted MD5 digests as file ETags
type md5FS struct {
	webdav.FileSystem
}

func (fs md5FS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	f, err := fs.FileSystem.OpenFile(ctx, name, flag, perm)
	if err != nil {
		return nil, err
	}
	return md5File{File: f, fs: fs.FileSystem, name: name}, nil
}

func (fs md5FS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	fi, err := fs.FileSystem.Stat(ctx, name)
	if err != nil {
		return nil, err
	}
	return md5Info{FileInfo: fi, fs: fs.FileSystem, name: name}, nil
}

type md5File struct {
	webdav.File
	fs   webdav.FileSystem
	name string
}

func (f md5File) Stat() (os.FileInfo, error) {
	fi, err := f.File.Stat()
	if err != nil {
		return nil, err
	}
	return md5Info{FileInfo: fi, fs: f.fs, name: f.name}, nil
}

type md5Info struct {
	os.FileInfo
	fs   webdav.FileSystem
	name string
}

// ETag implements webdav.ETager
func (fi md5Info) ETag(ctx context.Context) (string, error) {
	if fi.IsDir() {
		return "", webdav.ErrNotImplemented
	}
	f, err := fi.fs.OpenFile(ctx, fi.name, os.O_RDONLY, 0)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf(`"%x"`, h.Sum(nil)), nil
}
