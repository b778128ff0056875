package webdav

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/sdejongh/davsync/pkg/ratelimit"
	"github.com/sdejongh/davsync/pkg/storage"
)

// DefaultTimeout bounds a single request, body transfer included
const DefaultTimeout = 5 * time.Minute

// Options configures a Client
type Options struct {
	BaseURL            string
	Username           string
	Password           string
	Timeout            time.Duration
	UserAgent          string
	InsecureSkipVerify bool

	// BandwidthLimit caps file bodies in bytes per second, shared by
	// uploads and downloads. 0 means unlimited.
	BandwidthLimit int64
}

// Client speaks the subset of WebDAV needed to mirror a directory tree.
// Credentials are sent pre-emptively with every request and nothing is
// retried; the sync engine decides what a failure means.
type Client struct {
	http     *req.Client
	baseURL  string // without trailing slash
	basePath string // decoded path component of baseURL, normalised
	username string
	password string
	agent    string
	limiter  *ratelimit.Limiter
}

// New creates a client for the server at opts.BaseURL
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, ErrNoBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("webdav: invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("webdav: unsupported scheme %q", u.Scheme)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	agent := opts.UserAgent
	if agent == "" {
		agent = "davsync"
	}

	hc := req.C().
		SetTimeout(timeout).
		SetCommonRetryCount(0).
		SetUserAgent(agent).
		DisableAutoDecode()
	if opts.Username != "" || opts.Password != "" {
		hc.SetCommonBasicAuth(opts.Username, opts.Password)
	}
	if opts.InsecureSkipVerify {
		hc.EnableInsecureSkipVerify()
	}

	return &Client{
		http:     hc,
		baseURL:  base,
		basePath: NormalizePath(u.Path),
		username: opts.Username,
		password: opts.Password,
		agent:    agent,
		limiter:  ratelimit.NewLimiter(opts.BandwidthLimit),
	}, nil
}

// BandwidthLimit returns the transfer cap in bytes per second, 0 if unlimited
func (c *Client) BandwidthLimit() int64 {
	return c.limiter.Rate()
}

// BaseURL returns the server URL without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// resourceURL builds the absolute URL of a resource path
func (c *Client) resourceURL(p string) string {
	return c.baseURL + "/" + EncodePath(p)
}

// collectionURL is resourceURL with a trailing slash, avoiding redirects
// that would turn PROPFIND into GET
func (c *Client) collectionURL(p string) string {
	u := c.resourceURL(p)
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}

// TestConnection reports whether the server answers an OPTIONS request
// with the configured credentials
func (c *Client) TestConnection(ctx context.Context) bool {
	resp, err := c.http.R().SetContext(ctx).Send(http.MethodOptions, c.collectionURL(""))
	if err != nil {
		return false
	}
	return resp.IsSuccessState()
}

// ListDirectory returns the immediate children of a collection.
// The collection itself is not part of the result.
func (c *Client) ListDirectory(ctx context.Context, remotePath string) ([]Resource, error) {
	remotePath = NormalizePath(remotePath)
	resources, err := c.propfind(ctx, remotePath, "1", c.collectionURL(remotePath))
	if err != nil {
		return nil, err
	}

	children := resources[:0]
	for _, r := range resources {
		if r.Path == "" || r.Path == remotePath {
			continue
		}
		children = append(children, r)
	}
	return children, nil
}

// ListDirectoryRecursive walks a collection depth-first and returns every
// file below it. Collections are visited once even if the server lists
// them under differently formatted paths.
func (c *Client) ListDirectoryRecursive(ctx context.Context, remotePath string) ([]Resource, error) {
	var files []Resource
	visited := make(map[string]bool)

	var walk func(p string) error
	walk = func(p string) error {
		p = NormalizePath(p)
		if visited[p] {
			return nil
		}
		visited[p] = true

		if err := ctx.Err(); err != nil {
			return err
		}

		children, err := c.ListDirectory(ctx, p)
		if err != nil {
			return err
		}
		for _, child := range children {
			child.Path = NormalizePath(child.Path)
			if child.Path == p {
				continue
			}
			if child.IsDirectory {
				if err := walk(child.Path); err != nil {
					return err
				}
				continue
			}
			files = append(files, child)
		}
		return nil
	}

	if err := walk(remotePath); err != nil {
		return nil, err
	}
	return files, nil
}

// GetResourceInfo returns the properties of a single resource, or nil when
// it does not exist
func (c *Client) GetResourceInfo(ctx context.Context, remotePath string) (*Resource, error) {
	remotePath = NormalizePath(remotePath)
	resources, err := c.propfind(ctx, remotePath, "0", c.resourceURL(remotePath))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	for i := range resources {
		if resources[i].Path == remotePath {
			return &resources[i], nil
		}
	}
	if len(resources) > 0 {
		res := resources[0]
		res.Path = remotePath
		return &res, nil
	}
	return nil, nil
}

// Exists reports whether a resource exists
func (c *Client) Exists(ctx context.Context, remotePath string) (bool, error) {
	info, err := c.GetResourceInfo(ctx, remotePath)
	if err != nil {
		return false, err
	}
	return info != nil, nil
}

func (c *Client) propfind(ctx context.Context, remotePath, depth, target string) ([]Resource, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Depth", depth).
		SetHeader("Content-Type", "application/xml; charset=utf-8").
		SetBodyString(propfindBody).
		Send("PROPFIND", target)
	if err != nil {
		return nil, fmt.Errorf("webdav: PROPFIND /%s: %w", remotePath, err)
	}
	if !resp.IsSuccessState() {
		return nil, &StatusError{Method: "PROPFIND", Path: remotePath, StatusCode: resp.GetStatusCode()}
	}

	body, err := resp.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("webdav: PROPFIND /%s: %w", remotePath, err)
	}
	resources, err := parseMultistatus(bytes.NewReader(body), c.basePath)
	if err != nil {
		return nil, fmt.Errorf("webdav: PROPFIND /%s: %w", remotePath, err)
	}
	return resources, nil
}

// DownloadFile returns the content of a remote file
func (c *Client) DownloadFile(ctx context.Context, remotePath string) ([]byte, error) {
	remotePath = NormalizePath(remotePath)
	resp, err := c.http.R().SetContext(ctx).Get(c.resourceURL(remotePath))
	if err != nil {
		return nil, fmt.Errorf("webdav: GET /%s: %w", remotePath, err)
	}
	if !resp.IsSuccessState() {
		return nil, &StatusError{Method: http.MethodGet, Path: remotePath, StatusCode: resp.GetStatusCode()}
	}
	data, err := resp.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("webdav: GET /%s: %w", remotePath, err)
	}
	return data, nil
}

// DownloadFileTo streams a remote file to localPath, creating missing parent
// directories. The local file is replaced atomically once the body is complete.
func (c *Client) DownloadFileTo(ctx context.Context, remotePath, localPath string) (int64, error) {
	remotePath = NormalizePath(remotePath)
	resp, err := c.http.R().
		SetContext(ctx).
		DisableAutoReadResponse().
		Get(c.resourceURL(remotePath))
	if err != nil {
		return 0, fmt.Errorf("webdav: GET /%s: %w", remotePath, err)
	}
	defer resp.Body.Close()

	if !resp.IsSuccessState() {
		io.Copy(io.Discard, resp.Body)
		return 0, &StatusError{Method: http.MethodGet, Path: remotePath, StatusCode: resp.GetStatusCode()}
	}

	written, err := storage.WriteFileAtomic(localPath, ratelimit.NewReader(ctx, resp.Body, c.limiter))
	if err != nil {
		return written, fmt.Errorf("webdav: GET /%s: %w", remotePath, err)
	}
	return written, nil
}

// UploadFile streams a local file to remotePath with an explicit length.
// The parent collection must already exist.
func (c *Client) UploadFile(ctx context.Context, localPath, remotePath string) (int64, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}

	body := ratelimit.NewReader(ctx, file, c.limiter)
	if err := c.put(ctx, NormalizePath(remotePath), body, info.Size()); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// UploadBytes stores data at remotePath
func (c *Client) UploadBytes(ctx context.Context, data []byte, remotePath string) error {
	return c.put(ctx, NormalizePath(remotePath), bytes.NewReader(data), int64(len(data)))
}

// put sends the body with a known Content-Length. Some servers reject
// chunked uploads, so the request is built by hand and sent through the
// shared transport.
func (c *Client) put(ctx context.Context, remotePath string, body io.Reader, size int64) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, c.resourceURL(remotePath), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.ContentLength = size
	if size == 0 {
		httpReq.Body = http.NoBody
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")
	httpReq.Header.Set("User-Agent", c.agent)
	if c.username != "" || c.password != "" {
		httpReq.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.GetClient().Do(httpReq)
	if err != nil {
		return fmt.Errorf("webdav: PUT /%s: %w", remotePath, err)
	}
	io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return &StatusError{Method: http.MethodPut, Path: remotePath, StatusCode: resp.StatusCode}
	}
	return nil
}

// CreateDirectory creates a collection. An existing collection is not an error.
func (c *Client) CreateDirectory(ctx context.Context, remotePath string) error {
	_, err := c.MakeCollection(ctx, remotePath)
	return err
}

// MakeCollection is CreateDirectory that also reports whether the collection
// was newly created (false when the server said it already existed)
func (c *Client) MakeCollection(ctx context.Context, remotePath string) (bool, error) {
	remotePath = NormalizePath(remotePath)
	if remotePath == "" {
		return false, nil
	}

	resp, err := c.http.R().SetContext(ctx).Send("MKCOL", c.collectionURL(remotePath))
	if err != nil {
		return false, fmt.Errorf("webdav: MKCOL /%s: %w", remotePath, err)
	}

	switch code := resp.GetStatusCode(); {
	case code == http.StatusMethodNotAllowed:
		return false, nil
	case isSuccess(code):
		return true, nil
	default:
		return false, &StatusError{Method: "MKCOL", Path: remotePath, StatusCode: code}
	}
}

// Delete removes a file or collection. A missing resource is not an error.
func (c *Client) Delete(ctx context.Context, remotePath string) error {
	remotePath = NormalizePath(remotePath)
	if remotePath == "" {
		return fmt.Errorf("webdav: refusing to delete the server root")
	}

	resp, err := c.http.R().SetContext(ctx).Delete(c.resourceURL(remotePath))
	if err != nil {
		return fmt.Errorf("webdav: DELETE /%s: %w", remotePath, err)
	}

	code := resp.GetStatusCode()
	if code == http.StatusNotFound || isSuccess(code) {
		return nil
	}
	return &StatusError{Method: http.MethodDelete, Path: remotePath, StatusCode: code}
}

// Move renames a resource, replacing any existing destination
func (c *Client) Move(ctx context.Context, sourcePath, destPath string) error {
	sourcePath = NormalizePath(sourcePath)
	destPath = NormalizePath(destPath)

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Destination", c.resourceURL(destPath)).
		SetHeader("Overwrite", "T").
		Send("MOVE", c.resourceURL(sourcePath))
	if err != nil {
		return fmt.Errorf("webdav: MOVE /%s: %w", sourcePath, err)
	}
	if !resp.IsSuccessState() {
		return &StatusError{Method: "MOVE", Path: sourcePath, StatusCode: resp.GetStatusCode()}
	}
	return nil
}
