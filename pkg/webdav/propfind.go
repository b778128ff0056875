package webdav

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sdejongh/davsync/pkg/compare"
)

// propfindBody asks only for the properties the sync needs
const propfindBody = `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:">
  <d:prop>
    <d:resourcetype/>
    <d:getcontentlength/>
    <d:getlastmodified/>
    <d:getetag/>
  </d:prop>
</d:propfind>`

type multistatus struct {
	XMLName   xml.Name   `xml:"DAV: multistatus"`
	Responses []response `xml:"DAV: response"`
}

type response struct {
	Href      string     `xml:"DAV: href"`
	Propstats []propstat `xml:"DAV: propstat"`
}

type propstat struct {
	Prop   prop   `xml:"DAV: prop"`
	Status string `xml:"DAV: status"`
}

type prop struct {
	ResourceType  *resourceType `xml:"DAV: resourcetype"`
	ContentLength string        `xml:"DAV: getcontentlength"`
	LastModified  string        `xml:"DAV: getlastmodified"`
	ETag          string        `xml:"DAV: getetag"`
}

type resourceType struct {
	Collection *struct{} `xml:"DAV: collection"`
}

// parseMultistatus decodes a 207 body into resources relative to basePath.
// Only 2xx propstat blocks contribute; several of them are merged.
func parseMultistatus(r io.Reader, basePath string) ([]Resource, error) {
	var ms multistatus
	if err := xml.NewDecoder(r).Decode(&ms); err != nil {
		return nil, fmt.Errorf("failed to parse multistatus: %w", err)
	}

	resources := make([]Resource, 0, len(ms.Responses))
	for _, resp := range ms.Responses {
		href := strings.TrimSpace(resp.Href)
		if href == "" {
			continue
		}

		res := Resource{Path: relativeHref(href, basePath)}
		// A trailing slash marks a collection even when resourcetype is missing.
		if strings.HasSuffix(href, "/") && href != "/" {
			res.IsDirectory = true
		}

		for _, ps := range resp.Propstats {
			if !propstatOK(ps.Status) {
				continue
			}
			p := ps.Prop
			if p.ResourceType != nil && p.ResourceType.Collection != nil {
				res.IsDirectory = true
			}
			if v := strings.TrimSpace(p.ContentLength); v != "" {
				if n, err := strconv.ParseUint(v, 10, 64); err == nil {
					res.Size = n
				}
			}
			if v := strings.TrimSpace(p.LastModified); v != "" {
				res.LastModified = parseTime(v)
			}
			if v := strings.TrimSpace(p.ETag); v != "" {
				res.ETag = compare.NormalizeETag(v)
			}
		}

		resources = append(resources, res)
	}

	return resources, nil
}

// relativeHref decodes an href (absolute URL or path) and strips the base path
func relativeHref(href, basePath string) string {
	p := href
	if u, err := url.Parse(href); err == nil {
		p = u.Path
	} else if dec, err := url.PathUnescape(href); err == nil {
		p = dec
	}

	p = NormalizePath(p)
	if rel, ok := RelativeTo(basePath, p); ok {
		return rel
	}
	return p
}

// propstatOK reports whether a "HTTP/1.1 200 OK" style status line is 2xx.
// A missing status is treated as success.
func propstatOK(status string) bool {
	fields := strings.Fields(status)
	if len(fields) < 2 {
		return true
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return false
	}
	return isSuccess(code)
}

// parseTime accepts the HTTP date formats and RFC 3339; unparseable values give the zero time
func parseTime(v string) time.Time {
	if t, err := http.ParseTime(v); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
