package webdav

import (
	"strings"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"a/b", "a/b"},
		{"/a//b/", "a/b"},
		{"//a///b//c//", "a/b/c"},
		{`a\b`, "a/b"},
		{"Notes/file name.md", "Notes/file name.md"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizePath(tt.in); got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncodePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a/b.txt", "a/b.txt"},
		{"My Notes/a b.md", "My%20Notes/a%20b.md"},
		{"q?/x#y", "q%3F/x%23y"},
		{"100%/done", "100%25/done"},
		{"/lead//trail/", "lead/trail"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := EncodePath(tt.in); got != tt.want {
				t.Errorf("EncodePath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRelativeTo(t *testing.T) {
	tests := []struct {
		root, p string
		want    string
		ok      bool
	}{
		{"Notes", "Notes/a.md", "a.md", true},
		{"/Notes/", "Notes//sub/a.md", "sub/a.md", true},
		{"Notes", "Notes", "", true},
		{"Notes", "NotesOther/a.md", "", false},
		{"", "x/y", "x/y", true},
	}

	for _, tt := range tests {
		t.Run(tt.root+"|"+tt.p, func(t *testing.T) {
			got, ok := RelativeTo(tt.root, tt.p)
			if got != tt.want || ok != tt.ok {
				t.Errorf("RelativeTo(%q, %q) = (%q, %v), want (%q, %v)", tt.root, tt.p, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestSegmentsAndParent(t *testing.T) {
	got := Segments("/a//b/c/")
	if strings.Join(got, ",") != "a,a/b,a/b/c" {
		t.Errorf("Segments() = %v", got)
	}
	if Segments("") != nil {
		t.Error("Segments(\"\") should be nil")
	}

	if p := Parent("a/b/c.txt"); p != "a/b" {
		t.Errorf("Parent() = %q, want a/b", p)
	}
	if p := Parent("c.txt"); p != "" {
		t.Errorf("Parent() = %q, want empty", p)
	}
	if j := JoinPath("/Notes/", "", "sub//x.md"); j != "Notes/sub/x.md" {
		t.Errorf("JoinPath() = %q", j)
	}
}
