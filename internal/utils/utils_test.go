package utils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"cgs table unchanged", "https://cgs.obs.carnegiescience.edu/CGS/database_tables/sample1.html", "https://cgs.obs.carnegiescience.edu/CGS/database_tables/sample1.html"},
		{"lowercase host and default port", "HTTPS://Example.COM:443/a/b/../c/", "https://example.com/a/c"},
		{"keeps non-default port", "http://example.com:8080/x", "http://example.com:8080/x"},
		{"default scheme and sorted query", "example.com/x?b=2&a=1", "https://example.com/x?a=1&b=2"},
		{"drops fragment and userinfo", "https://user:pw@example.com/p#frag", "https://example.com/p"},
		{"root path", "https://example.com/", "https://example.com"},
		{"idn host", "https://bücher.example/", "https://xn--bcher-kva.example"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Canonicalize(tc.in, DefaultCanonicalizeOptions)
			if err != nil {
				t.Fatalf("Canonicalize(%q) error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("Canonicalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCanonicalize_Errors(t *testing.T) {
	if _, err := Canonicalize("   ", DefaultCanonicalizeOptions); !errors.Is(err, ErrEmptyURL) {
		t.Errorf("expected ErrEmptyURL, got %v", err)
	}
	if _, err := Canonicalize("file:///etc/passwd", CanonicalizeOptions{}); !errors.Is(err, ErrMissingHost) {
		t.Errorf("expected ErrMissingHost, got %v", err)
	}
}

func TestValidateTarget(t *testing.T) {
	if _, err := ValidateTarget("https://cgs.obs.carnegiescience.edu/CGS/database_tables/sample1.html"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ValidateTarget(""); !errors.Is(err, ErrEmptyURL) {
		t.Errorf("expected ErrEmptyURL, got %v", err)
	}
	if _, err := ValidateTarget("ftp://example.com/file"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("expected ErrUnsupportedScheme, got %v", err)
	}
	if _, err := ValidateTarget("http:///nohost"); !errors.Is(err, ErrMissingHost) {
		t.Errorf("expected ErrMissingHost, got %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	got, err := ExpandPath("~/.config/cgscrape")
	if err != nil {
		t.Fatalf("ExpandPath: %v", err)
	}
	if want := filepath.Join(home, ".config", "cgscrape"); got != want {
		t.Errorf("ExpandPath = %q, want %q", got, want)
	}

	got, err = ExpandPath("/tmp/../tmp/archive/")
	if err != nil {
		t.Fatalf("ExpandPath: %v", err)
	}
	if got != "/tmp/archive" {
		t.Errorf("ExpandPath = %q", got)
	}

	if got, _ := ExpandPath(""); got != "" {
		t.Errorf("ExpandPath(\"\") = %q", got)
	}
}
