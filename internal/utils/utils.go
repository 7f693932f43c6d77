package utils

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

var (
	ErrEmptyURL          = errors.New("empty url")
	ErrMissingHost       = errors.New("missing host")
	ErrUnsupportedScheme = errors.New("unsupported scheme")
)

// CanonicalizeOptions controls optional canonicalization policies.
type CanonicalizeOptions struct {
	StripTrailingSlash bool   // treat /a and /a/ the same (root "/" is kept)
	DefaultScheme      string // if empty, require a scheme in the input
}

// DefaultCanonicalizeOptions is what the tracker uses to key snapshots.
var DefaultCanonicalizeOptions = CanonicalizeOptions{
	StripTrailingSlash: true,
	DefaultScheme:      "https",
}

// ValidateTarget checks that raw is an absolute http(s) URL with a host.
// It returns the parsed URL untouched; fetches go to exactly what the user
// configured.
func ValidateTarget(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &url.Error{Op: "validate", URL: raw, Err: ErrEmptyURL}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, &url.Error{Op: "validate", URL: raw, Err: fmt.Errorf("%w %q", ErrUnsupportedScheme, u.Scheme)}
	}
	if u.Host == "" {
		return nil, &url.Error{Op: "validate", URL: raw, Err: ErrMissingHost}
	}
	return u, nil
}

// Canonicalize returns a deterministic canonical URL string or an error.
// Scheme and host are lower-cased, IDN hosts become punycode, default ports
// and userinfo are dropped, the path is cleaned, the fragment removed and
// query parameters sorted.
//
// Examples:
//
//	"HTTPS://Example.COM:443/a/b/../c/"  -> "https://example.com/a/c"
//	"example.com/x?b=2&a=1"              -> "https://example.com/x?a=1&b=2"
func Canonicalize(raw string, opts CanonicalizeOptions) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &url.Error{Op: "parse", URL: raw, Err: ErrEmptyURL}
	}

	if opts.DefaultScheme != "" && !strings.Contains(raw, "://") {
		raw = opts.DefaultScheme + "://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", &url.Error{Op: "parse", URL: raw, Err: ErrMissingHost}
	}

	u.Scheme = strings.ToLower(u.Scheme)

	host := strings.ToLower(u.Hostname())
	if puny, err := idna.Lookup.ToASCII(host); err == nil {
		host = puny
	}

	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else {
		u.Host = host
	}

	u.User = nil

	cleanPath := path.Clean(u.Path)
	if cleanPath == "." {
		cleanPath = "/"
	}
	if opts.StripTrailingSlash && len(cleanPath) > 1 {
		cleanPath = strings.TrimRight(cleanPath, "/")
	}
	if cleanPath == "/" && opts.StripTrailingSlash {
		cleanPath = ""
	}
	u.Path = cleanPath
	u.RawPath = ""

	u.Fragment = ""

	q := u.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := url.Values{}
	for _, k := range keys {
		values := q[k]
		sort.Strings(values)
		for _, v := range values {
			ordered.Add(k, v)
		}
	}
	u.RawQuery = ordered.Encode()

	return u.String(), nil
}

// ExpandPath resolves a leading "~" to the user's home directory and cleans
// the result.
func ExpandPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", nil
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Clean(p), nil
}
