// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package hfpull

import (
	"net/url"
	"path"
	"strings"
)

// Hosts recognized by the mirror rewrite.
const (
	DefaultHost = "huggingface.co"
	MirrorHost  = "hf-mirror.com"
)

// WildcardExtension accepts every file regardless of suffix.
const WildcardExtension = "all"

// UnknownRepo is the manifest name used when the page URL has fewer than
// two path segments.
const UnknownRepo = "unknown_repo"

// Extensions is a set of accepted filename suffixes.
type Extensions []string

// ParseExtensions trims the given values, splits comma-separated lists and
// drops empties. An empty result falls back to the default extension.
func ParseExtensions(values []string) Extensions {
	var out Extensions
	for _, v := range values {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	if len(out) == 0 {
		out = Extensions{DefaultExtension}
	}
	return out
}

// All reports whether the wildcard is present.
func (e Extensions) All() bool {
	for _, x := range e {
		if x == WildcardExtension {
			return true
		}
	}
	return false
}

// Match reports whether name ends with one of the suffixes. Matching is
// case-sensitive.
func (e Extensions) Match(name string) bool {
	if e.All() {
		return true
	}
	for _, x := range e {
		if strings.HasSuffix(name, x) {
			return true
		}
	}
	return false
}

// MirrorURL rewrites a huggingface.co URL (or any of its subdomains) to the
// mirror host. Other URLs, including ones already on the mirror, come back
// unchanged.
func MirrorURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	host := u.Hostname()
	var mirrored string
	switch {
	case host == DefaultHost:
		mirrored = MirrorHost
	case strings.HasSuffix(host, "."+DefaultHost):
		mirrored = strings.TrimSuffix(host, DefaultHost) + MirrorHost
	default:
		return raw
	}
	if p := u.Port(); p != "" {
		mirrored += ":" + p
	}
	u.Host = mirrored
	return u.String()
}

// ResolveURL turns a viewer URL into a raw-content URL. Only the segment
// after <org>/<repo> is considered: "blob" or "tree" there becomes
// "resolve", so https://huggingface.co/org/repo/tree/main/x.bin becomes
// https://huggingface.co/org/repo/resolve/main/x.bin. Anything else,
// including folders named tree or blob deeper in the path, is left alone.
func ResolveURL(raw string) string {
	start, end := pathBounds(raw)
	if start < 0 {
		return raw
	}
	// segs[0] is the empty string before the leading slash.
	segs := strings.Split(raw[start:end], "/")
	if len(segs) < 5 || segs[0] != "" {
		return raw
	}
	switch segs[3] {
	case "blob", "tree":
		segs[3] = "resolve"
	default:
		return raw
	}
	return raw[:start] + strings.Join(segs, "/") + raw[end:]
}

// pathBounds locates the path portion of raw, skipping the scheme and host
// and stopping at any query or fragment. start is -1 when there is no path.
func pathBounds(raw string) (start, end int) {
	if i := strings.Index(raw, "://"); i >= 0 {
		j := strings.IndexByte(raw[i+3:], '/')
		if j < 0 {
			return -1, -1
		}
		start = i + 3 + j
	}
	end = len(raw)
	if q := strings.IndexAny(raw[start:], "?#"); q >= 0 {
		end = start + q
	}
	return start, end
}

// RepoName derives the manifest name from a listing URL:
// "<first-segment>_<second-segment>" of its path, or UnknownRepo.
func RepoName(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return UnknownRepo
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return UnknownRepo
	}
	return parts[0] + "_" + parts[1]
}

// entryName is the file name a download link points at: the basename of the
// link's path, with any query (such as "?download=true") left behind.
func entryName(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return ""
	}
	return strings.TrimSuffix(name, downloadMarker)
}

const downloadMarker = "?download=true"
