// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package hfpull

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// downloadTitle marks the file-download anchors on a listing page.
const downloadTitle = "Download file"

// unknownSize is shown when no size text follows a download link.
const unknownSize = "unknown"

// Discover fetches a listing page and returns the entries whose names match
// cfg.Extensions, in page order.
//
// With cfg.Mirror set the page is fetched from the mirror host, and the
// returned URLs point at it too. A non-2xx answer comes back as a
// *StatusError; callers treat any error as "nothing found".
func Discover(ctx context.Context, pageURL string, cfg Settings) (Manifest, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg = cfg.withDefaults()
	return discover(ctx, buildHTTPClient(), pageURL, cfg)
}

func discover(ctx context.Context, httpc *http.Client, pageURL string, cfg Settings) (Manifest, error) {
	if cfg.Mirror {
		pageURL = MirrorURL(pageURL)
	}
	req, err := newRequest(ctx, pageURL, cfg)
	if err != nil {
		return nil, err
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, pageURL); err != nil {
		return nil, err
	}
	return ParseListing(resp.Body, pageURL, ParseExtensions(cfg.Extensions))
}

// ParseListing extracts download entries from a listing page.
//
// Every <a title="Download file"> contributes one entry: its href resolved
// against baseURL and rewritten to the raw-content form, its basename as the
// name, and the text of the next <span> in the document as the size.
// Entries whose names do not match exts are dropped, as are repeated names.
func ParseListing(r io.Reader, baseURL string, exts Extensions) (Manifest, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	nodes := flatten(doc)
	var out Manifest
	seen := make(map[string]struct{})
	for i, n := range nodes {
		if !isDownloadLink(n) {
			continue
		}
		href := strings.TrimSpace(attr(n, "href"))
		if href == "" {
			continue
		}
		link, err := base.Parse(href)
		if err != nil {
			continue
		}
		name := entryName(link)
		if name == "" || !exts.Match(name) {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		out = append(out, FileEntry{
			Name: name,
			URL:  ResolveURL(link.String()),
			Size: sizeAfter(nodes[i+1:]),
		})
	}
	return out, nil
}

// flatten lists element nodes in document order.
func flatten(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func isDownloadLink(n *html.Node) bool {
	return n.DataAtom == atom.A && attr(n, "title") == downloadTitle
}

// sizeAfter returns the trimmed text of the first <span> in rest.
func sizeAfter(rest []*html.Node) string {
	for _, n := range rest {
		if n.DataAtom == atom.Span {
			return strings.TrimSpace(textOf(n))
		}
	}
	return unknownSize
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
