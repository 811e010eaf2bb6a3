// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package hfpull

import (
	"context"
	"net/http"
	"time"
)

// buildHTTPClient creates an HTTP client with sensible defaults.
// There is no overall timeout: large files stream for as long as they take.
func buildHTTPClient() *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: tr}
}

// newRequest builds a GET with auth and user-agent headers.
func newRequest(ctx context.Context, urlStr string, cfg Settings) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	if cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)
	return req, nil
}

// checkStatus turns a non-2xx response into a *StatusError.
func checkStatus(resp *http.Response, urlStr string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, URL: urlStr}
}
