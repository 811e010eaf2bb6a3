// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hfpull/hfpull/pkg/hfpull"
)

type result struct {
	out, errOut string
	err         error
}

func runCLI(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	cmd := newRootCmd("1.2.3-test")
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return result{out: out.String(), errOut: errOut.String(), err: err}
}

func hub(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/org/repo/tree/main", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`
<a title="Download file" href="/org/repo/tree/main/a.bin?download=true">dl</a><span>3 B</span>
<a title="Download file" href="/org/repo/tree/main/README.md?download=true">dl</a><span>1 kB</span>`))
	})
	mux.HandleFunc("/org/repo/resolve/main/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("bin"))
	})
	mux.HandleFunc("/down/repo/tree/main", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRoot_SourceFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"neither", []string{"--progress", "plain"}},
		{"both", []string{"--url", "https://huggingface.co/o/r/tree/main", "--json", "m.json"}},
		{"positional", []string{"https://huggingface.co/o/r/tree/main"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, "", tt.args...)
			assert.Error(t, res.err)
		})
	}
}

func writeManifest(t *testing.T, dir, base string) string {
	t.Helper()
	p := filepath.Join(dir, "org_repo.json")
	require.NoError(t, hfpull.SaveManifest(p, hfpull.Manifest{
		{Name: "a.bin", URL: base + "/org/repo/resolve/main/a.bin", Size: "3 B"},
		{Name: "b.bin", URL: base + "/org/repo/resolve/main/b.bin", Size: "3 B"},
	}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), []byte("old"), 0o644))
	return p
}

func TestRoot_DeclineAfterSkip(t *testing.T) {
	var hits atomic.Int32
	srv := hub(t, &hits)
	dir := t.TempDir()
	manifest := writeManifest(t, dir, srv.URL)

	res := runCLI(t, "n\n", "--json", manifest, "--output", dir, "--progress", "plain")
	require.NoError(t, res.err)

	assert.Contains(t, res.out, "1 file(s) already exist")
	assert.Contains(t, res.out, "About to download 1 file(s)")
	assert.Contains(t, res.out, "b.bin")
	assert.Contains(t, res.out, "download cancelled")
	assert.NotContains(t, res.out, "download complete")
	assert.Zero(t, hits.Load())
	assert.NoFileExists(t, filepath.Join(dir, "b.bin"))
}

func TestRoot_ConfirmAndDownload(t *testing.T) {
	var hits atomic.Int32
	srv := hub(t, &hits)
	dir := t.TempDir()
	manifest := writeManifest(t, dir, srv.URL)

	res := runCLI(t, "y\n", "--json", manifest, "--output", dir, "--progress", "plain")
	require.NoError(t, res.err)

	assert.Contains(t, res.out, "done: b.bin")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(res.out), "download complete, succeeded: 1/1"))
	assert.EqualValues(t, 1, hits.Load())

	data, err := os.ReadFile(filepath.Join(dir, "b.bin"))
	require.NoError(t, err)
	assert.Equal(t, "bin", string(data))

	// Everything is present now; no prompt is needed.
	res = runCLI(t, "", "--json", manifest, "--output", dir, "--progress", "plain")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "all 2 file(s) already exist")
	assert.NotContains(t, res.out, "Proceed?")
}

func TestRoot_AllPresentListsNames(t *testing.T) {
	var hits atomic.Int32
	srv := hub(t, &hits)
	dir := t.TempDir()
	manifest := writeManifest(t, dir, srv.URL)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.bin"), []byte("old"), 0o644))

	// The table view drops skip events, so the names come from the summary.
	res := runCLI(t, "", "--json", manifest, "--output", dir, "--progress", "table")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "all 2 file(s) already exist in "+dir+"\n  a.bin\n  b.bin\n")
	assert.Zero(t, hits.Load())

	res = runCLI(t, "", "--json", manifest, "--output", dir, "--quiet")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "all 2 file(s) already exist")
	assert.NotContains(t, res.out, "  a.bin")
}

func TestRoot_BucketManifest(t *testing.T) {
	var hits atomic.Int32
	srv := hub(t, &hits)
	dir := t.TempDir()
	writeManifest(t, dir, srv.URL)

	loc := "file://" + filepath.ToSlash(dir) + "/org_repo.json"
	res := runCLI(t, "", "--json", loc, "--output", dir, "--dry-run")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "Plan for "+loc+" (2 files)")
	assert.Contains(t, res.out, "b.bin")

	// mem:// would only ever open an empty bucket, so it is not linked in.
	res = runCLI(t, "", "--json", "mem://bucket/org_repo.json", "--output", dir, "--dry-run")
	var me *hfpull.ManifestError
	assert.ErrorAs(t, res.err, &me)
}

func TestRoot_YesSkipsPrompt(t *testing.T) {
	var hits atomic.Int32
	srv := hub(t, &hits)
	dir := t.TempDir()

	res := runCLI(t, "", "--url", srv.URL+"/org/repo/tree/main", "--ext", ".bin", "--output", dir, "-y", "--progress", "json")
	require.NoError(t, res.err)
	assert.NotContains(t, res.out, "Proceed?")
	assert.Contains(t, res.out, `"event":"done"`)
	assert.Contains(t, res.out, "download complete, succeeded: 1/1")
	assert.FileExists(t, filepath.Join(dir, "org_repo.json"))
	assert.FileExists(t, filepath.Join(dir, "a.bin"))
}

func TestRoot_ConfigDefaultsAndFlags(t *testing.T) {
	var hits atomic.Int32
	srv := hub(t, &hits)
	fromConfig := t.TempDir()
	fromFlag := t.TempDir()

	cfgPath := filepath.Join(t.TempDir(), "hfpull.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"output: "+fromConfig+"\next: [\".bin\"]\nthreads: 2\n"), 0o644))

	res := runCLI(t, "", "--config", cfgPath, "--url", srv.URL+"/org/repo/tree/main", "--output", fromFlag, "--dry-run")
	require.NoError(t, res.err)

	// ext came from the config file, output from the flag.
	assert.Contains(t, res.out, "Plan for "+srv.URL+"/org/repo/tree/main (1 files)")
	assert.Contains(t, res.out, "a.bin")
	assert.NotContains(t, res.out, "README.md")
	assert.FileExists(t, filepath.Join(fromFlag, "org_repo.json"))
	assert.NoFileExists(t, filepath.Join(fromConfig, "org_repo.json"))
	assert.Zero(t, hits.Load(), "dry run never downloads")
}

func TestRoot_ListingErrorIsNotFatal(t *testing.T) {
	var hits atomic.Int32
	srv := hub(t, &hits)

	res := runCLI(t, "", "--url", srv.URL+"/down/repo/tree/main", "--output", t.TempDir(), "--progress", "plain")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "no matching files found")
	assert.Contains(t, res.errOut, "cannot read listing page")
}

func TestRoot_BadManifestIsFatal(t *testing.T) {
	p := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(p, []byte("{"), 0o644))

	res := runCLI(t, "", "--json", p, "--progress", "plain")
	require.Error(t, res.err)

	var me *hfpull.ManifestError
	assert.ErrorAs(t, res.err, &me)
}

func TestRoot_InvalidProgressMode(t *testing.T) {
	res := runCLI(t, "", "--json", "m.json", "--progress", "fancy")
	assert.ErrorContains(t, res.err, "invalid --progress")
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"", "debug", "INFO", "warn", "warning", "error"} {
		_, err := parseLevel(s)
		assert.NoError(t, err, s)
	}
	_, err := parseLevel("loud")
	assert.Error(t, err)
}
