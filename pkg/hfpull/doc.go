// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

/*
Package hfpull discovers files on a Hugging Face "Files" listing page and
downloads them.

A run has three steps:

  - Discover fetches the listing page and keeps the download links whose
    names end in one of the requested suffixes.
  - The resulting Manifest is saved as <output>/<owner>_<repo>.json so later
    runs can skip discovery.
  - A Coordinator fetches every entry that is not already on disk, a few at a
    time, and reports how many succeeded.

# Quick Start

	cfg := hfpull.DefaultSettings()
	cfg.Extensions = []string{".bin"}

	sum, err := hfpull.Pull(ctx, hfpull.Source{
		URL: "https://huggingface.co/org/repo/tree/main",
	}, cfg, hfpull.Hooks{})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(sum.Line())

# Reusing a Manifest

	sum, err := hfpull.Pull(ctx, hfpull.Source{Manifest: "./models/org_repo.json"}, cfg, hooks)

Manifests may also live in a bucket (s3://, gs://, file://) when the
matching gocloud.dev driver is imported. An open *blob.Bucket, such as a
memblob bucket, works through LoadBucketManifest and SaveBucketManifest.

# Skipping

A file whose destination already exists is never fetched again. Downloads
are written to "<name>.part" and renamed on success, so an interrupted run
leaves no truncated file under the final name.

# Mirror

Settings.Mirror rewrites huggingface.co to hf-mirror.com in the listing URL
and in every file URL.
*/
package hfpull
