// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package hfpull_test

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hfpull/hfpull/pkg/hfpull"
)

func ExamplePull() {
	cfg := hfpull.DefaultSettings()
	cfg.OutputDir = "./example_output"
	cfg.Extensions = []string{".safetensors", ".json"}

	progress := func(e hfpull.ProgressEvent) {
		switch e.Event {
		case "scan_start":
			fmt.Println("Scanning listing page...")
		case "file_done":
			fmt.Printf("Done: %s %s\n", e.Path, e.Message)
		}
	}

	sum, err := hfpull.Pull(context.Background(), hfpull.Source{
		URL: "https://huggingface.co/hf-internal-testing/tiny-random-gpt2/tree/main",
	}, cfg, hfpull.Hooks{Progress: progress})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
	}
	fmt.Println(sum.Line())

	os.RemoveAll("./example_output")
}

func ExamplePull_confirm() {
	cfg := hfpull.DefaultSettings()

	hooks := hfpull.Hooks{
		Confirm: func(p hfpull.Pending) bool {
			fmt.Printf("%d files to fetch into %s\n", len(p.Entries), p.Root)
			return len(p.Entries) < 10
		},
	}

	_, err := hfpull.Pull(context.Background(), hfpull.Source{Manifest: "./models/org_repo.json"}, cfg, hooks)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
	}
}

func ExampleParseListing() {
	page := `<a title="Download file" href="/org/repo/blob/main/model.bin?download=true">dl</a><span>4.1 GB</span>`

	m, err := hfpull.ParseListing(strings.NewReader(page), "https://huggingface.co/org/repo/tree/main", hfpull.Extensions{".bin"})
	if err != nil {
		panic(err)
	}
	for _, e := range m {
		fmt.Println(e.Name, e.Size, e.URL)
	}
	// Output: model.bin 4.1 GB https://huggingface.co/org/repo/resolve/main/model.bin?download=true
}

func ExampleMirrorURL() {
	fmt.Println(hfpull.MirrorURL("https://huggingface.co/org/repo/resolve/main/model.bin"))
	// Output: https://hf-mirror.com/org/repo/resolve/main/model.bin
}
