// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/hfpull/hfpull/pkg/hfpull"
)

// RootOpts holds global CLI options.
type RootOpts struct {
	Config   string
	LogFile  string
	LogLevel string
	Quiet    bool
	Verbose  bool
}

// pullOpts holds the flags of the root (pull) command.
type pullOpts struct {
	URL      string
	Manifest string
	Yes      bool
	DryRun   bool
	Progress string
	Token    string
}

// Execute runs the CLI with the given version string.
func Execute(version string) error {
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	root := newRootCmd(version)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func newRootCmd(version string) *cobra.Command {
	ro := &RootOpts{}
	po := &pullOpts{}
	cfg := &hfpull.Settings{}

	root := &cobra.Command{
		Use:   "hfpull",
		Short: "Download the files listed on a Hugging Face repository page",
		Long: `hfpull reads a Hugging Face "Files" page, keeps the download links whose
names end in one of the requested extensions, saves them as a manifest and
downloads whatever is not already on disk.

Examples:
  hfpull --url https://huggingface.co/org/repo/tree/main --ext .bin
  hfpull --json ./models/org_repo.json --threads 8
  hfpull --url https://huggingface.co/org/repo/tree/main --ext all --mirror -y`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		Args:          cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return applySettingsDefaults(cmd, ro, po, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPull(cmd, ro, po, *cfg)
		},
	}

	// Global flags
	root.PersistentFlags().StringVar(&ro.Config, "config", "", "Path to config file (JSON or YAML)")
	root.PersistentFlags().StringVar(&ro.LogFile, "log-file", "", "Write logs to file (in addition to stderr)")
	root.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	root.PersistentFlags().BoolVarP(&ro.Quiet, "quiet", "q", false, "Quiet mode (errors and the summary only)")
	root.PersistentFlags().BoolVarP(&ro.Verbose, "verbose", "v", false, "Verbose logs (debug details)")

	// Source flags
	root.Flags().StringVar(&po.URL, "url", "", "Repository files page to scan (e.g. https://huggingface.co/org/repo/tree/main)")
	root.Flags().StringVar(&po.Manifest, "json", "", "Manifest saved by an earlier run (path, or s3://, gs://, file:// URL)")
	root.MarkFlagsMutuallyExclusive("url", "json")
	root.MarkFlagsOneRequired("url", "json")

	// Settings flags
	root.Flags().StringSliceVarP(&cfg.Extensions, "ext", "e", []string{hfpull.DefaultExtension}, `File suffixes to keep, repeatable or comma separated; "all" keeps everything`)
	root.Flags().StringVarP(&cfg.OutputDir, "output", "o", hfpull.DefaultOutputDir, "Destination directory")
	root.Flags().IntVarP(&cfg.Threads, "threads", "n", hfpull.DefaultThreads, "Number of files downloading at once")
	root.Flags().BoolVar(&cfg.Mirror, "mirror", false, "Use hf-mirror.com instead of huggingface.co")
	root.Flags().IntVar(&cfg.ChunkSize, "chunk-size", hfpull.DefaultChunkSize, "Read buffer size in bytes")
	root.Flags().StringVarP(&po.Token, "token", "t", "", "Hugging Face access token for gated repositories")

	// CLI-only flags
	root.Flags().BoolVarP(&po.Yes, "yes", "y", false, "Download without asking for confirmation")
	root.Flags().BoolVar(&po.DryRun, "dry-run", false, "Discover and save the manifest, print it and exit")
	root.Flags().StringVar(&po.Progress, "progress", "auto", "Progress output: auto, table, bars, plain, json")

	root.AddCommand(newVersionCmd(version))
	root.AddCommand(newConfigCmd())
	root.AddCommand(newServeCmd(ro, version))
	root.SetHelpCommand(&cobra.Command{Use: "help", Hidden: true})

	return root
}

func runPull(cmd *cobra.Command, ro *RootOpts, po *pullOpts, cfg hfpull.Settings) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	logger, closeLog, err := newLogger(ro, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()

	cfg.Token = strings.TrimSpace(po.Token)
	src := hfpull.Source{URL: strings.TrimSpace(po.URL), Manifest: strings.TrimSpace(po.Manifest)}
	label := src.URL
	if label == "" {
		label = src.Manifest
	}

	view, err := newProgressView(po.Progress, ro.Quiet, out, label, cfg)
	if err != nil {
		return err
	}
	defer view.Close()

	hooks := hfpull.Hooks{
		Progress: view.Handle,
		Logger:   logger,
	}

	if po.DryRun {
		planHooks := hooks
		if po.Progress == "json" {
			// The plan itself is the JSON output.
			planHooks.Progress = nil
		}
		m, manifestPath, err := hfpull.Plan(ctx, src, cfg, planHooks)
		if hfpull.IsNothingFound(err) {
			fmt.Fprintln(out, "no matching files found")
			return nil
		}
		if err != nil {
			return err
		}
		return printPlan(out, po.Progress, label, manifestPath, m)
	}

	in := bufio.NewReader(cmd.InOrStdin())
	hooks.Confirm = func(p hfpull.Pending) bool {
		if len(p.Existing) > 0 && !ro.Quiet {
			fmt.Fprintf(out, "%d file(s) already exist in %s:\n", len(p.Existing), p.Root)
			for _, name := range p.Existing {
				fmt.Fprintf(out, "  %s\n", name)
			}
		}
		if !po.Yes {
			fmt.Fprintf(out, "About to download %d file(s) into %s:\n", len(p.Entries), p.Root)
			for _, e := range p.Entries {
				fmt.Fprintf(out, "  %-48s %s\n", e.Name, e.Size)
			}
			if !confirm(in, out, "Proceed? [y/N]: ") {
				return false
			}
		}
		view.Start()
		return true
	}

	sum, err := hfpull.Pull(ctx, src, cfg, hooks)
	view.Close()
	switch {
	case hfpull.IsNothingFound(err):
		fmt.Fprintln(out, "no matching files found")
		return nil
	case err != nil:
		return err
	}

	switch {
	case sum.Declined:
		fmt.Fprintln(out, "download cancelled")
	case sum.Attempted == 0:
		fmt.Fprintf(out, "all %d file(s) already exist in %s\n", len(sum.Existing), cfg.OutputDir)
		if !ro.Quiet {
			for _, name := range sum.Existing {
				fmt.Fprintf(out, "  %s\n", name)
			}
		}
	default:
		for _, ferr := range sum.Failures {
			fmt.Fprintln(cmd.ErrOrStderr(), "failed:", ferr)
		}
		if po.Progress != "json" {
			fmt.Fprintln(out, sum.Line())
		}
	}
	return nil
}

// confirm reads one line and accepts only "y".
func confirm(in *bufio.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(out)
		return false
	}
	return strings.TrimSpace(line) == "y"
}

func printPlan(w io.Writer, format, label, manifestPath string, m hfpull.Manifest) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Source   string          `json:"source"`
			Manifest string          `json:"manifest"`
			Entries  hfpull.Manifest `json:"entries"`
		}{label, manifestPath, m})
	}
	fmt.Fprintf(w, "Plan for %s (%d files):\n", label, len(m))
	for _, e := range m {
		fmt.Fprintf(w, "  %-48s %s\n", e.Name, e.Size)
	}
	fmt.Fprintf(w, "manifest: %s\n", manifestPath)
	return nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(ch)
		select {
		case <-ch:
			slog.Warn("interrupted, stopping downloads")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
