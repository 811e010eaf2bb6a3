// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hfpull/hfpull/internal/server"
	"github.com/hfpull/hfpull/pkg/hfpull"
)

func newServeCmd(ro *RootOpts, version string) *cobra.Command {
	cfg := server.DefaultConfig()
	var token string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start an HTTP server that runs pull jobs",
		Long: `Start an HTTP server that provides:
  - REST API to discover listings and start, list and cancel pull jobs
  - WebSocket for live job updates

The output directory is configured server-side only (not via API).

Example:
  hfpull serve
  hfpull serve --port 3000 --output ./models --threads 6`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, closeLog, err := newLogger(ro, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog()

			cfg.Token = strings.TrimSpace(token)
			cfg.Version = version
			cfg.Logger = logger

			fmt.Fprintf(cmd.OutOrStdout(), "hfpull %s serving on http://%s:%d (output %s)\n",
				version, cfg.Addr, cfg.Port, cfg.OutputDir)
			return server.New(cfg).ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "Address to bind to")
	cmd.Flags().IntVarP(&cfg.Port, "port", "p", cfg.Port, "Port to listen on")
	cmd.Flags().StringVarP(&cfg.OutputDir, "output", "o", cfg.OutputDir, "Output directory for manifests and files")
	cmd.Flags().StringSliceVarP(&cfg.Extensions, "ext", "e", cfg.Extensions, "Default file suffixes when a request names none")
	cmd.Flags().IntVarP(&cfg.Threads, "threads", "n", cfg.Threads, "Files downloading at once per job")
	cmd.Flags().BoolVar(&cfg.Mirror, "mirror", false, "Use hf-mirror.com instead of huggingface.co")
	cmd.Flags().IntVar(&cfg.ChunkSize, "chunk-size", hfpull.DefaultChunkSize, "Read buffer size in bytes")
	cmd.Flags().StringSliceVar(&cfg.AllowedOrigins, "allowed-origins", nil, "CORS origins allowed to call the API (default: any)")
	cmd.Flags().StringVarP(&token, "token", "t", "", "Hugging Face access token for gated repositories")

	return cmd
}
