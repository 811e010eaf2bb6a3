// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

// versionInfo is what `hfpull version` reports.
type versionInfo struct {
	Version  string `json:"version"`
	Module   string `json:"module,omitempty"`
	Commit   string `json:"commit,omitempty"`
	Modified bool   `json:"modified,omitempty"`
	Built    string `json:"built,omitempty"`
	Go       string `json:"go"`
	Platform string `json:"platform"`
}

// readVersionInfo fills in VCS details from the embedded build info. A
// binary installed with `go install module@v1.2.3` reports the module
// version when no version was stamped in through ldflags.
func readVersionInfo(version string, bi *debug.BuildInfo) versionInfo {
	info := versionInfo{
		Version:  version,
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi == nil {
		return info
	}
	info.Module = bi.Main.Path
	if isDevVersion(version) && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Commit = s.Value
			if len(info.Commit) > 7 {
				info.Commit = info.Commit[:7]
			}
		case "vcs.time":
			info.Built = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

func isDevVersion(v string) bool {
	return v == "" || v == "dev" || strings.HasSuffix(v, "-dev")
}

func newVersionCmd(version string) *cobra.Command {
	var short, asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version and build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bi, _ := debug.ReadBuildInfo()
			info := readVersionInfo(version, bi)
			out := cmd.OutOrStdout()

			switch {
			case asJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			case short:
				fmt.Fprintln(out, info.Version)
				return nil
			}

			fmt.Fprintf(out, "hfpull %s (%s, %s)\n", info.Version, info.Go, info.Platform)
			if info.Commit != "" {
				dirty := ""
				if info.Modified {
					dirty = ", modified"
				}
				fmt.Fprintf(out, "commit %s%s, built %s\n", info.Commit, dirty, info.Built)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only the version number")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print build information as JSON")

	return cmd
}
