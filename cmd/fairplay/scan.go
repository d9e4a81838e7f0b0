/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/fairplay/internal/library"
)

var (
	scanFormat     string
	scanSimulate   int
	scanSeed       uint64
	scanExtensions []string
)

var scanCmd = &cobra.Command{
	Use:   "scan <dir>",
	Short: "Print the track tree of a music folder",
	Long: `Build the track tree of a music folder and print per directory counts.
With --simulate N the selector is run N times and each directory's share
of the plays is printed next to the share its track count entitles it to.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "text", "Output format: text, json or yaml")
	scanCmd.Flags().IntVarP(&scanSimulate, "simulate", "n", 0, "Number of selections to simulate")
	scanCmd.Flags().Uint64Var(&scanSeed, "seed", 1, "Random seed for --simulate")
	scanCmd.Flags().StringSliceVar(&scanExtensions, "ext", nil, "Track extensions (default from FAIRPLAY_TRACK_EXTENSIONS)")
	rootCmd.AddCommand(scanCmd)
}

// ScanReport is the scan command's output.
type ScanReport struct {
	Root        string    `json:"root" yaml:"root"`
	TotalTracks int       `json:"total_tracks" yaml:"total_tracks"`
	Selections  int       `json:"selections" yaml:"selections"`
	Dirs        []ScanDir `json:"dirs" yaml:"dirs"`
}

// ScanDir is one directory row. Share and Ideal are fractions of all
// selections and of all tracks respectively.
type ScanDir struct {
	Path        string  `json:"path" yaml:"path"`
	Tracks      int     `json:"tracks" yaml:"tracks"`
	TotalTracks int     `json:"total_tracks" yaml:"total_tracks"`
	Plays       uint64  `json:"plays" yaml:"plays"`
	Share       float64 `json:"share" yaml:"share"`
	Ideal       float64 `json:"ideal" yaml:"ideal"`
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := loadConfig(nil); err != nil {
		return err
	}
	exts := scanExtensions
	if len(exts) == 0 {
		exts = cfg.TrackExtensions
	}

	tree, err := library.Build(args[0], library.BuildOptions{Extensions: exts, Logger: logger})
	if err != nil {
		return err
	}
	report, err := buildReport(tree, scanSimulate, scanSeed)
	if err != nil {
		return err
	}
	return writeReport(cmd.OutOrStdout(), report, scanFormat)
}

// buildReport runs n selections against tree and snapshots the counters.
func buildReport(tree *library.Tree, n int, seed uint64) (ScanReport, error) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for i := 0; i < n; i++ {
		if _, err := tree.Next(rng); err != nil {
			return ScanReport{}, fmt.Errorf("selection %d: %w", i, err)
		}
	}

	stats := tree.Stats()
	report := ScanReport{
		Root:        tree.Path(),
		TotalTracks: stats.TotalTracks,
		Selections:  n,
	}
	stats.Walk(func(d library.DirStats) {
		row := ScanDir{
			Path:        d.Path,
			Tracks:      d.Tracks,
			TotalTracks: d.TotalTracks,
			Plays:       d.TotalPlays,
			Ideal:       float64(d.TotalTracks) / float64(stats.TotalTracks),
		}
		if n > 0 {
			row.Share = float64(d.TotalPlays) / float64(n)
		}
		report.Dirs = append(report.Dirs, row)
	})
	return report, nil
}

func writeReport(w io.Writer, report ScanReport, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		fmt.Fprintf(w, "%s: %d tracks\n", report.Root, report.TotalTracks)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		if report.Selections > 0 {
			fmt.Fprintln(tw, "PATH\tTRACKS\tTOTAL\tPLAYS\tSHARE\tIDEAL")
			for _, d := range report.Dirs {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.3f\t%.3f\n", d.Path, d.Tracks, d.TotalTracks, d.Plays, d.Share, d.Ideal)
			}
		} else {
			fmt.Fprintln(tw, "PATH\tTRACKS\tTOTAL")
			for _, d := range report.Dirs {
				fmt.Fprintf(tw, "%s\t%d\t%d\n", d.Path, d.Tracks, d.TotalTracks)
			}
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
