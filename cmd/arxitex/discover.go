package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/arxitex/internal/workflow"
)

var discoverCmd = &cobra.Command{
	Use:   "discover [query]",
	Short: "Search arXiv and enqueue new papers",
	Long: `Discover pages through an arXiv query sorted by submission date and
enqueues papers the store has not seen. A per-query cursor records the oldest
submission reached, so repeated runs resume below prior coverage instead of
rescanning it. With --backfill the walk proceeds month by month into the
past, one bucket per run segment, stopping at 1991.

With --manifest the queue and cursor are snapshotted to a YAML file after
the run; the file can be fed back to ingest.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().Int("target", 100, "stop after enqueueing this many new papers")
	discoverCmd.Flags().Bool("backfill", false, "walk month buckets into the past instead of resuming below the cursor")
	discoverCmd.Flags().String("manifest", "", "write a YAML snapshot of the queue and cursor to this file")

	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	target, _ := cmd.Flags().GetInt("target")
	backfill, _ := cmd.Flags().GetBool("backfill")
	manifestPath, _ := cmd.Flags().GetString("manifest")

	s, err := buildStack()
	if err != nil {
		return err
	}
	defer s.Close()

	runner := workflow.New(s.store, s.searcher, nil, s.client, s.cfg)
	query := strings.Join(args, " ")

	ctx := context.Background()
	kind := workflow.KindDiscover
	run := runner.Discover
	if backfill {
		kind = workflow.KindBackfill
		run = runner.Backfill
	}

	added, err := run(ctx, query, target, os.Stdout)
	if err != nil {
		return err
	}

	if manifestPath != "" {
		m, err := runner.SnapshotManifest(ctx, query, kind, target, added)
		if err != nil {
			return err
		}
		if err := workflow.WriteManifest(manifestPath, m); err != nil {
			return err
		}
		fmt.Printf("manifest: %s\n", manifestPath)
	}
	return nil
}
