// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/arxitex/internal/arxiv"
	"github.com/pdiddy/arxitex/internal/citations"
)

var citationsCmd = &cobra.Command{
	Use:   "citations [arxiv-ids...]",
	Short: "Resolve citation counts and external references",
	Long: `Citations runs the two index-backed resolutions over stored papers: a
citation-count backfill via OpenAlex, and matching of external reference
artifacts back to arXiv identifiers. With no arguments every stored paper is
covered. Results persist in the store and are refreshed only after the TTL
lapses, so reruns are cheap.`,
	RunE: runCitations,
}

func init() {
	citationsCmd.Flags().Bool("skip-counts", false, "skip the citation-count backfill")
	citationsCmd.Flags().Bool("skip-match", false, "skip external-reference matching")

	rootCmd.AddCommand(citationsCmd)
}

func runCitations(cmd *cobra.Command, args []string) error {
	skipCounts, _ := cmd.Flags().GetBool("skip-counts")
	skipMatch, _ := cmd.Flags().GetBool("skip-match")

	s, err := buildStack()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	var ids []string
	if len(args) > 0 {
		for _, a := range args {
			id, err := arxiv.Normalize(a)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
	} else {
		ids, err = s.store.PaperIDs(ctx)
		if err != nil {
			return err
		}
	}
	if len(ids) == 0 {
		fmt.Println("no stored papers to resolve")
		return nil
	}

	resolver := citations.New(s.store, s.searcher, s.client, s.limiter, s.cfg.Citations)

	if !skipCounts {
		fmt.Println("Citation counts:")
		stats, err := resolver.BackfillCounts(ctx, ids, os.Stdout)
		if err != nil {
			return err
		}
		fmt.Printf("  %d fetched, %d cached, %d unmatched, %d failed\n",
			stats.Fetched, stats.Cached, stats.NoMatch, stats.Failed)
	}

	if !skipMatch {
		fmt.Println("\nExternal references:")
		var total citations.MatchStats
		for _, id := range ids {
			graph, err := s.store.LoadDocumentGraph(ctx, id, false)
			if err != nil {
				return err
			}
			st, err := resolver.MatchExternalReferences(ctx, id, graph, os.Stdout)
			if err != nil {
				return err
			}
			total.Matched += st.Matched
			total.Misses += st.Misses
			total.Cached += st.Cached
			total.Failed += st.Failed
		}
		fmt.Printf("  %d matched, %d cached, %d misses, %d failed\n",
			total.Matched, total.Cached, total.Misses, total.Failed)
	}
	return nil
}
