package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdiddy/arxitex/internal/arxiv"
	"github.com/pdiddy/arxitex/internal/store"
	"github.com/pdiddy/arxitex/pkg/types"
)

var exportCmd = &cobra.Command{
	Use:   "export [arxiv-ids...]",
	Short: "Write paper export JSON files",
	Long: `Export writes the full JSON payload for stored papers: the document graph
with stats, the definition bank when one exists, per-artifact term
placements, and captured macros. With no arguments every stored paper is
exported. Files are named arxiv_<id>.json.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("output-dir", "", "directory for export files (default: workflow output dir)")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()

	outDir, _ := cmd.Flags().GetString("output-dir")
	if outDir == "" {
		outDir = cfg.Workflow.OutputDir
	}

	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	ids := args
	if len(ids) == 0 {
		ids, err = st.PaperIDs(ctx)
		if err != nil {
			return err
		}
	}
	if len(ids) == 0 {
		fmt.Println("no stored papers to export")
		return nil
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	failed := 0
	for _, id := range ids {
		base, err := arxiv.Normalize(id)
		if err != nil {
			failed++
			fmt.Printf("failed:  %s (%v)\n", id, err)
			continue
		}
		payload, err := st.ExportPaper(ctx, base)
		if err != nil {
			failed++
			fmt.Printf("failed:  %s (%v)\n", base, err)
			continue
		}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			failed++
			fmt.Printf("failed:  %s (%v)\n", base, err)
			continue
		}
		path := filepath.Join(outDir, types.ExportFilename(base))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			failed++
			fmt.Printf("failed:  %s (%v)\n", base, err)
			continue
		}
		fmt.Printf("wrote:   %s\n", path)
	}

	fmt.Printf("\nExport summary: %d written, %d failed (total: %d)\n",
		len(ids)-failed, failed, len(ids))
	if failed > 0 {
		return fmt.Errorf("%d paper(s) failed export", failed)
	}
	return nil
}
