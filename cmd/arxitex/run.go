package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/arxitex/internal/workflow"
	"github.com/pdiddy/arxitex/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process queued papers through the pipeline",
	Long: `Run dequeues up to --limit papers and pushes each through acquisition,
extraction, and the generative stages selected by --mode. Papers already
complete in the requested mode are reported as cached unless --force is set.
Terminal failures leave the queue; transient failures stay queued for the
next run.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().Int("limit", 20, "maximum papers to process this run")
	runCmd.Flags().String("mode", "regex", "extraction mode: regex, defs, or full")
	runCmd.Flags().Bool("force", false, "reprocess papers already complete in this mode")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	modeStr, _ := cmd.Flags().GetString("mode")
	force, _ := cmd.Flags().GetBool("force")

	mode, err := types.ParseMode(modeStr)
	if err != nil {
		return err
	}

	s, err := buildStack()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	o, err := stageOracle(ctx, mode, s.cfg.Oracle)
	if err != nil {
		return err
	}

	runner := workflow.New(s.store, s.searcher, o, s.client, s.cfg)
	rep, err := runner.ProcessQueue(ctx, limit, mode, force, os.Stdout)
	if err != nil {
		return err
	}
	if rep.Failed > 0 {
		return fmt.Errorf("%d paper(s) failed", rep.Failed)
	}
	return nil
}
