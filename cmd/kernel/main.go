// Command kernel exposes the run-test, export-bundle, and replay surfaces
// of the agent kernel from the command line.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"goa.design/clue/log"

	"github.com/goadesign/agent-kernel/internal/core"
	"github.com/goadesign/agent-kernel/internal/harness"
	"github.com/goadesign/agent-kernel/internal/kernel"
	"github.com/goadesign/agent-kernel/internal/taskqueue"
	"github.com/goadesign/agent-kernel/internal/telemetry"
)

func main() {
	dbgF := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()
	args := flag.Args()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}
	logger := telemetry.NewClueLogger()

	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "run-test":
		err = runTest(ctx, logger, args[1:])
	case "export-bundle":
		err = exportBundle(ctx, logger, args[1:])
	case "replay":
		err = replay(ctx, logger, args[1:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error(ctx, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: kernel <run-test [test-id]|export-bundle <run-id>|replay <bundle.json>>")
}

// runTest executes one seed test by id, or every seed test when no id is
// given, and prints a pass/score/duration line per test.
func runTest(ctx context.Context, logger telemetry.Logger, args []string) error {
	var specs []harness.TestSpec
	if len(args) > 0 {
		spec, err := harness.SeedSpec(args[0])
		if err != nil {
			return fmt.Errorf("load test %q: %w", args[0], err)
		}
		specs = []harness.TestSpec{spec}
	} else {
		var err error
		specs, err = harness.SeedSpecs()
		if err != nil {
			return fmt.Errorf("load seed tests: %w", err)
		}
	}

	failures := 0
	for _, spec := range specs {
		result := harness.RunTest(ctx, spec, nil, logger)
		status := "PASS"
		if !result.Pass {
			status = "FAIL"
			failures++
		}
		fmt.Printf("%-28s %-4s score=%.1f/%.1f events=%d duration=%s",
			result.TestID, status, result.Score, result.MaxScore, result.EventCount, result.Duration)
		if result.Error != "" {
			fmt.Printf(" error=%q", result.Error)
		}
		fmt.Println()
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d tests failed", failures, len(specs))
	}
	return nil
}

// exportBundle runs a tiny single-task demonstration run under the given
// run id and writes its RunBundle as JSON to stdout.
func exportBundle(ctx context.Context, logger telemetry.Logger, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("export-bundle requires a run id")
	}
	config := core.RunConfig{
		RunID: args[0],
		Name:  "export-bundle run",
		Mode:  core.ModeAutonomous,
		Budgets: core.Budgets{
			MaxOutputTokens: 4000,
			MaxIterations:   50,
			MaxToolCalls:    50,
		},
	}
	k := kernel.New(config, nil, logger)
	if _, err := k.Queue().AddTask(ctx, taskqueue.AddTaskInput{
		Title:  "demonstration task",
		Prompt: "summarize the current state of the run in a few sentences",
	}); err != nil {
		return fmt.Errorf("seed task: %w", err)
	}
	if err := k.Start(ctx); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	bundle := k.ExportBundle(ctx)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(bundle)
}

// replay reconstructs a kernel from a RunBundle file, re-derives its final
// snapshot, and reports whether that snapshot's checksum matches the one
// recorded in the bundle — the deterministic-replay guarantee.
func replay(ctx context.Context, logger telemetry.Logger, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("replay requires a bundle file path")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read bundle: %w", err)
	}
	var bundle kernel.RunBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return fmt.Errorf("parse bundle: %w", err)
	}

	k := kernel.FromBundle(&bundle, nil, logger)

	ok, errs := k.Store().VerifyChainIntegrity()
	if !ok {
		fmt.Printf("run_id=%s events=%d chain_intact=%t\n", bundle.RunID, k.Store().Len(), ok)
		return fmt.Errorf("replayed event chain failed verification: %v", errs)
	}
	if bundle.FinalSnapshot.Checksum == "" {
		return fmt.Errorf("bundle has no final snapshot checksum to verify against")
	}

	matched, recomputed := k.VerifyFinalSnapshot(bundle.FinalSnapshot)
	fmt.Printf("run_id=%s events=%d chain_intact=%t bundle_checksum=%s recomputed_checksum=%s snapshot_matches=%t\n",
		bundle.RunID, k.Store().Len(), ok, bundle.FinalSnapshot.Checksum, recomputed, matched)

	if !matched {
		return fmt.Errorf("replayed snapshot checksum %s does not match bundle's recorded final snapshot checksum %s", recomputed, bundle.FinalSnapshot.Checksum)
	}
	return nil
}
