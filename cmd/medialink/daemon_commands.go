package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"medialink/internal/daemon"
	"medialink/internal/logging"
	"medialink/internal/output"
	"medialink/internal/reconcile"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Scan the source tree, then watch it and link new files as they settle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, ctx, false, func(runCtx context.Context, a *app, out *output.Output) error {
				out.Verbose("Watching %s", ctx.config.Paths.SourceDir)
				return a.daemon.Run(runCtx)
			})
		},
	}
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Reconcile, re-link and scan once without watching",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, ctx, true, func(runCtx context.Context, a *app, out *output.Output) error {
				report, err := a.daemon.Scan(runCtx)
				if report != nil {
					printScanReport(out, report)
				}
				return err
			})
		},
	}
}

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Remove library links whose source files are gone",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, ctx, false, func(runCtx context.Context, a *app, out *output.Output) error {
				report, err := a.daemon.ReconcileOnce(runCtx)
				if report != nil {
					printReconcileReport(out, report)
				}
				return err
			})
		},
	}
}

// withApp builds the services for one command and cancels them on SIGINT or
// SIGTERM.
func withApp(cmd *cobra.Command, ctx *commandContext, progress bool, fn func(context.Context, *app, *output.Output) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.logger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	out := ctx.output(cmd)

	var p daemon.Progress
	if progress {
		p = out
	}
	a, err := buildApp(cfg, logger, p)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("closing journal failed", logging.Error(cerr))
		}
	}()

	runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return fn(runCtx, a, out)
}

func printScanReport(out *output.Output, report *daemon.Report) {
	rows := [][]string{
		{"Linked", strconv.Itoa(report.Scan.Linked)},
		{"External media", strconv.Itoa(report.Scan.Externals + report.Relinked)},
		{"Failed", strconv.Itoa(report.Scan.Failed)},
		{"Skipped", strconv.Itoa(report.Scan.Skipped)},
	}
	if report.Reconcile != nil {
		rows = append(rows, []string{"Links removed", strconv.Itoa(report.Reconcile.Total())})
	}
	rows = append(rows, []string{"Duration", report.Duration.Round(time.Millisecond).String()})
	out.Info("%s", output.Table([]string{"Result", "Count"}, rows, []output.Align{output.AlignLeft, output.AlignRight}))

	for _, r := range report.Scan.Results {
		if r.Error != nil {
			out.Verbose("%s %s: %v", r.Outcome, r.SourcePath, r.Error)
		}
	}
}

func printReconcileReport(out *output.Output, report *reconcile.Report) {
	if report.Empty() {
		out.Info("Nothing to reconcile")
		return
	}
	rows := [][]string{
		{"Broken links", strconv.Itoa(len(report.RemovedLinks))},
		{"Orphaned tracks", strconv.Itoa(len(report.RemovedOrphans))},
		{"Sidecars", strconv.Itoa(len(report.RemovedSidecars))},
		{"Empty directories", strconv.Itoa(len(report.RemovedDirs))},
		{"Stale failures", strconv.Itoa(len(report.PrunedFailures))},
	}
	out.Info("%s", output.Table([]string{"Removed", "Count"}, rows, []output.Align{output.AlignLeft, output.AlignRight}))
	for _, link := range append(append([]string(nil), report.RemovedLinks...), report.RemovedOrphans...) {
		out.Verbose("removed %s", link)
	}
}
