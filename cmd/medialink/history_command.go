package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"medialink/internal/journal"
	"medialink/internal/output"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var runs bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent journal events or runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			reader := journal.NewReader(cfg.JournalPath())
			out := ctx.output(cmd)
			if runs {
				return printRuns(out, reader, limit)
			}
			return printEvents(out, reader, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	cmd.Flags().BoolVar(&runs, "runs", false, "Summarise runs instead of listing events")
	return cmd
}

func printEvents(out *output.Output, reader *journal.Reader, limit int) error {
	events, err := reader.Tail(limit)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	if len(events) == 0 {
		out.Info("Journal is empty")
		return nil
	}
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		detail := e.Destination
		if e.Reason != "" {
			detail = e.Reason
		}
		if e.Type == journal.EventRunStart {
			detail = e.Metadata["command"]
		}
		if e.Type == journal.EventRunEnd {
			detail = e.Metadata["status"]
		}
		rows = append(rows, []string{formatTime(e.Timestamp), string(e.Type), e.Source, detail})
	}
	out.Info("%s", output.Table([]string{"Time", "Event", "Source", "Detail"}, rows, nil))
	return nil
}

func printRuns(out *output.Output, reader *journal.Reader, limit int) error {
	all, err := reader.Runs()
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	if len(all) == 0 {
		out.Info("Journal is empty")
		return nil
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	rows := make([][]string, 0, len(all))
	for _, r := range all {
		duration := "-"
		if r.EndTime != nil {
			duration = r.EndTime.Sub(r.StartTime).Round(time.Second).String()
		}
		rows = append(rows, []string{
			formatTime(r.StartTime),
			r.Command,
			string(r.Status),
			duration,
			strconv.Itoa(r.Summary.Linked),
			strconv.Itoa(r.Summary.LinkedExternal),
			strconv.Itoa(r.Summary.Unlinked + r.Summary.Orphans),
			strconv.Itoa(r.Summary.Failed),
		})
	}
	aligns := []output.Align{output.AlignLeft, output.AlignLeft, output.AlignLeft, output.AlignRight,
		output.AlignRight, output.AlignRight, output.AlignRight, output.AlignRight}
	out.Info("%s", output.Table([]string{"Started", "Command", "Status", "Duration", "Linked", "External", "Removed", "Failed"}, rows, aligns))
	return nil
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}
