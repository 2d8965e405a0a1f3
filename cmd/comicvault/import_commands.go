package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"comicvault/internal/batch"
	"comicvault/internal/ingest"
	"comicvault/internal/preflight"
	"comicvault/internal/watch"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <path>...",
		Short: "Import archive files and directories into the library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePreflight(cmd, ctx); err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(runCtx context.Context, engine *ingest.Engine) error {
				result, err := engine.Import(context.WithoutCancel(runCtx), args)
				if err != nil {
					return err
				}
				return reportResult(cmd.OutOrStdout(), result)
			})
		},
	}
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Resume every record that has not finished ingestion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePreflight(cmd, ctx); err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(runCtx context.Context, engine *ingest.Engine) error {
				result, err := engine.Resume(context.WithoutCancel(runCtx))
				if err != nil {
					return err
				}
				return reportResult(cmd.OutOrStdout(), result)
			})
		},
	}
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var skipScan bool

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Import archives as they appear under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePreflight(cmd, ctx); err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(runCtx context.Context, engine *ingest.Engine) error {
				w, err := watch.New(ctx.configValue(), args[0], engine, ctx.logger)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !skipScan {
					result, err := engine.Import(runCtx, []string{w.Root()})
					if err != nil {
						return err
					}
					if len(result.Items) > 0 {
						if err := reportResult(out, result); err != nil {
							fmt.Fprintln(out, err)
						}
					}
				}
				fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", w.Root())
				return w.Run(runCtx)
			})
		},
	}
	cmd.Flags().BoolVar(&skipScan, "no-scan", false, "Skip importing files already in the directory")
	return cmd
}

func requirePreflight(cmd *cobra.Command, ctx *commandContext) error {
	failed := preflight.Failed(preflight.RunAll(cmd.Context(), ctx.configValue()))
	if len(failed) == 0 {
		return nil
	}
	parts := make([]string, 0, len(failed))
	for _, r := range failed {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	return fmt.Errorf("preflight failed (%s); run `comicvault doctor` for details", strings.Join(parts, "; "))
}

// reportResult prints the job table. It returns an error when any record
// failed so scripts see a non-zero exit.
func reportResult(out io.Writer, result batch.Result) error {
	if len(result.Items) == 0 {
		fmt.Fprintln(out, "Nothing to ingest")
		return nil
	}
	colorize := shouldColorize(out)
	rows := make([][]string, 0, len(result.Items))
	for _, item := range result.Items {
		detail := ""
		if item.Err != nil {
			detail = item.Err.Error()
		}
		rows = append(rows, []string{
			strconv.FormatInt(item.ComicID, 10),
			stateCell(item.State, false, colorize),
			string(item.Outcome),
			item.Stage,
			item.SourcePath,
			detail,
		})
	}
	fmt.Fprintln(out, renderTable(tableSpec{
		headers:  []string{"ID", "State", "Outcome", "Stage", "Source", "Detail"},
		aligns:   []columnAlignment{alignRight},
		colorize: colorize,
		maxWidth: map[int]int{4: 60, 5: 60},
	}, rows))

	advanced := result.Count(batch.OutcomeAdvanced)
	rejected := result.Count(batch.OutcomeGuardRejected)
	failed := result.Count(batch.OutcomeFatal)
	summary := fmt.Sprintf("Job %s: %d advanced, %d deferred, %d failed in %s",
		result.JobID, advanced, rejected, failed, result.Duration.Round(time.Millisecond))
	if result.Stopped {
		summary += " (stopped early; run `comicvault run` to continue)"
	}
	fmt.Fprintln(out, summary)
	if failed > 0 {
		return errors.New("some records failed; see the table above")
	}
	return nil
}
