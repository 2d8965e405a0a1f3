package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"comicvault/internal/ingest"
	"comicvault/internal/preflight"
	"comicvault/internal/staging"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, tools, and archive bindings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			results := preflight.RunAll(cmd.Context(), ctx.configValue())

			lines := renderSectionHeader("Preflight", colorize)
			lines = append(lines, preflightLines(results, colorize)...)

			reg, err := ctx.registry()
			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Archive bindings", colorize)...)
			if err != nil {
				lines = append(lines, renderStatusLine("Bindings", statusError, err.Error(), colorize))
			} else {
				for _, b := range reg.Bindings() {
					lines = append(lines, renderStatusLine(b[0], statusOK, b[1], colorize))
				}
			}

			if cfg := ctx.configValue(); cfg != nil {
				locks, lockErr := staging.ListLocks(cfg.LockDir())
				if lockErr != nil {
					lines = append(lines, renderStatusLine("Claim locks", statusWarn, lockErr.Error(), colorize))
				} else {
					held := 0
					for _, l := range locks {
						if l.Held {
							held++
						}
					}
					lines = append(lines, renderStatusLine("Claim locks", statusInfo, fmt.Sprintf("%d files, %d held", len(locks), held), colorize))
				}
			}

			healthy := true
			if err == nil {
				err = ctx.withEngine(cmd, func(runCtx context.Context, engine *ingest.Engine) error {
					lines = append(lines, "")
					lines = append(lines, renderSectionHeader("Stages", colorize)...)
					health := engine.Health(runCtx)
					for _, h := range health {
						healthy = healthy && h.Ready
					}
					lines = append(lines, healthLines(health, colorize)...)
					return nil
				})
			}

			for _, line := range lines {
				fmt.Fprintln(out, line)
			}
			if err != nil {
				return err
			}
			if failed := preflight.Failed(results); len(failed) > 0 || !healthy {
				return fmt.Errorf("doctor found problems")
			}
			return nil
		},
	}
}
