package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"comicvault/internal/archive"
	"comicvault/internal/config"
	"comicvault/internal/detect"
)

func newDetectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "detect <file>...",
		Short: "Report the container type of files by content",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := ctx.registry()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, arg := range args {
				path, err := config.ExpandPath(arg)
				if err != nil {
					return err
				}
				subtype, err := detect.DetectFile(path)
				if err != nil {
					return err
				}
				format := archive.FormatUnknown
				if adaptor, ok := reg.Resolve(subtype); ok {
					format = adaptor.Format()
				}
				fmt.Fprintf(out, "%s: %s (%s)\n", path, subtype, format)
			}
			return nil
		},
	}
}

func newEntriesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "entries <file>",
		Short: "List the entries of an archive in archive order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := ctx.registry()
			if err != nil {
				return err
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			subtype, err := detect.DetectFile(path)
			if err != nil {
				return err
			}
			adaptor, ok := reg.Resolve(subtype)
			if !ok {
				return fmt.Errorf("%s: no adaptor bound to subtype %q", path, subtype)
			}

			var rows [][]string
			err = archive.WithReadHandle(cmd.Context(), adaptor, path, func(h *archive.ReadHandle) error {
				for desc, err := range adaptor.Entries(cmd.Context(), h) {
					if err != nil {
						return err
					}
					rows = append(rows, []string{
						strconv.Itoa(desc.Index),
						desc.Name,
						humanize.IBytes(uint64(max(desc.Size, 0))),
						string(desc.Kind),
					})
				}
				return nil
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", path, adaptor.Format())
			if len(rows) == 0 {
				fmt.Fprintln(out, "No entries")
				return nil
			}
			fmt.Fprintln(out, renderTable(tableSpec{
				headers:  []string{"#", "Name", "Size", "Kind"},
				aligns:   []columnAlignment{alignRight, alignLeft, alignRight, alignLeft},
				colorize: shouldColorize(out),
			}, rows))
			return nil
		},
	}
}
