package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"comicvault/internal/archive"
	"comicvault/internal/config"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var to string
	var outPath string

	cmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Re-pack an archive into another writable format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, ok := archive.ParseFormat(to)
			if !ok {
				return fmt.Errorf("unsupported --to %q (use cbz or cb7)", to)
			}
			src, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			dst := strings.TrimSpace(outPath)
			if dst != "" {
				if dst, err = config.ExpandPath(dst); err != nil {
					return err
				}
			}
			reg, err := ctx.registry()
			if err != nil {
				return err
			}
			result, err := archive.Convert(cmd.Context(), reg, src, format, dst)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Converted %s (%s) to %s (%s), %d entries\n",
				src, result.Source, result.Path, result.Destination, result.Entries)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "cbz", "Destination format (cbz or cb7)")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Destination path (defaults to the source with the new extension)")
	return cmd
}
