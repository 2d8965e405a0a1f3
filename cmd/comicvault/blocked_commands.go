package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"comicvault/internal/fileutil"
)

func newBlockedCommand(ctx *commandContext) *cobra.Command {
	blockedCmd := &cobra.Command{
		Use:   "blocked",
		Short: "Manage blocked page hashes",
	}
	blockedCmd.AddCommand(newBlockedAddCommand(ctx))
	blockedCmd.AddCommand(newBlockedListCommand(ctx))
	blockedCmd.AddCommand(newBlockedRemoveCommand(ctx))
	return blockedCmd
}

// resolveHash accepts a SHA-256 hex digest or the path of a page image.
func resolveHash(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if info, err := os.Stat(arg); err == nil && info.Mode().IsRegular() {
		_, hash, err := fileutil.HashFile(arg)
		if err != nil {
			return "", err
		}
		return hash, nil
	}
	hash := strings.ToLower(arg)
	if decoded, err := hex.DecodeString(hash); err != nil || len(decoded) != 32 {
		return "", fmt.Errorf("%q is neither a SHA-256 digest nor a readable file", arg)
	}
	return hash, nil
}

func newBlockedAddCommand(ctx *commandContext) *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "add <hash|image>...",
		Short: "Block pages by digest or by example image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, arg := range args {
				hash, err := resolveHash(arg)
				if err != nil {
					return err
				}
				if err := store.AddBlockedHash(cmd.Context(), hash, note, "cli"); err != nil {
					return err
				}
				fmt.Fprintf(out, "Blocked %s\n", hash)
			}
			fmt.Fprintln(out, "Already ingested comics pick this up on `comicvault reprocess`.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&note, "note", "n", "", "Why the page is blocked")
	return cmd
}

func newBlockedListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List blocked page hashes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			hashes, err := store.BlockedHashes(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(hashes) == 0 {
				fmt.Fprintln(out, "No blocked hashes")
				return nil
			}
			rows := make([][]string, 0, len(hashes))
			for _, h := range hashes {
				rows = append(rows, []string{h.Hash, h.Source, h.Note, h.CreatedAt.Local().Format("2006-01-02")})
			}
			fmt.Fprintln(out, renderTable(tableSpec{
				headers:  []string{"Hash", "Source", "Note", "Added"},
				colorize: shouldColorize(out),
			}, rows))
			return nil
		},
	}
}

func newBlockedRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <hash>...",
		Short: "Unblock page hashes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, arg := range args {
				hash, err := resolveHash(arg)
				if err != nil {
					return err
				}
				removed, err := store.RemoveBlockedHash(cmd.Context(), hash)
				if err != nil {
					return err
				}
				if removed {
					fmt.Fprintf(out, "Unblocked %s\n", hash)
				} else {
					fmt.Fprintf(out, "%s was not blocked\n", hash)
				}
			}
			return nil
		},
	}
}
