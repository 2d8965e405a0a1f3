package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"comicvault/internal/comic"
	"comicvault/internal/ingest"
	"comicvault/internal/library"
	"comicvault/internal/progress"
	"comicvault/internal/services"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var limit uint64

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			rows := make([][]string, 0, len(comic.AllStates()))
			for _, state := range comic.AllStates() {
				rows = append(rows, []string{stateCell(state, false, colorize), strconv.Itoa(stats.ByState[state])})
			}
			fmt.Fprintln(out, renderTable(tableSpec{
				headers:  []string{"State", "Comics"},
				aligns:   []columnAlignment{alignLeft, alignRight},
				colorize: colorize,
			}, rows))
			fmt.Fprintf(out, "Total %d, cataloged %d, missing %d, pending descriptors %d, blocked hashes %d\n",
				stats.Total(), stats.Cataloged, stats.Missing, stats.Descriptors, stats.Blocked)

			if limit == 0 {
				return nil
			}
			records, err := store.List(cmd.Context(), library.Filter{WithoutPages: true, Limit: limit})
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return nil
			}
			fmt.Fprintln(out, renderRecords(records, colorize))
			return nil
		},
	}
	cmd.Flags().Uint64VarP(&limit, "list", "l", 0, "Also list up to N records")
	return cmd
}

func renderRecords(records []*comic.Record, colorize bool) string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			strconv.FormatInt(rec.ID, 10),
			stateCell(rec.State, rec.Missing, colorize),
			rec.Format,
			progress.Title(rec),
			rec.SourcePath,
		})
	}
	return renderTable(tableSpec{
		headers:  []string{"ID", "State", "Format", "Title", "Source"},
		aligns:   []columnAlignment{alignRight},
		colorize: colorize,
		maxWidth: map[int]int{3: 40, 4: 60},
	}, rows)
}

type showPage struct {
	Index    int    `json:"index"`
	Filename string `json:"filename"`
	Hash     string `json:"hash"`
	Size     int64  `json:"size"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Type     string `json:"type,omitempty"`
	Blocked  bool   `json:"blocked"`
}

type showTransition struct {
	Event string    `json:"event"`
	From  string    `json:"from"`
	To    string    `json:"to"`
	At    time.Time `json:"at"`
}

type showOutput struct {
	ID         int64            `json:"id"`
	SourcePath string           `json:"source_path"`
	Format     string           `json:"format"`
	Subtype    string           `json:"subtype"`
	State      string           `json:"state"`
	Missing    bool             `json:"missing"`
	Size       int64            `json:"size"`
	Hash       string           `json:"hash"`
	Series     string           `json:"series,omitempty"`
	Number     string           `json:"number,omitempty"`
	Title      string           `json:"title,omitempty"`
	Publisher  string           `json:"publisher,omitempty"`
	Year       int              `json:"year,omitempty"`
	LastError  string           `json:"last_error,omitempty"`
	Pages      []showPage       `json:"pages"`
	History    []showTransition `json:"history"`
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one comic with its pages and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			rec, err := store.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if rec == nil {
				return services.Wrap(services.ErrNotFound, "", "show", fmt.Sprintf("No comic with id %d", id), nil)
			}
			history, err := store.History(cmd.Context(), id)
			if err != nil {
				return err
			}
			view := buildShowOutput(rec, history)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			}
			renderShow(cmd, view)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func buildShowOutput(rec *comic.Record, history []library.Transition) showOutput {
	md := rec.Metadata
	view := showOutput{
		ID:         rec.ID,
		SourcePath: rec.SourcePath,
		Format:     rec.Format,
		Subtype:    rec.Subtype,
		State:      string(rec.State),
		Missing:    rec.Missing,
		Size:       rec.File.Size,
		Hash:       rec.File.Hash,
		Series:     md.Series,
		Number:     md.Number,
		Title:      md.Title,
		Publisher:  md.Publisher,
		Year:       md.Year,
		LastError:  rec.LastError,
		Pages:      make([]showPage, 0, len(rec.Pages)),
		History:    make([]showTransition, 0, len(history)),
	}
	for _, p := range rec.Pages {
		view.Pages = append(view.Pages, showPage{
			Index: p.Index, Filename: p.Filename, Hash: p.Hash, Size: p.Size,
			Width: p.Width, Height: p.Height, Type: p.Type, Blocked: p.Blocked,
		})
	}
	for _, t := range history {
		view.History = append(view.History, showTransition{Event: t.Event, From: string(t.From), To: string(t.To), At: t.At})
	}
	return view
}

func renderShow(cmd *cobra.Command, view showOutput) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	fmt.Fprintf(out, "Comic %d: %s\n", view.ID, filepath.Base(view.SourcePath))
	fmt.Fprintf(out, "  Source:   %s\n", view.SourcePath)
	fmt.Fprintf(out, "  State:    %s\n", stateCell(comic.State(view.State), view.Missing, colorize))
	fmt.Fprintf(out, "  Format:   %s (%s)\n", view.Format, view.Subtype)
	if view.Size > 0 {
		fmt.Fprintf(out, "  Size:     %s\n", humanize.IBytes(uint64(view.Size)))
		fmt.Fprintf(out, "  SHA-256:  %s\n", view.Hash)
	}
	if view.Series != "" || view.Title != "" {
		fmt.Fprintf(out, "  Series:   %s #%s\n", view.Series, view.Number)
		fmt.Fprintf(out, "  Title:    %s\n", view.Title)
	}
	if view.Publisher != "" {
		fmt.Fprintf(out, "  Publisher: %s\n", view.Publisher)
	}
	if view.LastError != "" {
		fmt.Fprintf(out, "  Error:    %s\n", view.LastError)
	}

	if len(view.Pages) > 0 {
		rows := make([][]string, 0, len(view.Pages))
		for _, p := range view.Pages {
			rows = append(rows, []string{
				strconv.Itoa(p.Index),
				p.Filename,
				fmt.Sprintf("%dx%d", p.Width, p.Height),
				humanize.IBytes(uint64(p.Size)),
				p.Type,
				yesNo(p.Blocked),
				p.Hash[:min(12, len(p.Hash))],
			})
		}
		fmt.Fprintln(out, renderTable(tableSpec{
			headers:  []string{"#", "Page", "Dimensions", "Size", "Type", "Blocked", "Hash"},
			aligns:   []columnAlignment{alignRight, alignLeft, alignRight, alignRight},
			colorize: colorize,
		}, rows))
	}
	if len(view.History) > 0 {
		lines := renderSectionHeader("History", colorize)
		for _, t := range view.History {
			lines = append(lines, fmt.Sprintf("%s%s  %s: %s -> %s", statusIndent, t.At.Local().Format(time.DateTime), t.Event, t.From, t.To))
		}
		for _, line := range lines {
			fmt.Fprintln(out, line)
		}
	}
}

type engineOp func(ctx context.Context, engine *ingest.Engine, id int64) (*comic.Record, error)

func newRecordCommand(ctx *commandContext, use, short, verb string, op engineOp) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := parseID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return ctx.withEngine(cmd, func(runCtx context.Context, engine *ingest.Engine) error {
				out := cmd.OutOrStdout()
				for _, id := range ids {
					rec, err := op(runCtx, engine, id)
					if err != nil {
						return fmt.Errorf("comic %d: %w", id, err)
					}
					fmt.Fprintf(out, "Comic %d %s (%s)\n", id, verb, rec.State)
				}
				return nil
			})
		},
	}
}

func newRefreshCommand(ctx *commandContext) *cobra.Command {
	return newRecordCommand(ctx, "refresh", "Re-measure source files and update stored details", "refreshed",
		func(c context.Context, e *ingest.Engine, id int64) (*comic.Record, error) { return e.Refresh(c, id) })
}

func newReprocessCommand(ctx *commandContext) *cobra.Command {
	return newRecordCommand(ctx, "reprocess", "Send comics back to the start of ingestion", "reset",
		func(c context.Context, e *ingest.Engine, id int64) (*comic.Record, error) { return e.Reprocess(c, id) })
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return newRecordCommand(ctx, "delete", "Mark comics deleted and remove them from the catalog", "deleted",
		func(c context.Context, e *ingest.Engine, id int64) (*comic.Record, error) { return e.Delete(c, id) })
}
