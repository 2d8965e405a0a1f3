package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"comicvault/internal/comic"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

type tableSpec struct {
	headers  []string
	aligns   []columnAlignment
	colorize bool
	// maxWidth truncates columns by index; zero means unlimited.
	maxWidth map[int]int
}

func renderTable(spec tableSpec, rows [][]string) string {
	columns := len(spec.headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	style := table.StyleRounded
	if spec.colorize {
		style.Color.Header = text.Colors{text.Bold}
	}
	tw.SetStyle(style)

	header := make(table.Row, columns)
	for i, h := range spec.headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(spec.aligns) && spec.aligns[i] == alignRight {
			align = text.AlignRight
		}
		cc := table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		}
		if w := spec.maxWidth[i]; w > 0 {
			cc.WidthMax = w
			cc.WidthMaxEnforcer = text.Trim
		}
		configs = append(configs, cc)
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func stateCell(state comic.State, missing bool, colorize bool) string {
	label := string(state)
	if missing {
		label += " (missing)"
	}
	if !colorize {
		return label
	}
	switch {
	case missing || state == comic.StateDeleted:
		return text.FgRed.Sprint(label)
	case state == comic.StateProcessed:
		return text.FgGreen.Sprint(label)
	default:
		return text.FgYellow.Sprint(label)
	}
}
