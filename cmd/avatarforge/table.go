package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Detail columns carry tool stderr and error chains; wrap them rather than
// let one line stretch the box past the terminal.
const maxDetailWidth = 72

// renderTable draws rows under headers. Missing cells render empty and the
// last column wraps at maxDetailWidth.
func renderTable(headers []string, rows [][]string) string {
	width := len(headers)
	if width == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(padRow(headers, width))
	for _, row := range rows {
		tw.AppendRow(padRow(row, width))
	}
	tw.SetColumnConfigs([]table.ColumnConfig{wrapColumn(width)})
	return tw.Render()
}

// renderFields draws label/value pairs without a header row. Labels go bold
// on a terminal.
func renderFields(pairs [][]string, colorize bool) string {
	if len(pairs) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	for _, pair := range pairs {
		tw.AppendRow(padRow(pair, 2))
	}
	configs := []table.ColumnConfig{wrapColumn(2)}
	if colorize {
		configs = append(configs, table.ColumnConfig{Number: 1, Colors: text.Colors{text.Bold}})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func padRow(cells []string, width int) table.Row {
	row := make(table.Row, width)
	for i := range width {
		if i < len(cells) {
			row[i] = cells[i]
		} else {
			row[i] = ""
		}
	}
	return row
}

func wrapColumn(number int) table.ColumnConfig {
	return table.ColumnConfig{
		Number:           number,
		WidthMax:         maxDetailWidth,
		WidthMaxEnforcer: text.WrapSoft,
	}
}
