package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// renderTable builds a rounded-border table from string rows. Rows shorter
// than the header are padded with empty cells so ragged input renders cleanly.
func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	if len(headers) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(toTableRow(headers, len(headers)))
	for _, row := range rows {
		tw.AppendRow(toTableRow(row, len(headers)))
	}
	tw.SetColumnConfigs(columnConfigs(aligns, len(headers)))
	return tw.Render()
}

func toTableRow(cells []string, width int) table.Row {
	row := make(table.Row, 0, width)
	for _, cell := range cells {
		row = append(row, cell)
	}
	for len(row) < width {
		row = append(row, "")
	}
	return row[:width]
}

func columnConfigs(aligns []columnAlignment, width int) []table.ColumnConfig {
	configs := make([]table.ColumnConfig, 0, width)
	for i := 0; i < width; i++ {
		cfg := table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
		if i < len(aligns) && aligns[i] == alignRight {
			cfg.Align = text.AlignRight
		}
		configs = append(configs, cfg)
	}
	return configs
}
