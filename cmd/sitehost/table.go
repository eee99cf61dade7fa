package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"sitehost/internal/api"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

var projectColumns = []struct {
	header string
	align  columnAlignment
}{
	{"Project", alignLeft},
	{"Port", alignRight},
	{"Local URL", alignLeft},
	{"Public URL", alignLeft},
	{"Files", alignRight},
	{"Created", alignLeft},
}

func renderProjectTable(projects []api.Project) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(projectColumns))
	configs := make([]table.ColumnConfig, len(projectColumns))
	for i, col := range projectColumns {
		header[i] = col.header
		align := text.AlignLeft
		if col.align == alignRight {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, p := range projects {
		tw.AppendRow(table.Row{
			p.ProjectID,
			strconv.Itoa(p.Port),
			p.URL,
			publicSummary(p),
			strconv.Itoa(len(p.Files)),
			p.CreatedAt,
		})
	}
	return tw.Render()
}
