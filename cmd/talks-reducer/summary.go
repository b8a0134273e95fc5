package main

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/maauso/talks-reducer/internal/chunk"
)

// renderChunkSummary lists the first limit chunks and the totals.
func renderChunkSummary(chunks []chunk.Chunk, limit int) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Kind", "Source frames", "Output frames", "Length"})

	for i, c := range chunks {
		if i >= limit {
			break
		}
		kind := "silent"
		if c.Loud {
			kind = "sounded"
		}
		tw.AppendRow(table.Row{
			i + 1,
			kind,
			fmt.Sprintf("%d-%d", c.OldStart, c.OldEnd),
			fmt.Sprintf("%d-%d", c.NewStart, c.NewEnd),
			fmt.Sprintf("%d -> %d", c.OldLen(), c.NewLen()),
		})
	}

	oldFrames, newFrames := chunk.Totals(chunks)
	tw.AppendFooter(table.Row{
		"",
		strconv.Itoa(len(chunks)) + " chunks",
		strconv.Itoa(oldFrames),
		strconv.Itoa(newFrames),
		reduction(oldFrames, newFrames),
	})

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	return tw.Render()
}

// reduction formats how much shorter the output is than the source.
func reduction(oldFrames, newFrames int) string {
	if oldFrames == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%% shorter", 100*float64(oldFrames-newFrames)/float64(oldFrames))
}
