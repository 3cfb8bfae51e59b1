package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/heyjunin/hlsvault/pkg/cache"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the rendition cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cached renditions",
		RunE:  runCacheList,
	})
	return cmd
}

func runCacheList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	entries, err := a.cache.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No cached renditions in", a.cache.Root())
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderEntries(entries))
	return nil
}

func renderEntries(entries []cache.Entry) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Folder", "Status", "Segments", "Size", "Modified"})

	var total int64
	for _, e := range entries {
		status := "partial"
		if e.Complete {
			status = "complete"
		}
		total += e.Size
		tw.AppendRow(table.Row{
			e.Folder,
			status,
			strconv.Itoa(e.Segments),
			humanize.Bytes(uint64(e.Size)),
			humanize.Time(e.ModTime),
		})
	}
	tw.AppendFooter(table.Row{fmt.Sprintf("%d renditions", len(entries)), "", "", humanize.Bytes(uint64(total)), ""})

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}
