// Package report renders a finished run as plain-text tables.
package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/lysyi3m/event-comb/app/progress"
	"github.com/lysyi3m/event-comb/app/runs"
)

const maxCellWidth = 60

// Render writes the source statuses, the merged events and the warnings of a
// run to w.
func Render(w io.Writer, snapshot runs.Snapshot) {
	fmt.Fprintf(w, "Run %s: %s (%d/%d sources done, %d completed, %d failed)\n\n",
		snapshot.ID,
		snapshot.State,
		snapshot.Progress.Done,
		snapshot.Progress.Total,
		snapshot.Progress.Completed,
		snapshot.Progress.Failed,
	)

	renderStatuses(w, snapshot.Statuses)
	fmt.Fprintln(w)
	renderEvents(w, snapshot)

	if len(snapshot.Warnings) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Warnings:")
		for _, warning := range snapshot.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
	}
}

func renderStatuses(w io.Writer, statuses []progress.SourceStatus) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Source", "State", "Events", "Message"})
	for _, status := range statuses {
		t.AppendRow(table.Row{
			status.DisplayName,
			stateText(status.State),
			status.EventCount,
			status.Message,
		})
	}

	t.Render()
}

func renderEvents(w io.Writer, snapshot runs.Snapshot) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Title", WidthMax: maxCellWidth},
		{Name: "Link", WidthMax: maxCellWidth},
	})

	t.AppendHeader(table.Row{"#", "Title", "Date", "Location", "Link"})
	for i, candidate := range snapshot.Events {
		t.AppendRow(table.Row{i + 1, candidate.Title, candidate.Date, candidate.Location, candidate.Link})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d events", len(snapshot.Events))})

	t.Render()
}

func stateText(state progress.State) string {
	switch state {
	case progress.StateCompleted:
		return text.FgGreen.Sprint(string(state))
	case progress.StateFailed:
		return text.FgRed.Sprint(string(state))
	default:
		return string(state)
	}
}
