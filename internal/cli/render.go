package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"agency-tracker/pkg/classify"
	"agency-tracker/pkg/tracker"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	badgeColors = map[classify.Badge]lipgloss.Color{
		classify.BadgeHighRisk:   lipgloss.Color("196"),
		classify.BadgeMediumRisk: lipgloss.Color("214"),
		classify.BadgeBlocked:    lipgloss.Color("141"),
		classify.BadgeOnTrack:    lipgloss.Color("42"),
	}
)

func badge(b classify.Badge) string {
	return lipgloss.NewStyle().Foreground(badgeColors[b]).Bold(true).Render(string(b))
}

// renderClient prints one client block. The badge is the last column so its
// escape codes do not disturb tabwriter alignment.
func renderClient(w io.Writer, v tracker.ClientView) {
	r := v.Rollup
	fmt.Fprintf(w, "%s  %s\n", headingStyle.Render(v.Client.Name), badge(v.Risk))
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%d tasks, %d done (%d%%), %d overdue, %d stale, %d blocked",
		r.Total, r.Done, r.Pct, r.Overdue, r.Stale, r.Blocked)))
	if len(v.Projects) == 0 {
		fmt.Fprintln(w, "  no projects")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  PROJECT\tSTATUS\tDUE\tDONE\tOVERDUE\tSTALE\tBLOCKED\tRISK")
	for _, p := range v.Projects {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%d%%\t%d\t%d\t%d\t%s\n",
			p.Project.Name, p.Project.Status.DisplayName(), p.Project.DueDate,
			p.Pct, p.Overdue, p.Stale, p.Blocked, badge(p.Risk))
	}
	_ = tw.Flush()
}

func renderFollowUps(w io.Writer, fu tracker.FollowUps) {
	section := func(title string, items []tracker.FollowUp, when func(tracker.FollowUp) string) {
		fmt.Fprintf(w, "%s (%d)\n", headingStyle.Render(title), len(items))
		if len(items) == 0 {
			fmt.Fprintln(w, dimStyle.Render("  nothing to chase"))
			return
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, f := range items {
			remind := f.Link
			switch {
			case !f.CanRemind:
				remind = dimStyle.Render("reminded <24h ago")
			case remind == "":
				remind = dimStyle.Render("no phone")
			}
			fmt.Fprintf(tw, "  %s\t%s / %s\t%s\t%s\t%s\n",
				f.Task.Title, f.ClientName, f.ProjectName, orDash(f.AssigneeName), when(f), remind)
		}
		_ = tw.Flush()
	}

	section("Overdue", fu.Overdue, func(f tracker.FollowUp) string { return "due " + f.Task.DueDate.String() })
	fmt.Fprintln(w)
	section("Stale", fu.Stale, func(f tracker.FollowUp) string {
		return "updated " + f.Task.LastUpdateAt.Format("2006-01-02")
	})
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
