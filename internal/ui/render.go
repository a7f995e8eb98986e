package ui

import (
	"fmt"
	"strings"

	"github.com/orchidlab/synthctl/internal/readiness"
	"github.com/orchidlab/synthctl/internal/runloop"
	"github.com/orchidlab/synthctl/internal/station"
)

func statusIcon(status string) string {
	if status == readiness.StatusSatisfied {
		return PassStyle.Render(IconPass)
	}
	return FailStyle.Render(IconFail)
}

// RenderReadiness formats a readiness report for the terminal.
func RenderReadiness(r *readiness.Report) string {
	var b strings.Builder

	b.WriteString(HeaderStyle.Render("Reagents"))
	b.WriteString("\n")
	if len(r.Reagents) == 0 {
		b.WriteString(MutedStyle.Render("  (none required)"))
		b.WriteString("\n")
	}
	for _, row := range r.Reagents {
		need := fmt.Sprintf("%.1fmg", row.NeedMg)
		avail := fmt.Sprintf("%.1fmg", row.AvailMg)
		if row.NeedML > 0 {
			need = fmt.Sprintf("%.1fmL", row.NeedML)
			avail = fmt.Sprintf("%.1fmL", row.AvailML)
		}
		diff := row.Diff
		if row.Status == readiness.StatusShort {
			diff = FailStyle.Render(diff)
		} else {
			diff = MutedStyle.Render(diff)
		}
		fmt.Fprintf(&b, "  %s %-24s need %-10s have %-10s %s\n",
			statusIcon(row.Status), row.Substance, need, avail, diff)
	}

	b.WriteString(HeaderStyle.Render("Consumables"))
	b.WriteString("\n")
	for _, row := range r.Consumables {
		fmt.Fprintf(&b, "  %s %-24s need %-6d have %-6d\n",
			statusIcon(row.Status), row.Name, row.Need, row.Available)
	}

	b.WriteString(Separator)
	b.WriteString("\n")
	if r.Ready {
		fmt.Fprintf(&b, "%s ready to start\n", PassStyle.Render(IconPass))
	} else {
		fmt.Fprintf(&b, "%s not ready\n", FailStyle.Render(IconFail))
		for _, s := range r.Shortages {
			fmt.Fprintf(&b, "  %s %s\n", FailStyle.Render(IconFail), s)
		}
	}
	if r.StationMsg != "" {
		fmt.Fprintf(&b, "%s station: %s\n", WarnStyle.Render(IconWarn), r.StationMsg)
	}
	return b.String()
}

// RenderStep formats one progress step line.
func RenderStep(step string) string {
	return fmt.Sprintf("  %s %s", AccentStyle.Render("•"), step)
}

// RenderGlovebox formats the atmosphere snapshot.
func RenderGlovebox(env *station.GloveboxEnv) string {
	return fmt.Sprintf("pressure %+.0f Pa   O2 %.2f ppm   H2O %.2f ppm",
		env.Pressure, env.O2PPM, env.H2OPPM)
}

// RenderInventory formats the station inventory, one line per tray.
func RenderInventory(rows []station.InventoryRow) string {
	var b strings.Builder
	for _, row := range rows {
		name := row.Name
		if name == "" {
			name = station.ConsumableName(station.ConsumableForTray(row.TrayCode))
		}
		fmt.Fprintf(&b, "%-10s %-8d %-28s count %d\n", row.LayoutCode, row.TrayCode, name, row.Count)
		for _, d := range row.Details {
			fmt.Fprintf(&b, "  %s %-4s %s\n", MutedStyle.Render("└"), d.Well, d.Substance)
		}
	}
	return b.String()
}

// RenderTaskList formats the station task queue.
func RenderTaskList(tasks []station.TaskInfo) string {
	var b strings.Builder
	for _, t := range tasks {
		status := t.Status
		switch {
		case t.Status == station.TaskCompleted:
			status = PassStyle.Render(status)
		case station.TaskTerminal(t.Status):
			status = FailStyle.Render(status)
		case t.Status == station.TaskRunning:
			status = AccentStyle.Render(status)
		default:
			status = MutedStyle.Render(status)
		}
		fmt.Fprintf(&b, "%6d  %-32s %s\n", t.ID, t.Name, status)
	}
	return b.String()
}

// RenderDischarge formats an executed discharge plan.
func RenderDischarge(log *runloop.DischargeLog) string {
	var b strings.Builder
	for _, e := range log.Entries {
		fmt.Fprintf(&b, "  %s %s %s %s\n",
			PassStyle.Render(IconPass), e.Source, MutedStyle.Render("→"), e.Dest)
	}
	fmt.Fprintf(&b, "%d trays moved to the transfer buffer\n", len(log.Entries))
	return b.String()
}
