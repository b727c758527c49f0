package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/wonny/swingdag/internal/session"
	"github.com/wonny/swingdag/internal/swing"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const (
	ruleHeavy = "═══════════════════════════════════════════════════════════"
	ruleLight = "───────────────────────────────────────────────────────────"
)

// printHeader prints a boxed section title
func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, ruleHeavy)
	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintln(w, ruleLight)
}

// printField prints one aligned "label : value" row
func printField(w io.Writer, label string, value interface{}) {
	fmt.Fprintf(w, "  %-14s: %v\n", label, value)
}

func printReplaySummary(w io.Writer, sessionID string, stats session.ReplayStats, v session.View) {
	printHeader(w, "Replay "+sessionID)
	printField(w, "Bars", stats.Bars)
	printField(w, "Events", stats.Events)
	printField(w, "Last event", v.LastEventSeq)
	printField(w, "Active legs", len(v.Legs))
	printField(w, "Formed", v.Distribution.Count())
	printField(w, "Duration", stats.Duration.Round(1e6))
	if v.Halted != "" {
		printField(w, "Halted", v.Halted)
	}
	fmt.Fprintln(w, ruleHeavy)
}

// printLegTable prints legs grouped by direction, deepest hierarchy last.
func printLegTable(w io.Writer, legs []swing.Leg) {
	sorted := append([]swing.Leg(nil), legs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Direction != sorted[j].Direction {
			return sorted[i].Direction < sorted[j].Direction
		}
		return sorted[i].Depth < sorted[j].Depth
	})

	fmt.Fprintf(w, "  %-22s %-4s %5s %12s %12s %10s %s\n", "ID", "DIR", "DEPTH", "ORIGIN", "PIVOT", "RANGE", "FLAGS")
	fmt.Fprintln(w, ruleLight)
	for _, l := range sorted {
		var flags []string
		if l.IsFormed() {
			flags = append(flags, "formed")
		}
		if l.OriginBreached() {
			flags = append(flags, "invalidated")
		}
		fmt.Fprintf(w, "  %-22s %-4s %5d %12.4f %12.4f %10.4f %s\n",
			l.ID, l.Direction, l.Depth, l.Origin.Price, l.Pivot.Price, l.Range, strings.Join(flags, ","))
	}
}
