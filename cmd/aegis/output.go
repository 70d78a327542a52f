package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/jmerrifield20/QuantumAegis/internal/intel"
	"github.com/jmerrifield20/QuantumAegis/internal/metrics"
	"github.com/jmerrifield20/QuantumAegis/internal/threat"
	"github.com/jmerrifield20/QuantumAegis/pkg/client"
	"github.com/olekukonko/tablewriter"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

// render writes v as indented JSON or calls table.
func render(w io.Writer, v any, table func()) error {
	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	table()
	return nil
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetColumnSeparator("│")
	return table
}

func printMetrics(w io.Writer, m *client.Metrics) {
	table := newTable(w, []string{"Metric", "Value"})
	table.Append([]string{"Threats blocked", strconv.Itoa(m.ThreatsBlocked)})
	table.Append([]string{"Mean time to detect", fmt.Sprintf("%.1fs", m.MTTD)})
	table.Append([]string{"AI confidence", fmt.Sprintf("%.1f%%", m.AIConfidence)})
	table.Append([]string{"Quantum keys", strconv.Itoa(m.QuantumKeys)})
	table.Render()

	fmt.Fprintf(w, "  Source: %s at %s\n", m.Source, m.Timestamp.Format("2006-01-02 15:04:05 MST"))
}

func printThreats(w io.Writer, items []client.Threat) {
	if len(items) == 0 {
		fmt.Fprintln(w, "  No threats.")
		return
	}

	table := newTable(w, []string{"Severity", "Title", "Type", "Source", "Status", "Conf"})
	counts := map[string]int{}
	for _, t := range items {
		counts[t.Severity]++
		table.Append([]string{
			colorSeverity(t.Severity),
			t.Title,
			t.Type,
			t.Source,
			t.Status,
			strconv.Itoa(t.Confidence) + "%",
		})
	}
	table.Render()

	fmt.Fprintf(w, "  Summary: %d threats (%d critical, %d high, %d medium, %d low)\n",
		len(items), counts["critical"], counts["high"], counts["medium"], counts["low"])
}

func printDecision(w io.Writer, d *client.Decision) {
	fmt.Fprintf(w, "\n%s  %s  risk %.2f\n", d.IP, colorDecision(d.Decision), d.Risk)
	if len(d.Reasons) == 0 {
		fmt.Fprintln(w, "  No adverse signals.")
		return
	}
	for _, r := range d.Reasons {
		fmt.Fprintf(w, "  - %s\n", r)
	}
}

func colorSeverity(s string) string {
	switch s {
	case "critical":
		return color.RedString("CRITICAL")
	case "high":
		return color.RedString("HIGH")
	case "medium":
		return color.YellowString("MEDIUM")
	case "low":
		return color.CyanString("LOW")
	default:
		return strings.ToUpper(s)
	}
}

func colorDecision(d string) string {
	switch d {
	case intel.VerdictDeny:
		return color.RedString("DENY")
	case intel.VerdictFlag:
		return color.YellowString("FLAG")
	case intel.VerdictAllow:
		return color.GreenString("ALLOW")
	default:
		return strings.ToUpper(d)
	}
}

// ── local → wire conversions ─────────────────────────────────────────────────

func fromSnapshot(s metrics.Snapshot) *client.Metrics {
	return &client.Metrics{
		ThreatsBlocked: s.ThreatsBlocked,
		MTTD:           s.MTTD,
		AIConfidence:   s.Confidence,
		QuantumKeys:    s.ActiveKeys,
		Timestamp:      s.Timestamp,
		Source:         s.Source,
	}
}

func fromSummary(s threat.Summary) client.Threat {
	return client.Threat{
		ID:              s.ID,
		Title:           s.Title,
		Source:          string(s.Source),
		Type:            string(s.Category),
		Status:          string(s.Status),
		Severity:        s.Severity.String(),
		Confidence:      s.Confidence,
		Timestamp:       s.Timestamp,
		EnginesDetected: s.EnginesDetected,
		FileSize:        s.FileSize,
		FileType:        s.FileType,
		SHA256:          s.SHA256,
		ReferenceURL:    s.ReferenceURL,
	}
}

func fromDecision(d intel.Decision) (*client.Decision, error) {
	signals, err := json.Marshal(d.Signals)
	if err != nil {
		return nil, fmt.Errorf("encode signals: %w", err)
	}
	return &client.Decision{
		IP:       d.IP,
		Risk:     d.Risk,
		Decision: d.Decision,
		Reasons:  d.Reasons,
		Signals:  signals,
		Cached:   d.Cached,
	}, nil
}
