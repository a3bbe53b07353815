// Package report renders check results for humans and scrapers.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/ethpandaops/upicheck/internal/export"
	"github.com/ethpandaops/upicheck/internal/linkcheck"
)

// Format selects how a result is rendered.
type Format string

const (
	FormatText       Format = "text"
	FormatTable      Format = "table"
	FormatJSON       Format = "json"
	FormatPrometheus Format = "prometheus"
)

// ParseFormat validates a format name. The empty string selects text.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatText:
		return FormatText, nil
	case FormatTable, FormatJSON, FormatPrometheus:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q (text, table, json, prometheus)", s)
	}
}

// Render writes res to w. Text output is only produced in verbose mode;
// the other formats always render.
func Render(w io.Writer, format Format, verbose bool, res *linkcheck.Result) error {
	switch format {
	case FormatText, "":
		if !verbose || res.Verdict == linkcheck.VerdictVacuous {
			return nil
		}

		return renderText(w, res)
	case FormatTable:
		return renderTable(w, res)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(res)
	case FormatPrometheus:
		m := export.NewMetrics()
		m.Observe(res, time.Now())

		return m.WriteText(w)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderText(w io.Writer, res *linkcheck.Result) error {
	if _, err := fmt.Fprintf(w,
		"average outgoing data     : %4.1fGB/s (variance=%5.4f)\n"+
			"average outgoing non data : %4.1fGB/s (variance=%5.4f)\n",
		res.Data.Mean, res.Data.Variance,
		res.NonData.Mean, res.NonData.Variance,
	); err != nil {
		return err
	}

	for _, l := range res.Links {
		if _, err := fmt.Fprintf(w, "%s = %5.2fGB/s / %5.2fGB/s\n", l.Key, l.Data, l.NonData); err != nil {
			return err
		}
	}

	return nil
}

func renderTable(w io.Writer, res *linkcheck.Result) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"LINK", "DATA GB/S", "NON-DATA GB/S"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")

	for _, l := range res.Links {
		table.Append([]string{
			l.Key,
			fmt.Sprintf("%.2f", l.Data),
			fmt.Sprintf("%.2f", l.NonData),
		})
	}

	table.Append([]string{"MEAN", fmt.Sprintf("%.2f", res.Data.Mean), fmt.Sprintf("%.2f", res.NonData.Mean)})
	table.Append([]string{"VARIANCE", fmt.Sprintf("%.4f", res.Data.Variance), fmt.Sprintf("%.4f", res.NonData.Variance)})
	table.Render()

	verdict := string(res.Verdict)
	if res.Message != "" {
		verdict += ": " + res.Message
	}

	_, err := fmt.Fprintf(w, "\nVERDICT    %s\n", verdict)

	return err
}
