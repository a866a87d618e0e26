package controller

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	m "gooze.dev/pkg/mutrun/internal/model"
)

// RenderScoreSummary renders the condensed per-class and per-method score tables.
func RenderScoreSummary(table m.ScoreTable) string {
	var buf bytes.Buffer

	buf.WriteString("Classes\n")
	renderScoreTable(&buf, []string{"Class", "Killed", "Covered", "Total", "Covered %", "Generated %"}, table.Classes, false)

	buf.WriteString("\nMethods\n")
	renderScoreTable(&buf, []string{"Class", "Method", "Killed", "Covered", "Total", "Covered %", "Generated %"}, table.Methods, true)

	killed, covered, total := 0, 0, 0
	for _, entry := range table.Classes {
		killed += entry.Killed
		covered += entry.Covered
		total += entry.Total
	}

	overall := m.ScoreEntry{Killed: killed, Covered: covered, Total: total}
	fmt.Fprintf(&buf, "\nMutation score: %s of covered, %s of generated (%d killed, %d covered, %d generated)\n",
		percent(overall.ScoreOfCovered()), percent(overall.ScoreOfGenerated()), killed, covered, total)

	return buf.String()
}

func renderScoreTable(buf *bytes.Buffer, header []string, entries []m.ScoreEntry, withClass bool) {
	table := tablewriter.NewWriter(buf)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)

	for _, entry := range entries {
		row := make([]string, 0, len(header))
		if withClass {
			row = append(row, entry.Class)
		}

		row = append(row,
			entry.Name,
			strconv.Itoa(entry.Killed),
			strconv.Itoa(entry.Covered),
			strconv.Itoa(entry.Total),
			percent(entry.ScoreOfCovered()),
			percent(entry.ScoreOfGenerated()),
		)

		table.Append(row)
	}

	table.Render()
}

// RenderRunSummary renders the end-of-run counts and the mutations that were
// never successfully exercised.
func RenderRunSummary(report m.RunReport) string {
	var buf bytes.Buffer

	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Run", "Total", "Completed", "Destroyed", "Unresolved", "Duration"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.Append([]string{
		report.RunID,
		strconv.Itoa(report.Total),
		strconv.Itoa(report.Completed),
		strconv.Itoa(report.Destroyed),
		strconv.Itoa(len(report.Unresolved)),
		report.Duration.Round(time.Millisecond).String(),
	})
	table.Render()

	if len(report.Classes) > 0 {
		fmt.Fprintf(&buf, "\nClasses under test: %s\n", strings.Join(report.Classes, ", "))
	}

	if len(report.Unresolved) > 0 {
		buf.WriteString("\nMutations without a result:\n")

		for _, mutation := range report.Unresolved {
			fmt.Fprintf(&buf, "  %s\n", mutation.String())
		}
	}

	if len(report.NotExercised) > 0 {
		buf.WriteString("\nSelected mutations never exercised:\n")

		for _, mutation := range report.NotExercised {
			fmt.Fprintf(&buf, "  %s\n", mutation.String())
		}
	}

	return buf.String()
}

// RenderTraceComparison renders the per-mode difference counts and the union.
func RenderTraceComparison(comparison m.TraceComparison) string {
	var buf bytes.Buffer

	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Mode", "Differing classes"})
	table.SetBorder(false)
	table.SetCenterSeparator("")

	for _, pass := range comparison.Passes {
		table.Append([]string{string(pass.Mode), strconv.Itoa(len(pass.Classes))})
	}

	table.Render()

	fmt.Fprintf(&buf, "\n%d class(es) differ between %s and %s\n", len(comparison.Classes), comparison.RunA, comparison.RunB)

	for _, class := range comparison.Classes {
		fmt.Fprintf(&buf, "  %s\n", class)
	}

	return buf.String()
}

// RenderMutationList renders one row per mutation with its status and verdict.
func RenderMutationList(mutations []m.Mutation) string {
	var buf bytes.Buffer

	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"ID", "Class", "Method", "Line", "Operator", "Status", "Verdict"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)

	for _, mutation := range mutations {
		table.Append([]string{
			strconv.FormatInt(mutation.ID, 10),
			mutation.Descriptor.Class,
			mutation.Descriptor.Method,
			strconv.Itoa(mutation.Descriptor.Line),
			mutation.Descriptor.Operator,
			string(mutation.Status),
			verdict(mutation.Result),
		})
	}

	table.Render()
	fmt.Fprintf(&buf, "\n%d mutation(s)\n", len(mutations))

	return buf.String()
}

// RenderMutationDetail renders a mutation and the per-test outcomes of its result.
func RenderMutationDetail(mutation m.Mutation) string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s\n", mutation.String())
	fmt.Fprintf(&buf, "  status:  %s\n", mutation.Status)
	fmt.Fprintf(&buf, "  verdict: %s\n", verdict(mutation.Result))

	if mutation.Result == nil || len(mutation.Result.Outcomes) == 0 {
		return buf.String()
	}

	buf.WriteString("\n")

	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Test", "Passed", "Message"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)

	for _, outcome := range mutation.Result.Outcomes {
		table.Append([]string{outcome.TestName, strconv.FormatBool(outcome.Passed), outcome.Message})
	}

	table.Render()

	return buf.String()
}

func verdict(result *m.ExecutionResult) string {
	switch {
	case result == nil:
		return "-"
	case result.Touched && result.Detected:
		return "killed"
	case result.Touched:
		return "survived"
	default:
		return "not covered"
	}
}

func percent(score float64) string {
	return strconv.FormatFloat(score*100, 'f', 2, 64) + "%"
}
