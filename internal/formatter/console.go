package formatter

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/macprof-analysis/pkg/model"
	"github.com/macprof-analysis/pkg/utils"
)

const rule = "--------------------------------------------"

// ConsoleReporter prints the function tables, the per-line breakdown and
// every distinct stack trace.
type ConsoleReporter struct {
	opts *Options
}

// NewConsoleReporter creates a console reporter.
func NewConsoleReporter(opts *Options) *ConsoleReporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &ConsoleReporter{opts: opts}
}

// Report implements Reporter.
func (r *ConsoleReporter) Report(w io.Writer, result *model.AnalysisResult) error {
	agg := result.Aggregate
	if agg == nil {
		agg = model.NewAggregateResult()
	}

	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "Total samples:    %s\n", humanize.Comma(int64(result.UsableStacks())))
	fmt.Fprintf(bw, "Unusable samples: %s\n", humanize.Comma(int64(result.UnusableStacks())))

	r.section(bw, "Functions by inclusive samples:")
	r.tallyTable(bw, agg.Inclusive, agg.UsableStacks)

	r.section(bw, "Functions by exclusive samples:")
	r.tallyTable(bw, agg.Exclusive, agg.UsableStacks)

	r.section(bw, "Samples by function and line:")
	r.lineBreakdown(bw, agg)

	r.section(bw, "All stack traces:")
	for _, st := range agg.SortedStackTraces() {
		fmt.Fprintf(bw, "\n(%s)\n", timesLabel(st.Count))
		for depth, sym := range st.Symbols {
			fmt.Fprintf(bw, "%s%s\n", strings.Repeat("  ", depth+1), sym)
		}
	}

	return bw.Flush()
}

func (r *ConsoleReporter) section(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n%s\n%s\n\n", rule, title, rule)
}

func (r *ConsoleReporter) tallyTable(w io.Writer, tallies model.Tallies, total int) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Function", "Samples", "Percent"})
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT})
	for _, e := range tallies.Sorted() {
		table.Append([]string{
			utils.Truncate(e.Symbol, r.opts.FunctionMaxChars),
			humanize.Comma(int64(e.Count)),
			fmt.Sprintf("%.2f%%", model.Percent(e.Count, total)),
		})
	}
	table.Render()
}

func (r *ConsoleReporter) lineBreakdown(w io.Writer, agg *model.AggregateResult) {
	for _, fn := range agg.FunctionNames() {
		lines := agg.FunctionSamples[fn]
		total := lines.Total()
		if total == 0 {
			continue
		}

		header := "=== " + fn + " "
		if pad := 44 - len(header); pad > 0 {
			header += strings.Repeat("=", pad)
		}
		fmt.Fprintf(w, "\n%s\n", header)

		for _, s := range lines.Sorted() {
			fmt.Fprintf(w, "  count:%6d %6.2f%%  %*s:%-5d %s\n",
				s.Count, model.Percent(s.Count, total),
				r.opts.FilenameMaxChars, utils.Truncate(s.FileName, r.opts.FilenameMaxChars),
				s.Line, strings.TrimSpace(s.Source))
		}
	}
}

func timesLabel(n int) string {
	if n == 1 {
		return "1 time:"
	}
	return fmt.Sprintf("%s times:", humanize.Comma(int64(n)))
}
