package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"shopload/bulkload"
	"shopload/generator"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen, color.Bold)
	warnColor    = color.New(color.FgYellow)
)

func step(logger *slog.Logger, n, total int, title string) {
	logger.Info(fmt.Sprintf("[%d/%d] %s", n, total, title))
}

// redacted hides the password of a URL style DSN.
func redacted(dsn string) string {
	if i := strings.Index(dsn, "://"); i >= 0 {
		rest := dsn[i+3:]
		if j := strings.LastIndex(rest, "@"); j >= 0 {
			cred := rest[:j]
			if k := strings.Index(cred, ":"); k >= 0 {
				cred = cred[:k] + ":***"
			}
			return dsn[:i+3] + cred + rest[j:]
		}
	}
	// key=value style (sqlserver ADO, go-ora options).
	parts := strings.Split(dsn, ";")
	for i, p := range parts {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) == 2 && strings.EqualFold(strings.TrimSpace(kv[0]), "password") {
			parts[i] = kv[0] + "=***"
		}
	}
	return strings.Join(parts, ";")
}

func printGenerateSummary(w io.Writer, summaries []generator.Summary) {
	headerColor.Fprintln(w, "Generated files")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tROWS\tFILE\tTIME")
	total := 0
	for _, s := range summaries {
		total += s.Rows
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Entity, humanize.Comma(int64(s.Rows)), s.File, s.Duration.Round(time.Millisecond))
	}
	_ = tw.Flush()
	for _, s := range summaries {
		if s.Shortfall() > 0 {
			warnColor.Fprintf(w, "Warning: %s has %s of %s requested rows after %s attempts\n",
				s.Entity, humanize.Comma(int64(s.Rows)), humanize.Comma(int64(s.Requested)), humanize.Comma(int64(s.Attempts)))
		}
	}
	successColor.Fprintf(w, "%s rows written\n", humanize.Comma(int64(total)))
}

func printLoadReport(w io.Writer, plan string, report bulkload.Report) {
	headerColor.Fprintf(w, "Plan %s\n", plan)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tTABLE\tROWS\tBATCHES\tSKIPPED\tTIME")
	for _, s := range report.Steps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", s.Name, s.Table,
			humanize.Comma(int64(s.Rows)), s.Batches, humanize.Comma(int64(s.Skipped)), s.Duration.Round(time.Millisecond))
	}
	_ = tw.Flush()
}
