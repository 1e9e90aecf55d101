package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dvloznov/expense-tracker/internal/domain"
	infraBQ "github.com/dvloznov/expense-tracker/internal/infra/bigquery"
)

// printStatement writes a parsed statement as an aligned table.
func printStatement(w io.Writer, parsed *domain.ParsedStatement, categories []domain.Category) {
	titles := make(map[int64]string, len(categories))
	for _, c := range categories {
		titles[c.ID] = c.Title
	}

	fmt.Fprintln(w, "=== Statement ===")
	fmt.Fprintf(w, "Bank:     %s\n", parsed.Bank)
	if parsed.StatementDate != nil {
		fmt.Fprintf(w, "Date:     %s\n", parsed.StatementDate.Format("2006-01-02"))
	} else {
		fmt.Fprintln(w, "Date:     (not found)")
	}
	fmt.Fprintf(w, "Expenses: %d\n", len(parsed.Expenses))
	fmt.Fprintf(w, "Skipped:  %d\n", parsed.Skipped)
	fmt.Fprintf(w, "Total:    %s\n\n", parsed.Total().StringFixed(domain.AmountScale))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tDATE\tAMOUNT\tCATEGORY\tDESCRIPTION")
	for _, e := range parsed.Expenses {
		category := "-"
		if e.CategoryID != nil {
			category = titles[*e.CategoryID]
		} else if e.CategoryLabel != "" {
			category = "? " + e.CategoryLabel
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			e.Line, e.Date.Format("2006-01-02"), e.Amount.StringFixed(domain.AmountScale), category, e.Description)
	}
	tw.Flush()
}

// printMonthly writes BigQuery monthly totals.
func printMonthly(w io.Writer, rows []*infraBQ.MonthlyTotalRow) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MONTH\tEXPENSES\tTOTAL")
	for _, r := range rows {
		fmt.Fprintf(tw, "%04d-%02d\t%d\t%s\n", r.Month.Year, int(r.Month.Month), r.Count, r.Amount.FloatString(2))
	}
	tw.Flush()
}
