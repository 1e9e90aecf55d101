// Package export renders committed statements as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	SummarySheet  = "Summary"
	ExpensesSheet = "Expenses"

	// ContentType is the MIME type of the written workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var expenseHeader = []interface{}{"Date", "Description", "Amount", "Category", "Note"}

// StatementWorkbook builds a two-sheet workbook: a summary of the statement
// header and one row per expense in the given order.
func StatementWorkbook(st domain.Statement, expenses []domain.Expense) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("StatementWorkbook: rename sheet: %w", err)
	}
	if _, err := f.NewSheet(ExpensesSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("StatementWorkbook: add sheet: %w", err)
	}

	if err := writeSummary(f, st, expenses); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeExpenses(f, expenses); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// WriteStatement writes the statement workbook to w.
func WriteStatement(w io.Writer, st domain.Statement, expenses []domain.Expense) error {
	f, err := StatementWorkbook(st, expenses)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("WriteStatement: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, st domain.Statement, expenses []domain.Expense) error {
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}

	rows := [][]interface{}{
		{"Name", st.Name},
		{"Bank", string(st.Bank)},
		{"Statement date", st.Date.Format("2006-01-02")},
		{"Expenses", len(expenses)},
		{"Total", total.InexactFloat64()},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("writeSummary: %w", err)
		}
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("writeSummary: row %d: %w", i+1, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("writeSummary: style: %w", err)
	}
	if err := f.SetCellStyle(SummarySheet, "A1", fmt.Sprintf("A%d", len(rows)), bold); err != nil {
		return fmt.Errorf("writeSummary: apply style: %w", err)
	}
	return f.SetColWidth(SummarySheet, "A", "B", 20)
}

func writeExpenses(f *excelize.File, expenses []domain.Expense) error {
	if err := f.SetSheetRow(ExpensesSheet, "A1", &expenseHeader); err != nil {
		return fmt.Errorf("writeExpenses: header: %w", err)
	}

	dateFmt := "yyyy-mm-dd"
	dateStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &dateFmt})
	if err != nil {
		return fmt.Errorf("writeExpenses: date style: %w", err)
	}
	// 4 is the built-in "#,##0.00" format.
	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return fmt.Errorf("writeExpenses: amount style: %w", err)
	}

	for i, e := range expenses {
		rowNum := i + 2
		row := []interface{}{e.Date, e.Description, e.Amount.InexactFloat64(), e.CategoryTitle, e.Note}
		if err := f.SetSheetRow(ExpensesSheet, fmt.Sprintf("A%d", rowNum), &row); err != nil {
			return fmt.Errorf("writeExpenses: row %d: %w", rowNum, err)
		}
	}

	if n := len(expenses); n > 0 {
		last := n + 1
		if err := f.SetCellStyle(ExpensesSheet, "A2", fmt.Sprintf("A%d", last), dateStyle); err != nil {
			return fmt.Errorf("writeExpenses: date column: %w", err)
		}
		if err := f.SetCellStyle(ExpensesSheet, "C2", fmt.Sprintf("C%d", last), amountStyle); err != nil {
			return fmt.Errorf("writeExpenses: amount column: %w", err)
		}
	}

	if err := f.SetColWidth(ExpensesSheet, "A", "A", 12); err != nil {
		return err
	}
	return f.SetColWidth(ExpensesSheet, "B", "B", 40)
}
