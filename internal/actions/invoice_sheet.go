package actions

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// InvoiceSheet is the worksheet name used for rendered invoices.
const InvoiceSheet = "Invoice"

// Cells holding the computed fields, exported for readers of the workbook.
const (
	CellInvoiceNumber = "B3"
	CellIssueDate     = "B4"
	CellDueDate       = "B5"
	CellClientName    = "B9"
	CellClientEmail   = "B10"
	CellDescription   = "A13"
	CellSubtotal      = "D15"
	CellTax           = "D16"
	CellTotal         = "D17"
)

// RenderInvoice lays inv out as a single-sheet .xlsx workbook.
func RenderInvoice(inv Invoice) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", InvoiceSheet); err != nil {
		return nil, err
	}

	title, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 18}})
	if err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return nil, err
	}
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"1F4E78"}},
	})
	if err != nil {
		return nil, err
	}

	taxLabel := "Tax"
	if inv.TaxRate > 0 {
		taxLabel = fmt.Sprintf("Tax (%g%%)", inv.TaxRate*100)
	}

	cells := []struct {
		cell  string
		value any
	}{
		{"A1", "INVOICE"},
		{"A3", "Invoice Number"}, {CellInvoiceNumber, inv.Number},
		{"A4", "Issue Date"}, {CellIssueDate, inv.IssueDate},
		{"A5", "Due Date"}, {CellDueDate, inv.DueDate},
		{"A7", "From"}, {"B7", inv.Issuer.Name},
		{"C7", inv.Issuer.Email}, {"D7", inv.Issuer.Address},
		{"A9", "Bill To"}, {CellClientName, inv.ClientName},
		{CellClientEmail, inv.ClientEmail},
		{"A12", "Description"}, {"B12", "Qty"}, {"C12", "Unit Price (" + inv.Currency + ")"}, {"D12", "Amount (" + inv.Currency + ")"},
		{CellDescription, inv.Description}, {"B13", 1}, {"C13", inv.Amount}, {"D13", inv.Amount},
		{"C15", "Subtotal"}, {CellSubtotal, inv.Amount},
		{"C16", taxLabel}, {CellTax, inv.Tax},
		{"C17", "Total"}, {CellTotal, inv.Total},
		{"A19", "Terms"}, {"B19", inv.Terms},
	}
	for _, c := range cells {
		if err := f.SetCellValue(InvoiceSheet, c.cell, c.value); err != nil {
			return nil, err
		}
	}

	styles := []struct {
		from, to string
		style    int
	}{
		{"A1", "A1", title},
		{"A3", "A9", bold},
		{"A12", "D12", header},
		{"C13", "D17", money},
		{"C15", "C17", bold},
		{"A19", "A19", bold},
	}
	for _, s := range styles {
		if err := f.SetCellStyle(InvoiceSheet, s.from, s.to, s.style); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(InvoiceSheet, "A", "A", 36); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(InvoiceSheet, "B", "D", 22); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
