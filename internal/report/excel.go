package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"parkingnear/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const statementSheet = "Statement"

var statementHeaders = []string{
	"Bill ID", "Request ID", "User", "Vehicle", "Address", "Amount", "Status", "Created", "Paid",
}

// BillLister is the billing read side the statement is built from.
type BillLister interface {
	ListProviderBills(ctx context.Context, providerID int64) ([]*models.BillView, error)
}

type Exporter struct {
	bills  BillLister
	logger *zerolog.Logger
	now    func() time.Time
}

func NewExporter(bills BillLister, logger *zerolog.Logger) *Exporter {
	return &Exporter{bills: bills, logger: logger, now: time.Now}
}

// ProviderStatement writes every bill of the provider's spaces to an xlsx
// file in dir and returns its path. The last row holds pending and paid
// totals.
func (e *Exporter) ProviderStatement(ctx context.Context, providerID int64, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	bills, err := e.bills.ListProviderBills(ctx, providerID)
	if err != nil {
		return "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(statementSheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	for i, header := range statementHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(statementSheet, cell, header)
	}
	bold, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	_ = f.SetCellStyle(statementSheet, "A1", "I1", bold)

	money, _ := f.NewStyle(&excelize.Style{NumFmt: 2}) // 0.00

	pending, paid := decimal.Zero, decimal.Zero
	row := 2
	for _, b := range bills {
		_ = f.SetCellValue(statementSheet, fmt.Sprintf("A%d", row), b.ID)
		_ = f.SetCellValue(statementSheet, fmt.Sprintf("B%d", row), b.RequestID)
		_ = f.SetCellValue(statementSheet, fmt.Sprintf("C%d", row), b.UserName)
		_ = f.SetCellValue(statementSheet, fmt.Sprintf("D%d", row), b.VehicleNumber)
		_ = f.SetCellValue(statementSheet, fmt.Sprintf("E%d", row), b.Address)
		_ = f.SetCellValue(statementSheet, fmt.Sprintf("F%d", row), b.Amount.InexactFloat64())
		_ = f.SetCellValue(statementSheet, fmt.Sprintf("G%d", row), b.Status)
		_ = f.SetCellValue(statementSheet, fmt.Sprintf("H%d", row), b.CreatedAt.Format("02.01.2006 15:04"))
		if b.PaidAt != nil {
			_ = f.SetCellValue(statementSheet, fmt.Sprintf("I%d", row), b.PaidAt.Format("02.01.2006 15:04"))
		}

		if b.IsPaid() {
			paid = paid.Add(b.Amount)
		} else {
			pending = pending.Add(b.Amount)
		}
		row++
	}

	// Итоговая строка
	row++
	_ = f.SetCellValue(statementSheet, fmt.Sprintf("E%d", row), "Total pending")
	_ = f.SetCellValue(statementSheet, fmt.Sprintf("F%d", row), pending.InexactFloat64())
	_ = f.SetCellValue(statementSheet, fmt.Sprintf("G%d", row), "Total paid")
	_ = f.SetCellValue(statementSheet, fmt.Sprintf("H%d", row), paid.InexactFloat64())
	_ = f.SetCellStyle(statementSheet, fmt.Sprintf("E%d", row), fmt.Sprintf("H%d", row), bold)
	_ = f.SetCellStyle(statementSheet, "F2", fmt.Sprintf("F%d", row), money)
	_ = f.SetCellStyle(statementSheet, fmt.Sprintf("H%d", row), fmt.Sprintf("H%d", row), money)

	_ = f.SetColWidth(statementSheet, "A", "B", 10)
	_ = f.SetColWidth(statementSheet, "C", "D", 18)
	_ = f.SetColWidth(statementSheet, "E", "E", 35)
	_ = f.SetColWidth(statementSheet, "F", "I", 16)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("statement_provider_%d_%s.xlsx", providerID, e.now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(dir, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("bills", len(bills)).Msg("Provider statement created")
	return filePath, nil
}
