package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/creditreport-extractor/internal/common"
	"github.com/joseph-ayodele/creditreport-extractor/internal/repository"
)

// Sheet names in workbook order.
const (
	SheetSummary   = "Summary"
	SheetPersonal  = "Personal Info"
	SheetAccounts  = "Accounts"
	SheetInquiries = "Inquiries"
	SheetNegative  = "Negative Items"
)

// Service produces XLSX bytes of the parsed entities of one document.
type Service struct {
	docs     repository.DocumentRepository
	ledger   repository.LedgerRepository
	entities repository.EntityRepository
	logger   *slog.Logger
}

func NewService(docs repository.DocumentRepository, ledger repository.LedgerRepository, entities repository.EntityRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{docs: docs, ledger: ledger, entities: entities, logger: logger}
}

// ExportEntitiesXLSX returns a workbook with a summary sheet and one sheet per
// entity kind. A document without a decision still exports, with empty sheets.
func (s *Service) ExportEntitiesXLSX(ctx context.Context, documentID uuid.UUID) ([]byte, error) {
	start := time.Now()

	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	decision, err := s.ledger.LatestDecision(ctx, documentID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	ents, err := s.entities.Load(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, err
	}
	for _, name := range []string{SheetPersonal, SheetAccounts, SheetInquiries, SheetNegative} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	summary := [][]any{
		{"Document ID", doc.ID.String()},
		{"Source", doc.SourcePath},
		{"Status", string(doc.Status)},
		{"Content Hash", doc.ContentHash},
	}
	if decision != nil {
		summary = append(summary,
			[]any{"Primary Method", string(decision.PrimaryMethod)},
			[]any{"Overall Confidence", decision.OverallConfidence},
			[]any{"Requires Human Review", decision.RequiresHumanReview},
			[]any{"Conflicts", decision.ConflictCount},
			[]any{"Decided At", decision.CreatedAt.Format(time.RFC3339)},
		)
	}
	if err := writeRows(f, SheetSummary, []string{"Field", "Value"}, summary); err != nil {
		return nil, err
	}

	var personal [][]any
	if p := ents.PersonalInfo; p != nil {
		personal = append(personal, []any{p.FullName, p.DateOfBirth, p.CurrentAddress, p.SSNPartial})
	}
	if err := writeRows(f, SheetPersonal, []string{"Full Name", "Date of Birth", "Current Address", "SSN"}, personal); err != nil {
		return nil, err
	}

	accounts := make([][]any, 0, len(ents.Accounts))
	for _, a := range ents.Accounts {
		accounts = append(accounts, []any{a.Creditor, a.AccountNumber, a.AccountType, a.Status,
			amount(a.Balance), amount(a.CreditLimit), amount(a.PastDue), a.DateOpened})
	}
	if err := writeRows(f, SheetAccounts,
		[]string{"Creditor", "Account Number", "Type", "Status", "Balance", "Credit Limit", "Past Due", "Date Opened"},
		accounts); err != nil {
		return nil, err
	}

	inquiries := make([][]any, 0, len(ents.Inquiries))
	for _, q := range ents.Inquiries {
		inquiries = append(inquiries, []any{q.Inquirer, q.InquiryDate, q.InquiryType})
	}
	if err := writeRows(f, SheetInquiries, []string{"Inquirer", "Date", "Type"}, inquiries); err != nil {
		return nil, err
	}

	negatives := make([][]any, 0, len(ents.NegativeItems))
	for _, n := range ents.NegativeItems {
		negatives = append(negatives, []any{n.ItemType, n.Severity, n.Creditor, amount(n.Amount), n.DateLabel, truncate(n.Description, 140)})
	}
	if err := writeRows(f, SheetNegative, []string{"Type", "Severity", "Creditor", "Amount", "Date", "Description"}, negatives); err != nil {
		return nil, err
	}

	_ = f.SetColWidth(SheetSummary, "A", "A", 24)
	_ = f.SetColWidth(SheetSummary, "B", "B", 60)
	_ = f.SetColWidth(SheetAccounts, "A", "B", 24)
	_ = f.SetColWidth(SheetNegative, "F", "F", 60)
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"document_id", documentID,
		"accounts", len(ents.Accounts),
		"inquiries", len(ents.Inquiries),
		"negative_items", len(ents.NegativeItems),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, headers []string, rows [][]any) error {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for r, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

// amount leaves absent values as blank cells.
func amount(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
