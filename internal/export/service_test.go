package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/creditreport-extractor/constants"
	"github.com/joseph-ayodele/creditreport-extractor/internal/common"
	"github.com/joseph-ayodele/creditreport-extractor/internal/entity"
	"github.com/joseph-ayodele/creditreport-extractor/internal/repository"
)

func TestExportEntitiesXLSX(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := repository.OpenSQLite(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), logger)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))
	t.Cleanup(db.Close)

	docs := repository.NewDocumentRepository(db, logger)
	ledger := repository.NewLedgerRepository(db, logger)
	entities := repository.NewEntityRepository(db, logger)

	doc := &entity.Document{MediaType: constants.MediaTypePDF, ContentHash: "h1", SizeBytes: 10}
	require.NoError(t, docs.Create(ctx, doc))

	balance := 1250.0
	require.NoError(t, entities.Replace(ctx, doc.ID, entity.ReportEntities{
		PersonalInfo: &entity.PersonalInfo{FullName: "Jane Q Public", SSNPartial: "XXX-XX-6789"},
		Accounts: []entity.CreditAccount{
			{Creditor: "Chase Bank", AccountNumber: "****1234", Status: "open", Balance: &balance},
			{Creditor: "Capital One", AccountNumber: "****9876"},
		},
		Inquiries: []entity.CreditInquiry{{Inquirer: "Wells Fargo", InquiryDate: "2024-01-15", InquiryType: "hard"}},
	}))

	svc := NewService(docs, ledger, entities, logger)
	data, err := svc.ExportEntitiesXLSX(ctx, doc.ID)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetSummary, SheetPersonal, SheetAccounts, SheetInquiries, SheetNegative}, f.GetSheetList())

	rows, err := f.GetRows(SheetAccounts)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Creditor", rows[0][0])
	assert.Equal(t, []string{"Chase Bank", "****1234", "", "open", "1250"}, rows[1][:5])
	assert.Equal(t, "Capital One", rows[2][0])

	personal, err := f.GetRows(SheetPersonal)
	require.NoError(t, err)
	require.Len(t, personal, 2)
	assert.Equal(t, "Jane Q Public", personal[1][0])

	negative, err := f.GetRows(SheetNegative)
	require.NoError(t, err)
	assert.Len(t, negative, 1, "header only")

	_, err = svc.ExportEntitiesXLSX(ctx, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}
