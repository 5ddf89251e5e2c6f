package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/creditreport-extractor/internal/entity"
)

// EntityRepository stores the parsed entities of a document's latest run.
type EntityRepository interface {
	Replace(ctx context.Context, documentID uuid.UUID, e entity.ReportEntities) error
	Load(ctx context.Context, documentID uuid.UUID) (entity.ReportEntities, error)
}

type entityRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewEntityRepository(db *DB, logger *slog.Logger) EntityRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &entityRepo{db: db, logger: logger}
}

var entityTables = []string{"personal_info", "credit_accounts", "credit_inquiries", "negative_items"}

// Replace swaps the document's entities in one transaction, so readers see
// either the previous run's set or the new one.
func (r *entityRepo) Replace(ctx context.Context, documentID uuid.UUID, e entity.ReportEntities) (err error) {
	tx, err := r.db.drv.Tx(ctx)
	if err != nil {
		return dbError("begin entity tx", err)
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				r.logger.Error("entity tx rollback failed", "document_id", documentID, "error", rerr)
			}
		}
	}()

	b := r.db.builder()
	doc := documentID.String()
	for _, table := range entityTables {
		q, args := b.Delete(table).Where(entsql.EQ("document_id", doc)).Query()
		if err = tx.Exec(ctx, q, args, nil); err != nil {
			return dbError("clear "+table, err)
		}
	}

	if p := e.PersonalInfo; p != nil && !p.Empty() {
		q, args := b.Insert("personal_info").
			Columns("document_id", "full_name", "date_of_birth", "current_address", "ssn_partial").
			Values(doc, p.FullName, p.DateOfBirth, p.CurrentAddress, p.SSNPartial).
			OnConflict(entsql.ConflictColumns("document_id"), entsql.ResolveWithNewValues()).
			Query()
		if err = tx.Exec(ctx, q, args, nil); err != nil {
			return dbError("upsert personal info", err)
		}
	}
	for i, a := range e.Accounts {
		q, args := b.Insert("credit_accounts").
			Columns("document_id", "natural_key", "position", "creditor", "account_number",
				"account_type", "status", "balance", "credit_limit", "past_due", "date_opened").
			Values(doc, a.Key(), i, a.Creditor, a.AccountNumber, a.AccountType, a.Status,
				nullFloat(a.Balance), nullFloat(a.CreditLimit), nullFloat(a.PastDue), a.DateOpened).
			Query()
		if err = tx.Exec(ctx, q, args, nil); err != nil {
			return dbError("insert account", err)
		}
	}
	for i, inq := range e.Inquiries {
		q, args := b.Insert("credit_inquiries").
			Columns("document_id", "natural_key", "position", "inquirer", "inquiry_date", "inquiry_type").
			Values(doc, inq.Key(), i, inq.Inquirer, inq.InquiryDate, inq.InquiryType).
			Query()
		if err = tx.Exec(ctx, q, args, nil); err != nil {
			return dbError("insert inquiry", err)
		}
	}
	for i, n := range e.NegativeItems {
		q, args := b.Insert("negative_items").
			Columns("document_id", "natural_key", "position", "item_type", "creditor",
				"description", "amount", "severity", "date_label").
			Values(doc, n.Key(), i, n.ItemType, n.Creditor, n.Description, nullFloat(n.Amount), n.Severity, n.DateLabel).
			Query()
		if err = tx.Exec(ctx, q, args, nil); err != nil {
			return dbError("insert negative item", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return dbError("commit entities", err)
	}
	r.logger.Info("repository.entities.replaced",
		"document_id", documentID,
		"accounts", len(e.Accounts), "inquiries", len(e.Inquiries), "negative_items", len(e.NegativeItems))
	return nil
}

// Load returns the stored entities in their parsed order.
func (r *entityRepo) Load(ctx context.Context, documentID uuid.UUID) (entity.ReportEntities, error) {
	out := entity.ReportEntities{
		Accounts:      []entity.CreditAccount{},
		Inquiries:     []entity.CreditInquiry{},
		NegativeItems: []entity.NegativeItem{},
	}
	doc := documentID.String()
	drv := r.db.drv

	err := r.scan(ctx, drv, "personal_info", doc, []string{"full_name", "date_of_birth", "current_address", "ssn_partial"},
		func(rows *entsql.Rows) error {
			var p entity.PersonalInfo
			if err := rows.Scan(&p.FullName, &p.DateOfBirth, &p.CurrentAddress, &p.SSNPartial); err != nil {
				return err
			}
			out.PersonalInfo = &p
			return nil
		})
	if err != nil {
		return out, err
	}

	err = r.scan(ctx, drv, "credit_accounts", doc,
		[]string{"creditor", "account_number", "account_type", "status", "balance", "credit_limit", "past_due", "date_opened"},
		func(rows *entsql.Rows) error {
			var (
				a                       entity.CreditAccount
				balance, limit, pastDue sql.NullFloat64
			)
			if err := rows.Scan(&a.Creditor, &a.AccountNumber, &a.AccountType, &a.Status,
				&balance, &limit, &pastDue, &a.DateOpened); err != nil {
				return err
			}
			a.Balance, a.CreditLimit, a.PastDue = floatPtr(balance), floatPtr(limit), floatPtr(pastDue)
			out.Accounts = append(out.Accounts, a)
			return nil
		})
	if err != nil {
		return out, err
	}

	err = r.scan(ctx, drv, "credit_inquiries", doc, []string{"inquirer", "inquiry_date", "inquiry_type"},
		func(rows *entsql.Rows) error {
			var i entity.CreditInquiry
			if err := rows.Scan(&i.Inquirer, &i.InquiryDate, &i.InquiryType); err != nil {
				return err
			}
			out.Inquiries = append(out.Inquiries, i)
			return nil
		})
	if err != nil {
		return out, err
	}

	err = r.scan(ctx, drv, "negative_items", doc,
		[]string{"item_type", "creditor", "description", "amount", "severity", "date_label"},
		func(rows *entsql.Rows) error {
			var (
				n      entity.NegativeItem
				amount sql.NullFloat64
			)
			if err := rows.Scan(&n.ItemType, &n.Creditor, &n.Description, &amount, &n.Severity, &n.DateLabel); err != nil {
				return err
			}
			n.Amount = floatPtr(amount)
			out.NegativeItems = append(out.NegativeItems, n)
			return nil
		})
	return out, err
}

func (r *entityRepo) scan(ctx context.Context, q dialect.ExecQuerier, table, doc string, columns []string, each func(*entsql.Rows) error) error {
	sel := r.db.builder().Select(columns...).From(entsql.Table(table)).Where(entsql.EQ("document_id", doc))
	if table != "personal_info" {
		sel = sel.OrderBy("position")
	}
	query, args := sel.Query()

	var rows entsql.Rows
	if err := q.Query(ctx, query, args, &rows); err != nil {
		return dbError("query "+table, err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := each(&rows); err != nil {
			return dbError("scan "+table, err)
		}
	}
	if err := rows.Err(); err != nil {
		return dbError("iterate "+table, err)
	}
	return nil
}
