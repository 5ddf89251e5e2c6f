package repository

import (
	"context"
	"fmt"
	"strings"

	"entgo.io/ent/dialect"
)

// column types that differ between Postgres and SQLite
type columnTypes struct {
	Timestamp string
	Float     string
}

var dialectTypes = map[string]columnTypes{
	dialect.Postgres: {Timestamp: "TIMESTAMPTZ", Float: "DOUBLE PRECISION"},
	dialect.SQLite:   {Timestamp: "TIMESTAMP", Float: "REAL"},
}

// ddl is applied in order; every statement is idempotent.
var ddl = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		source_path TEXT NOT NULL,
		media_type TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		size_bytes BIGINT NOT NULL,
		page_count INTEGER,
		status TEXT NOT NULL,
		error_message TEXT,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS documents_content_hash_key ON documents (content_hash)`,
	`CREATE INDEX IF NOT EXISTS documents_status_idx ON documents (status)`,

	`CREATE TABLE IF NOT EXISTS extraction_attempts (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		run_id TEXT NOT NULL,
		method TEXT NOT NULL,
		text TEXT,
		character_count INTEGER NOT NULL,
		word_count INTEGER NOT NULL,
		confidence {{float}} NOT NULL,
		has_structured_data BOOLEAN NOT NULL,
		error TEXT,
		error_kind TEXT NOT NULL,
		is_valid BOOLEAN NOT NULL,
		validation_rule TEXT NOT NULL,
		validation_reason TEXT NOT NULL,
		tries INTEGER NOT NULL,
		elapsed_ms BIGINT NOT NULL,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS extraction_attempts_document_run_idx ON extraction_attempts (document_id, run_id)`,

	`CREATE TABLE IF NOT EXISTS consolidation_decisions (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		run_id TEXT NOT NULL,
		primary_method TEXT NOT NULL,
		consolidated_text TEXT NOT NULL,
		overall_confidence {{float}} NOT NULL,
		methods_considered TEXT NOT NULL,
		conflict_count INTEGER NOT NULL,
		requires_human_review BOOLEAN NOT NULL,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS consolidation_decisions_run_key ON consolidation_decisions (document_id, run_id)`,

	`CREATE TABLE IF NOT EXISTS personal_info (
		document_id TEXT PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
		full_name TEXT NOT NULL,
		date_of_birth TEXT NOT NULL,
		current_address TEXT NOT NULL,
		ssn_partial TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS credit_accounts (
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		natural_key TEXT NOT NULL,
		position INTEGER NOT NULL,
		creditor TEXT NOT NULL,
		account_number TEXT NOT NULL,
		account_type TEXT NOT NULL,
		status TEXT NOT NULL,
		balance {{float}},
		credit_limit {{float}},
		past_due {{float}},
		date_opened TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS credit_accounts_key ON credit_accounts (document_id, natural_key)`,
	`CREATE TABLE IF NOT EXISTS credit_inquiries (
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		natural_key TEXT NOT NULL,
		position INTEGER NOT NULL,
		inquirer TEXT NOT NULL,
		inquiry_date TEXT NOT NULL,
		inquiry_type TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS credit_inquiries_key ON credit_inquiries (document_id, natural_key)`,
	`CREATE TABLE IF NOT EXISTS negative_items (
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		natural_key TEXT NOT NULL,
		position INTEGER NOT NULL,
		item_type TEXT NOT NULL,
		creditor TEXT NOT NULL,
		description TEXT NOT NULL,
		amount {{float}},
		severity INTEGER NOT NULL,
		date_label TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS negative_items_key ON negative_items (document_id, natural_key)`,
}

// Migrate creates the ledger tables if they do not exist.
func (d *DB) Migrate(ctx context.Context) error {
	types, ok := dialectTypes[d.drv.Dialect()]
	if !ok {
		return fmt.Errorf("migrate: unsupported dialect %q", d.drv.Dialect())
	}
	r := strings.NewReplacer("{{ts}}", types.Timestamp, "{{float}}", types.Float)
	for _, stmt := range ddl {
		if err := d.drv.Exec(ctx, r.Replace(stmt), []any{}, nil); err != nil {
			return dbError("migrate", err)
		}
	}
	d.logger.Info("repository.migrate.done", "dialect", d.drv.Dialect(), "statements", len(ddl))
	return nil
}
