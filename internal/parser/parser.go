// Package parser turns consolidated report text into typed entities using
// ordered rule tables. It never fails; missing fields are left unset.
package parser

import (
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/creditreport-extractor/internal/entity"
)

const defaultWindowLines = 6

type Parser struct {
	windowLines int
	logger      *slog.Logger
}

type Option func(*Parser)

// WithWindowLines bounds how many lines after an anchor belong to its record.
func WithWindowLines(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.windowLines = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

func New(opts ...Option) *Parser {
	p := &Parser{windowLines: defaultWindowLines, logger: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Parse is deterministic: the same text always yields the same records, in
// order of first appearance.
func (p *Parser) Parse(text string) entity.ReportEntities {
	start := time.Now()
	text = strings.ReplaceAll(text, "\r\n", "\n")
	out := entity.ReportEntities{
		PersonalInfo:  parsePersonalInfo(text),
		Accounts:      parseAccounts(text, p.windowLines),
		Inquiries:     parseInquiries(text, p.windowLines),
		NegativeItems: parseNegativeItems(text),
	}
	if out.Accounts == nil {
		out.Accounts = []entity.CreditAccount{}
	}
	if out.Inquiries == nil {
		out.Inquiries = []entity.CreditInquiry{}
	}
	if out.NegativeItems == nil {
		out.NegativeItems = []entity.NegativeItem{}
	}
	p.logger.Debug("parser.parse.done",
		"chars", len(text),
		"personal_info", out.PersonalInfo != nil,
		"accounts", len(out.Accounts),
		"inquiries", len(out.Inquiries),
		"negative_items", len(out.NegativeItems),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out
}
