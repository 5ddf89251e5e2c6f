package parser

import (
	"regexp"
	"strings"

	"github.com/joseph-ayodele/creditreport-extractor/internal/entity"
)

var (
	reAccountAnchor = regexp.MustCompile(`(?i)\b(?:account|acct)(?:\s*(?:number|no\.?|#|num))?\s*[:#]?\s*([*xX]{2,}[-\s]?\d{2,6}|\d{2,}[*xX]{2,}[*xX\d]*|\d{4,}(?:-[\dxX*]{2,})*)`)
	reCreditorLabel = regexp.MustCompile(`(?im)\b(?:creditor|company|lender|subscriber|furnisher)(?:\s+name)?\s*[:\-]\s*([^\n]+)`)
	reFieldCut      = regexp.MustCompile(`(?i)\s+(?:account|acct|balance|status|credit\s+limit|limit|type|opened|date|past\s+due|high\s+credit|payment)\b`)
	reSegmentSplit  = regexp.MustCompile(`\s{2,}|\t|\|`)
)

var balanceRules = []rule{
	{"balance", regexp.MustCompile(`(?i)\b(?:current\s+)?balance\s*[:\-]?\s*(` + amountPattern + `)`), balanceValue},
	{"amount_owed", regexp.MustCompile(`(?i)\bamount\s+owed\s*[:\-]?\s*(` + amountPattern + `)`), groupAmount},
}

var limitRules = []rule{
	{"credit_limit", regexp.MustCompile(`(?i)\bcredit\s+limit\s*[:\-]?\s*(` + amountPattern + `)`), groupAmount},
	{"high_credit", regexp.MustCompile(`(?i)\bhigh\s+credit\s*[:\-]?\s*(` + amountPattern + `)`), groupAmount},
	{"limit", regexp.MustCompile(`(?i)\blimit\s*[:\-]?\s*(` + amountPattern + `)`), groupAmount},
}

var pastDueRules = []rule{
	{"past_due", regexp.MustCompile(`(?i)\b(?:amount\s+)?past\s+due\s*[:\-]?\s*(` + amountPattern + `)`), groupAmount},
}

var dateOpenedRules = []rule{
	{"date_opened", regexp.MustCompile(`(?i)\b(?:date\s+opened|opened(?:\s+date)?|open\s+date)\s*[:\-]?\s*(` + datePattern + `)`), groupDate},
}

var accountTypeRules = []rule{
	{"type_label", regexp.MustCompile(`(?i)\b(?:account\s+type|type\s+of\s+account|loan\s+type|type)\s*[:\-]\s*([A-Za-z][A-Za-z /\-]{1,40})`), labelPhrase},
	{"type_vocabulary", regexp.MustCompile(`(?i)\b(revolving|installment|mortgage|auto\s+loan|student\s+loan|credit\s+card|charge\s+card|line\s+of\s+credit)\b`), labelPhrase},
}

var statusRules = []rule{
	{"status_label", regexp.MustCompile(`(?i)\b(?:account\s+|pay(?:ment)?\s+)?(?:status|condition)\s*[:\-]?\s*([A-Za-z][A-Za-z /\-]{1,40})`), statusValue},
}

var statusVocabulary = []struct {
	re        *regexp.Regexp
	canonical string
}{
	{regexp.MustCompile(`charge[\s-]*off|charged[\s-]*off`), "charged off"},
	{regexp.MustCompile(`collection`), "collection"},
	{regexp.MustCompile(`closed`), "closed"},
	{regexp.MustCompile(`paid`), "paid"},
	{regexp.MustCompile(`transferred`), "transferred"},
	{regexp.MustCompile(`delinquent|late|past due`), "delinquent"},
	{regexp.MustCompile(`current|pays as agreed|good standing`), "current"},
	{regexp.MustCompile(`\bopen\b`), "open"},
}

// balanceValue rejects "high balance", which is a historical peak.
func balanceValue(text string, m []int) (string, bool) {
	before := strings.ToLower(strings.TrimRight(text[:m[0]], " \t"))
	if strings.HasSuffix(before, "high") || strings.HasSuffix(before, "highest") {
		return "", false
	}
	return groupAmount(text, m)
}

func labelPhrase(text string, m []int) (string, bool) {
	v := group(text, m, 1)
	if loc := reFieldCut.FindStringIndex(v); loc != nil {
		v = v[:loc[0]]
	}
	v = strings.ToLower(collapse(v))
	return v, v != ""
}

func statusValue(text string, m []int) (string, bool) {
	v, ok := labelPhrase(text, m)
	if !ok {
		return "", false
	}
	return canonicalStatus(v), true
}

func canonicalStatus(v string) string {
	for _, s := range statusVocabulary {
		if s.re.MatchString(v) {
			return s.canonical
		}
	}
	return v
}

func creditorValue(text string, m []int) (string, bool) {
	v := group(text, m, 1)
	if loc := reFieldCut.FindStringIndex(v); loc != nil {
		v = v[:loc[0]]
	}
	v = strings.Trim(collapse(v), " ,;:-")
	return v, nameLike(v)
}

// parseAccounts anchors on account numbers and reads each record's fields
// from the window between its anchor and the next one.
func parseAccounts(text string, windowLines int) []entity.CreditAccount {
	anchors := reAccountAnchor.FindAllStringSubmatchIndex(text, -1)
	if len(anchors) == 0 {
		return nil
	}
	idx := newLineIndex(text)
	labels := reCreditorLabel.FindAllStringSubmatchIndex(text, -1)
	// Reports either put the creditor label before each account number or
	// after it; the first occurrence decides for the whole document.
	labelsLead := len(labels) > 0 && labels[0][0] < anchors[0][0]

	acc := newAccountSet()
	for i, a := range anchors {
		line := idx.lineOf(a[0])
		prevEnd := 0
		if i > 0 {
			prevEnd = anchors[i-1][1]
		}
		nextStart := len(text)
		if i+1 < len(anchors) {
			nextStart = anchors[i+1][0]
		}
		segStart := max(idx.start(line), prevEnd)
		winEnd := min(nextStart, idx.end(min(line+windowLines, idx.count()-1)))
		if winEnd < a[1] {
			winEnd = a[1]
		}
		window := text[segStart:winEnd]

		creditor := labeledCreditor(text, labels, labelsLead, idx, line, prevEnd, a, winEnd)
		if creditor == "" {
			creditor = prefixCreditor(text[segStart:a[0]])
		}
		if creditor == "" && line > 0 && idx.start(line-1) >= prevEnd {
			if prev := collapse(idx.line(line - 1)); nameLike(prev) {
				creditor = prev
			}
		}
		if creditor == "" {
			continue
		}

		rec := entity.CreditAccount{
			Creditor:      creditor,
			AccountNumber: strings.ReplaceAll(collapse(group(text, a, 1)), " ", ""),
		}
		if v, _, ok := applyRules(balanceRules, window); ok {
			rec.Balance = ParseAmount(v)
		}
		if v, _, ok := applyRules(limitRules, window); ok {
			rec.CreditLimit = ParseAmount(v)
		}
		if v, _, ok := applyRules(pastDueRules, window); ok {
			rec.PastDue = ParseAmount(v)
		}
		rec.DateOpened, _, _ = applyRules(dateOpenedRules, window)
		rec.AccountType, _, _ = applyRules(accountTypeRules, window)
		rec.Status, _, _ = applyRules(statusRules, window)
		acc.add(rec)
	}
	return acc.list()
}

func labeledCreditor(text string, labels [][]int, lead bool, idx lineIndex, line, prevEnd int, a []int, winEnd int) string {
	if lead {
		lo := max(prevEnd, idx.start(line-3))
		for j := len(labels) - 1; j >= 0; j-- {
			l := labels[j]
			if l[0] >= a[0] || l[0] < lo {
				continue
			}
			// the label's value runs to end of line; clip at the anchor
			m := append([]int(nil), l...)
			if m[3] > a[0] {
				m[3] = a[0]
			}
			if v, ok := creditorValue(text, m); ok {
				return v
			}
		}
		return ""
	}
	for _, l := range labels {
		if l[0] < a[1] || l[0] >= winEnd {
			continue
		}
		if v, ok := creditorValue(text, l); ok {
			return v
		}
	}
	return ""
}

// prefixCreditor takes the text left of the anchor on the same line.
func prefixCreditor(prefix string) string {
	parts := reSegmentSplit.Split(prefix, -1)
	for i := len(parts) - 1; i >= 0; i-- {
		p := strings.Trim(collapse(parts[i]), " ,;:-")
		if p == "" {
			continue
		}
		if nameLike(p) {
			return p
		}
		return ""
	}
	return ""
}

type accountSet struct {
	order []string
	byKey map[string]*entity.CreditAccount
}

func newAccountSet() *accountSet {
	return &accountSet{byKey: map[string]*entity.CreditAccount{}}
}

// add merges duplicates: the first record wins, later ones only fill gaps.
func (s *accountSet) add(a entity.CreditAccount) {
	k := a.Key()
	cur, ok := s.byKey[k]
	if !ok {
		c := a
		s.byKey[k] = &c
		s.order = append(s.order, k)
		return
	}
	if cur.AccountType == "" {
		cur.AccountType = a.AccountType
	}
	if cur.Status == "" {
		cur.Status = a.Status
	}
	if cur.Balance == nil {
		cur.Balance = a.Balance
	}
	if cur.CreditLimit == nil {
		cur.CreditLimit = a.CreditLimit
	}
	if cur.PastDue == nil {
		cur.PastDue = a.PastDue
	}
	if cur.DateOpened == "" {
		cur.DateOpened = a.DateOpened
	}
}

func (s *accountSet) list() []entity.CreditAccount {
	out := make([]entity.CreditAccount, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, *s.byKey[k])
	}
	return out
}
