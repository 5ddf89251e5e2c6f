package parser

import (
	"regexp"
	"strings"

	"github.com/joseph-ayodele/creditreport-extractor/internal/entity"
)

// negativeVocabulary is ordered; the first term found on a line classifies it.
var negativeVocabulary = []struct {
	itemType string
	severity int
	re       *regexp.Regexp
}{
	{"bankruptcy", 10, regexp.MustCompile(`(?i)\bbankrupt(?:cy|cies)?\b|\bchapter\s+(?:7|11|13)\b`)},
	{"foreclosure", 9, regexp.MustCompile(`(?i)\bforeclos(?:ure|ed)\b`)},
	{"charge_off", 8, regexp.MustCompile(`(?i)\bcharge[\s-]*offs?\b|\bcharged[\s-]*off\b`)},
	{"repossession", 8, regexp.MustCompile(`(?i)\brepossess(?:ion|ed)\b`)},
	{"default", 8, regexp.MustCompile(`(?i)\bdefault(?:ed)?\b`)},
	{"collection", 7, regexp.MustCompile(`(?i)\bcollections?\b`)},
	{"judgment", 7, regexp.MustCompile(`(?i)\b(?:civil\s+)?judge?ments?\b`)},
	{"tax_lien", 7, regexp.MustCompile(`(?i)\btax\s+liens?\b`)},
	{"settled", 5, regexp.MustCompile(`(?i)\bsettled\b|\bsettlement\b`)},
	{"late_payment", 4, regexp.MustCompile(`(?i)\b(?:30|60|90|120|150|180)\s*days?\s+(?:late|past\s+due)\b|\blate\s+payments?\b|\bdelinquen(?:t|cy)\b`)},
}

var (
	reDollar        = regexp.MustCompile(dollarPattern)
	reNegation      = regexp.MustCompile(`(?i)\b(?:no|none|never|not|zero|0)\b[\w\s]{0,20}$`)
	reHeadingFiller = regexp.MustCompile(`(?i)\b(?:items?|records?|accounts?|section|negative|public|information|summary|history|and|&)\b|[:\s\-()]`)
	reNegCreditor   = regexp.MustCompile(`(?i)\b(?:original\s+creditor|creditor|collection\s+agency|agency|company|furnisher|lender|plaintiff|court)(?:\s+name)?\s*[:\-]\s*([^\n]+)`)
)

var negativeCreditorRules = []rule{{"creditor_label", reNegCreditor, creditorValue}}

// parseNegativeItems classifies derogatory lines and pairs each with a nearby
// amount, date, and creditor.
func parseNegativeItems(text string) []entity.NegativeItem {
	idx := newLineIndex(text)
	set := newNegativeSet()
	for i := 0; i < idx.count(); i++ {
		line := idx.line(i)
		for _, v := range negativeVocabulary {
			loc := v.re.FindStringIndex(line)
			if loc == nil {
				continue
			}
			if isBareHeading(line) || reNegation.MatchString(line[:loc[0]]) {
				break
			}
			item := entity.NegativeItem{
				ItemType:    v.itemType,
				Severity:    v.severity,
				Description: truncateRunes(collapse(line), 200),
			}
			item.Amount = nearbyAmount(idx, i)
			item.DateLabel = nearbyDate(idx, i)
			item.Creditor = negativeCreditor(idx, i, line[:loc[0]])
			set.add(item)
			break
		}
	}
	return set.list()
}

// isBareHeading reports lines such as "Collections" or "Public Records: Judgments".
func isBareHeading(line string) bool {
	rest := line
	for _, v := range negativeVocabulary {
		rest = v.re.ReplaceAllString(rest, "")
	}
	return strings.TrimSpace(reHeadingFiller.ReplaceAllString(rest, "")) == ""
}

// continuation reports whether line j still describes the item on line i.
func continuation(idx lineIndex, i, j int) bool {
	if j >= idx.count() || j > i+2 {
		return false
	}
	next := idx.line(j)
	for _, v := range negativeVocabulary {
		if v.re.MatchString(next) {
			return false
		}
	}
	return true
}

func nearbyAmount(idx lineIndex, i int) *float64 {
	if m := reDollar.FindString(idx.line(i)); m != "" {
		return ParseAmount(m)
	}
	for j := i + 1; continuation(idx, i, j); j++ {
		if m := reDollar.FindString(idx.line(j)); m != "" {
			return ParseAmount(m)
		}
	}
	return nil
}

func nearbyDate(idx lineIndex, i int) string {
	for j := i; j == i || continuation(idx, i, j); j++ {
		for _, m := range reAnyDate.FindAllString(idx.line(j), -1) {
			if d := NormalizeDate(m); d != "" {
				return d
			}
		}
	}
	return ""
}

func negativeCreditor(idx lineIndex, i int, prefix string) string {
	for j := i; j == i || continuation(idx, i, j); j++ {
		if v, _, ok := applyRules(negativeCreditorRules, idx.line(j)); ok {
			return v
		}
	}
	if p := prefixCreditor(strings.TrimRight(prefix, " -:|")); p != "" {
		return p
	}
	if i > 0 {
		if prev := collapse(idx.line(i - 1)); nameLike(prev) && !isBareHeading(prev) {
			return prev
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

type negativeSet struct {
	seen map[string]bool
	out  []entity.NegativeItem
}

func newNegativeSet() *negativeSet {
	return &negativeSet{seen: map[string]bool{}}
}

func (s *negativeSet) add(n entity.NegativeItem) {
	if s.seen[n.Key()] {
		return
	}
	s.seen[n.Key()] = true
	s.out = append(s.out, n)
}

func (s *negativeSet) list() []entity.NegativeItem {
	return s.out
}
