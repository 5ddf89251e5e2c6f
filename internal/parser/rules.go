package parser

import (
	"regexp"
	"sort"
	"strings"
)

// rule is one entry of an ordered rule table. extract receives the submatch
// indexes of a match and may reject it, in which case the next match and then
// the next rule are tried.
type rule struct {
	name    string
	re      *regexp.Regexp
	extract func(text string, m []int) (string, bool)
}

// applyRules returns the first value any rule accepts, trying rules in order.
func applyRules(rules []rule, text string) (value, ruleName string, ok bool) {
	for _, r := range rules {
		for _, m := range r.re.FindAllStringSubmatchIndex(text, -1) {
			if v, ok := r.extract(text, m); ok {
				return v, r.name, true
			}
		}
	}
	return "", "", false
}

func group(text string, m []int, g int) string {
	if 2*g+1 >= len(m) || m[2*g] < 0 {
		return ""
	}
	return text[m[2*g]:m[2*g+1]]
}

// groupValue accepts group 1 when non-blank.
func groupValue(text string, m []int) (string, bool) {
	v := strings.TrimSpace(group(text, m, 1))
	return v, v != ""
}

// groupAmount accepts group 1 when it parses as a number.
func groupAmount(text string, m []int) (string, bool) {
	v := group(text, m, 1)
	if ParseAmount(v) == nil {
		return "", false
	}
	return v, true
}

// groupDate accepts group 1 when it normalizes to a valid calendar date.
func groupDate(text string, m []int) (string, bool) {
	d := NormalizeDate(group(text, m, 1))
	return d, d != ""
}

var reSpaces = regexp.MustCompile(`\s+`)

func collapse(s string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
}

// lineIndex maps byte offsets to line numbers.
type lineIndex struct {
	text   string
	starts []int
}

func newLineIndex(text string) lineIndex {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return lineIndex{text: text, starts: starts}
}

func (x lineIndex) count() int { return len(x.starts) }

func (x lineIndex) lineOf(pos int) int {
	return sort.Search(len(x.starts), func(i int) bool { return x.starts[i] > pos }) - 1
}

func (x lineIndex) start(line int) int {
	if line <= 0 {
		return 0
	}
	if line >= len(x.starts) {
		return len(x.text)
	}
	return x.starts[line]
}

// end is the offset of the line's terminating newline, or len(text).
func (x lineIndex) end(line int) int {
	if line+1 >= len(x.starts) {
		return len(x.text)
	}
	return x.starts[line+1] - 1
}

func (x lineIndex) line(i int) string {
	if i < 0 || i >= len(x.starts) {
		return ""
	}
	return x.text[x.start(i):x.end(i)]
}

var (
	reHasLetter  = regexp.MustCompile(`[A-Za-z]`)
	reFieldLabel = regexp.MustCompile(`(?i)^(?:balance|status|limit|credit\s+limit|type|account|acct|opened|date|past\s+due|high\s+credit|payment|amount|remarks?|responsibility|terms?)\b`)
	reHeadingish = regexp.MustCompile(`(?i)^(?:accounts?|account\s+(?:information|history|summary|details)|credit\s+(?:accounts|summary|report)|tradelines?|(?:revolving|installment|open|closed|mortgage|adverse|negative|other)\s+accounts|inquiries|public\s+records|collections|personal\s+information|summary)$`)
)

// nameLike accepts short labels that can stand for a company or person.
func nameLike(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, ":$") || !reHasLetter.MatchString(s) {
		return false
	}
	words := strings.Fields(s)
	if len(words) > 6 {
		return false
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits*3 > len(s) {
		return false
	}
	return !reFieldLabel.MatchString(s) && !reHeadingish.MatchString(s)
}
