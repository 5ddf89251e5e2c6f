package parser

import (
	"regexp"
	"strings"

	"github.com/joseph-ayodele/creditreport-extractor/internal/entity"
)

var (
	reLabelCut     = regexp.MustCompile(`(?i)\s+(?:dob\b|date\s+of\s+birth|birth\s*date|ssn\b|social\s+security|current\s+address|address\b|phone\b|report\s+date|report\s+number|file\s+number|account\b|employer\b|also\s+known)`)
	reNameToken    = regexp.MustCompile(`^[A-Za-z][A-Za-z.'\-]*,?$`)
	reCityStateZip = regexp.MustCompile(`^\s*[A-Za-z][A-Za-z .'\-]*,?\s+[A-Z]{2}\s+\d{5}(?:-\d{4})?\s*$`)
)

var nameRules = []rule{
	{"full_name", regexp.MustCompile(`(?im)\b(?:full|consumer|legal)\s+name\s*[:\-]\s*([^\n]+)`), nameValue},
	{"name_label", regexp.MustCompile(`(?im)^\s*name\s*[:\-]\s*([^\n]+)`), nameValue},
	{"prepared_for", regexp.MustCompile(`(?im)\b(?:prepared|report)\s+for\s*[:\-]?\s*([^\n]+)`), nameValue},
}

var dobRules = []rule{
	{"date_of_birth", regexp.MustCompile(`(?i)\bdate\s+of\s+birth\s*[:\-]?\s*(` + datePattern + `)`), groupDate},
	{"birth_date", regexp.MustCompile(`(?i)\bbirth\s*date\s*[:\-]?\s*(` + datePattern + `)`), groupDate},
	{"dob", regexp.MustCompile(`(?i)\bdob\s*[:\-]?\s*(` + datePattern + `)`), groupDate},
}

var addressRules = []rule{
	{"address_label", regexp.MustCompile(`(?im)\b(?:current\s+address|address)\s*[:\-]\s*([^\n]+)`), addressValue},
	{"street_line", regexp.MustCompile(`(?im)^\s*(\d{1,6}\s+[A-Za-z0-9 .'\-]+?\s(?:St|Street|Ave|Avenue|Rd|Road|Blvd|Boulevard|Dr|Drive|Ln|Lane|Ct|Court|Way|Pl|Place|Cir|Circle|Pkwy|Parkway)\.?(?:\s+(?:Apt|Unit|Ste|Suite|#)\s*\S+)?)\s*$`), addressValue},
}

var ssnRules = []rule{
	{"ssn_label", regexp.MustCompile(`(?i)\b(?:ssn|social\s+security(?:\s+(?:number|no\.?|#))?)\s*[:#\-]?\s*(?:\d{3}|[xX*]{3})[-\s]?(?:\d{2}|[xX*]{2})[-\s]?(\d{4})\b`), ssnValue},
	{"ssn_masked", regexp.MustCompile(`\b[xX*]{3}-[xX*]{2}-(\d{4})\b`), ssnValue},
}

func nameValue(text string, m []int) (string, bool) {
	v := group(text, m, 1)
	if loc := reLabelCut.FindStringIndex(v); loc != nil {
		v = v[:loc[0]]
	}
	if i := strings.Index(v, "  "); i > 0 {
		v = v[:i]
	}
	v = strings.Trim(collapse(v), " ,;:-")
	tokens := strings.Fields(v)
	if len(tokens) < 2 || len(tokens) > 5 {
		return "", false
	}
	for _, tok := range tokens {
		if !reNameToken.MatchString(tok) {
			return "", false
		}
	}
	return v, true
}

// addressValue keeps the street line and appends a following city/state/zip line.
func addressValue(text string, m []int) (string, bool) {
	v := group(text, m, 1)
	if loc := reLabelCut.FindStringIndex(" " + v); loc != nil && loc[0] > 0 {
		v = v[:loc[0]-1]
	}
	v = strings.Trim(collapse(v), " ,;:-")
	if v == "" || !strings.ContainsAny(v, "0123456789") {
		return "", false
	}
	rest := text[m[1]:]
	rest = strings.TrimPrefix(rest, "\r")
	if strings.HasPrefix(rest, "\n") {
		next := rest[1:]
		if i := strings.IndexByte(next, '\n'); i >= 0 {
			next = next[:i]
		}
		if reCityStateZip.MatchString(next) && !reCityStateZip.MatchString(v) && !strings.Contains(v, next) {
			v = v + ", " + collapse(next)
		}
	}
	return v, true
}

func ssnValue(text string, m []int) (string, bool) {
	last4 := group(text, m, 1)
	if len(last4) != 4 {
		return "", false
	}
	return "XXX-XX-" + last4, true
}

// parsePersonalInfo runs each field's rule table; nil when nothing matched.
func parsePersonalInfo(text string) *entity.PersonalInfo {
	var p entity.PersonalInfo
	p.FullName, _, _ = applyRules(nameRules, text)
	p.DateOfBirth, _, _ = applyRules(dobRules, text)
	p.CurrentAddress, _, _ = applyRules(addressRules, text)
	p.SSNPartial, _, _ = applyRules(ssnRules, text)
	if p.Empty() {
		return nil
	}
	return &p
}
