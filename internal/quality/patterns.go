package quality

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// scoreKeywords is the fixed domain vocabulary used for confidence credit.
var scoreKeywords = regexp.MustCompile(`(?i)\b(?:credit\s+report|account|balance|payments?|inquir(?:y|ies)|equifax|experian|transunion|credit\s+score|fico|vantagescore|creditors?|collections?|past\s+due|credit\s+limit)\b`)

// contentPatterns widens scoreKeywords with identifiers, account structure, dates and amounts.
var contentPatterns = []*regexp.Regexp{
	scoreKeywords,
	regexp.MustCompile(`(?i)\b(?:date\s+of\s+birth|dob|date\s+opened|high\s+balance|payment\s+history|account\s+(?:number|type|status)|charge[\s-]?off|late\s+payments?|public\s+records?|personal\s+information|social\s+security)\b`),
	regexp.MustCompile(`\b(?:\d{3}|[xX*]{3})-(?:\d{2}|[xX*]{2})-\d{4}\b`),
	regexp.MustCompile(`[*xX]{3,}\d{2,6}\b`),
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`),
	regexp.MustCompile(`\$\s?\d[\d,]*(?:\.\d{2})?`),
}

// containerMarkers matches raw PDF object syntax that leaked into extracted text.
var containerMarkers = regexp.MustCompile(`\b(?:obj|endobj|stream|endstream|xref|trailer|startxref)\b|/(?:Filter|FlateDecode|DCTDecode|Length|Type|Subtype|XObject|Font|FontDescriptor|Resources|MediaBox|Contents|Parent|Kids|Count|Producer|Creator|CreationDate|ModDate|ColorSpace|BitsPerComponent|DecodeParms|Encoding|BaseFont|ProcSet)\b|%PDF-\d|<<|>>`)

func countMatches(re *regexp.Regexp, s string) int {
	return len(re.FindAllStringIndex(s, -1))
}

func contentKeywordHits(s string) int {
	n := 0
	for _, re := range contentPatterns {
		n += countMatches(re, s)
	}
	return n
}

// AlnumRatio is the share of letters and digits among all runes of s.
func AlnumRatio(s string) float64 {
	total := utf8.RuneCountInString(s)
	if total == 0 {
		return 0
	}
	alnum := 0
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	return float64(alnum) / float64(total)
}

// WordCount counts whitespace-separated tokens.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
