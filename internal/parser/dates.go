package parser

import (
	"strings"
	"time"
)

// CanonicalDateLayout is the single stored date format.
const CanonicalDateLayout = "2006-01-02"

// datePattern finds date candidates; NormalizeDate decides validity.
const datePattern = `(?:\d{1,2}/\d{1,2}/(?:\d{4}|\d{2})\b|\d{1,2}-\d{1,2}-\d{4}\b|\d{4}-\d{2}-\d{2}\b|(?i:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-zA-Z]*\.?\s+\d{1,2},?\s+\d{4}\b)`

var dateLayouts = []string{
	"1/2/2006",
	"1-2-2006",
	"2006-01-02",
	"1/2/06",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
}

// NormalizeDate converts a date in any supported layout to YYYY-MM-DD.
// Impossible combinations (02/30) and partial dates return "".
func NormalizeDate(s string) string {
	t := collapse(s)
	if t == "" {
		return ""
	}
	t = strings.Replace(t, ".", "", 1)
	t = titleMonth(t)
	if strings.HasPrefix(t, "Sept ") {
		t = "Sep " + strings.TrimPrefix(t, "Sept ")
	}
	for _, layout := range dateLayouts {
		d, err := time.Parse(layout, t)
		if err != nil {
			continue
		}
		if d.Year() < 1900 || d.Year() > 2100 {
			return ""
		}
		return d.Format(CanonicalDateLayout)
	}
	return ""
}

// titleMonth capitalizes a leading month name so "JANUARY 5, 2020" parses.
func titleMonth(s string) string {
	if s == "" || s[0] < 'A' || (s[0] > 'Z' && s[0] < 'a') || s[0] > 'z' {
		return s
	}
	end := strings.IndexByte(s, ' ')
	if end < 0 {
		return s
	}
	word := strings.ToLower(s[:end])
	return strings.ToUpper(word[:1]) + word[1:] + s[end:]
}
