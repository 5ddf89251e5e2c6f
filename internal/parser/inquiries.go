package parser

import (
	"regexp"
	"strings"

	"github.com/joseph-ayodele/creditreport-extractor/internal/entity"
)

const (
	InquiryHard = "hard"
	InquirySoft = "soft"
)

var (
	reInquiryHeading = regexp.MustCompile(`(?i)^\s*(?:(hard|regular)\s+inquiries|(soft|promotional|account\s+review)\s+inquiries|(?:credit\s+)?inquiries|requests?\s+for\s+your\s+credit(?:\s+history)?)\b[^:\n]{0,40}:?\s*$`)
	reSectionHeading = regexp.MustCompile(`(?i)^\s*(?:accounts?|account\s+(?:information|history|summary|details)|credit\s+accounts|tradelines?|personal\s+information|public\s+records?|collections?|negative\s+items|adverse\s+accounts|credit\s+summary|summary|employment(?:\s+history)?|consumer\s+statements?)\s*:?\s*$`)
	reInquiryInline  = regexp.MustCompile(`(?i)^\s*(?:(hard|regular)\s+inquiries|(soft|promotional|account\s+review)\s+inquiries|(?:credit\s+)?inquiries)\s*:\s*(\S.*)$`)
	reInquiryLabel   = regexp.MustCompile(`(?i)^\s*(?:inquirer|inquiring\s+company|inquiry\s+by|requested\s+by)\s*[:\-]\s*(.+)$`)
	reSectionLabel   = regexp.MustCompile(`(?i)^\s*(?:company(?:\s+name)?|creditor)\s*[:\-]\s*(.+)$`)
	reAnyDate        = regexp.MustCompile(datePattern)
	reDateOnly       = regexp.MustCompile(`(?i)^\s*(?:(?:inquiry\s+)?date(?:\s+of\s+inquiry)?\s*[:\-]?\s*)?(` + datePattern + `)\s*$`)
	reNameThenDate   = regexp.MustCompile(`^\s*(.+?)\s*[-:|,]?\s+(` + datePattern + `)(?:\s*\(?(?i:(hard|soft))\)?)?\s*$`)
	reDateThenName   = regexp.MustCompile(`^\s*(` + datePattern + `)\s*[-:|,]?\s+(.+?)\s*$`)
	reTypeWord       = regexp.MustCompile(`(?i)\b(hard|soft)\b`)
	reDateWord       = regexp.MustCompile(`(?i)\bdate\b`)
)

func headingType(m []string) string {
	switch {
	case m[1] != "":
		return InquiryHard
	case m[2] != "":
		return InquirySoft
	}
	return ""
}

// parseInquiries pairs an inquirer with a date. Unlabelled pairs are only
// accepted inside an inquiries section.
func parseInquiries(text string, windowLines int) []entity.CreditInquiry {
	idx := newLineIndex(text)
	set := newInquirySet()
	inSection := false
	sectionType := ""

	for i := 0; i < idx.count(); i++ {
		line := idx.line(i)
		if m := reInquiryHeading.FindStringSubmatch(line); m != nil {
			inSection, sectionType = true, headingType(m)
			continue
		}
		if m := reInquiryInline.FindStringSubmatch(line); m != nil {
			// "Inquiries: Capital One 01/15/2024"; a summary count like "Inquiries: 2" opens nothing
			if inq, ok := pairedInquiry(m[3], headingType(m)); ok {
				inSection, sectionType = true, headingType(m)
				set.add(inq)
				continue
			}
		}
		if reSectionHeading.MatchString(line) {
			inSection, sectionType = false, ""
			continue
		}

		if m := reInquiryLabel.FindStringSubmatch(line); m != nil {
			if inq, last, ok := labeledInquiry(idx, i, m[1], windowLines, sectionType); ok {
				set.add(inq)
				i = last
			}
			continue
		}
		if !inSection {
			continue
		}
		if m := reSectionLabel.FindStringSubmatch(line); m != nil {
			if inq, last, ok := labeledInquiry(idx, i, m[1], windowLines, sectionType); ok {
				set.add(inq)
				i = last
			}
			continue
		}
		if inq, ok := pairedInquiry(line, sectionType); ok {
			set.add(inq)
			continue
		}
		name := strings.Trim(collapse(line), " ,;:-|")
		if !inquirerLike(name) {
			continue
		}
		// a company line followed by its date line
		for j := i + 1; j <= i+2 && j < idx.count(); j++ {
			next := idx.line(j)
			if strings.TrimSpace(next) == "" {
				continue
			}
			if m := reDateOnly.FindStringSubmatch(next); m != nil {
				if d := NormalizeDate(m[1]); d != "" {
					set.add(entity.CreditInquiry{Inquirer: name, InquiryDate: d, InquiryType: sectionType})
					i = j
				}
			}
			break
		}
	}
	return set.list()
}

// pairedInquiry reads a name and a date written on one line, in either order.
func pairedInquiry(line, sectionType string) (entity.CreditInquiry, bool) {
	if m := reNameThenDate.FindStringSubmatch(line); m != nil {
		name := strings.Trim(collapse(m[1]), " ,;:-|")
		if d := NormalizeDate(m[2]); d != "" && inquirerLike(name) {
			return entity.CreditInquiry{Inquirer: name, InquiryDate: d, InquiryType: inquiryType(m[3], sectionType)}, true
		}
	}
	if m := reDateThenName.FindStringSubmatch(line); m != nil {
		name := strings.Trim(collapse(m[2]), " ,;:-|")
		kind := ""
		if t := reTypeWord.FindStringSubmatch(name); t != nil {
			kind = t[1]
			name = strings.Trim(collapse(reTypeWord.ReplaceAllString(name, "")), " ()-")
		}
		if d := NormalizeDate(m[1]); d != "" && inquirerLike(name) {
			return entity.CreditInquiry{Inquirer: name, InquiryDate: d, InquiryType: inquiryType(kind, sectionType)}, true
		}
	}
	return entity.CreditInquiry{}, false
}

// labeledInquiry also returns the last line it consumed.
func labeledInquiry(idx lineIndex, i int, raw string, windowLines int, sectionType string) (entity.CreditInquiry, int, bool) {
	name := raw
	last := i
	var date string
	if loc := reAnyDate.FindStringIndex(name); loc != nil {
		date = NormalizeDate(name[loc[0]:loc[1]])
		name = name[:loc[0]]
	}
	if loc := reFieldCut.FindStringIndex(" " + name); loc != nil && loc[0] > 0 {
		name = name[:loc[0]-1]
	}
	name = strings.Trim(collapse(name), " ,;:-|")
	if !inquirerLike(name) {
		return entity.CreditInquiry{}, i, false
	}
	for j := i + 1; date == "" && j <= i+windowLines && j < idx.count(); j++ {
		next := idx.line(j)
		if reInquiryLabel.MatchString(next) || reSectionLabel.MatchString(next) {
			break
		}
		if loc := reAnyDate.FindStringIndex(next); loc != nil {
			date = NormalizeDate(next[loc[0]:loc[1]])
			last = j
		}
	}
	if date == "" {
		return entity.CreditInquiry{}, i, false
	}
	kind := sectionType
	if t := reTypeWord.FindStringSubmatch(raw); t != nil {
		kind = strings.ToLower(t[1])
	}
	return entity.CreditInquiry{Inquirer: name, InquiryDate: date, InquiryType: kind}, last, true
}

func inquirerLike(name string) bool {
	return nameLike(name) && !reDateWord.MatchString(name)
}

func inquiryType(explicit, section string) string {
	if explicit != "" {
		return strings.ToLower(explicit)
	}
	return section
}

type inquirySet struct {
	seen map[string]bool
	out  []entity.CreditInquiry
}

func newInquirySet() *inquirySet {
	return &inquirySet{seen: map[string]bool{}}
}

func (s *inquirySet) add(i entity.CreditInquiry) {
	if s.seen[i.Key()] {
		return
	}
	s.seen[i.Key()] = true
	s.out = append(s.out, i)
}

func (s *inquirySet) list() []entity.CreditInquiry {
	return s.out
}
