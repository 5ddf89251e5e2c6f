package ocr

import (
	"bytes"
	"compress/zlib"
	"encoding/hex"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
)

const (
	maxInflatedStream = 32 << 20
	maxPrintableBytes = 256 << 10
)

var (
	kwStream    = []byte("stream")
	kwEndstream = []byte("endstream")
	rePrintable = regexp.MustCompile(`[\x20-\x7e]{4,}`)
)

type streamSegment struct {
	dict []byte
	body []byte
}

// scanPDF recovers text by walking raw object/stream syntax.
// found is false when no text-showing operator was seen and the result is
// only printable runs of the file, which is usually container metadata.
func scanPDF(data []byte) (text string, found bool) {
	var b strings.Builder
	for _, seg := range streamSegments(data) {
		if skipStream(seg.dict) {
			continue
		}
		body := seg.body
		if bytes.Contains(seg.dict, []byte("/FlateDecode")) {
			inflated, ok := inflate(body)
			if !ok {
				continue
			}
			body = inflated
		}
		t, ok := textFromContent(body)
		if !ok {
			continue
		}
		found = true
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(t)
	}
	if !found {
		// Uncompressed content outside stream wrappers.
		if t, ok := textFromContent(data); ok {
			return t, true
		}
		return printableRuns(data), false
	}
	return b.String(), true
}

func streamSegments(data []byte) []streamSegment {
	var out []streamSegment
	pos := 0
	for pos < len(data) {
		k := bytes.Index(data[pos:], kwStream)
		if k < 0 {
			break
		}
		start := pos + k
		j := start + len(kwStream)
		if start >= 3 && string(data[start-3:start]) == "end" {
			pos = j
			continue
		}
		switch {
		case bytes.HasPrefix(data[j:], []byte("\r\n")):
			j += 2
		case j < len(data) && (data[j] == '\n' || data[j] == '\r'):
			j++
		default:
			pos = j
			continue
		}
		end := bytes.Index(data[j:], kwEndstream)
		if end < 0 {
			break
		}
		dictStart := start - 1024
		if dictStart < 0 {
			dictStart = 0
		}
		dict := data[dictStart:start]
		if d := bytes.LastIndex(dict, []byte("obj")); d >= 0 {
			dict = dict[d:]
		}
		out = append(out, streamSegment{dict: dict, body: data[j : j+end]})
		pos = j + end + len(kwEndstream)
	}
	return out
}

// skipStream drops image and embedded font streams.
func skipStream(dict []byte) bool {
	compact := bytes.ReplaceAll(dict, []byte(" "), nil)
	return bytes.Contains(compact, []byte("/Subtype/Image")) ||
		bytes.Contains(dict, []byte("/DCTDecode")) ||
		bytes.Contains(dict, []byte("/JPXDecode")) ||
		bytes.Contains(dict, []byte("/Length1")) ||
		bytes.Contains(dict, []byte("/FontFile"))
}

func inflate(b []byte) ([]byte, bool) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, false
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, maxInflatedStream))
	if len(out) == 0 {
		return nil, false
	}
	// A truncated stream still yields usable prefix bytes.
	_ = err
	return out, true
}

func printableRuns(data []byte) string {
	runs := rePrintable.FindAll(data, -1)
	var b strings.Builder
	for _, r := range runs {
		if b.Len()+len(r) > maxPrintableBytes {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.Write(r)
	}
	return b.String()
}

// contentScanner tokenizes a PDF content stream and collects shown strings.
type contentScanner struct {
	b       []byte
	i       int
	out     strings.Builder
	strs    []string
	arr     []string
	nums    []float64
	inArray int
	found   bool
}

func textFromContent(b []byte) (string, bool) {
	s := &contentScanner{b: b}
	s.run()
	return strings.TrimSpace(s.out.String()), s.found
}

func isPDFSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isPDFDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (s *contentScanner) run() {
	for s.i < len(s.b) {
		c := s.b[s.i]
		switch {
		case isPDFSpace(c):
			s.i++
		case c == '%':
			for s.i < len(s.b) && s.b[s.i] != '\n' && s.b[s.i] != '\r' {
				s.i++
			}
		case c == '(':
			s.push(decodePDFString(s.literal()))
		case c == '<' && s.peek(1) == '<', c == '>' && s.peek(1) == '>':
			s.i += 2
		case c == '<':
			s.push(decodePDFString(s.hexString()))
		case c == '[':
			s.inArray++
			s.i++
		case c == ']':
			if s.inArray > 0 {
				s.inArray--
			}
			s.i++
		case c == '/':
			s.i++
			s.word()
		case c == '{', c == '}', c == ')', c == '>':
			s.i++
		default:
			w := s.word()
			if w == "" {
				s.i++
				continue
			}
			if n, err := strconv.ParseFloat(w, 64); err == nil {
				if s.inArray > 0 {
					if n < -200 {
						s.arr = append(s.arr, " ")
					}
				} else {
					s.nums = append(s.nums, n)
				}
				continue
			}
			s.operator(w)
		}
	}
}

func (s *contentScanner) peek(off int) byte {
	if s.i+off < len(s.b) {
		return s.b[s.i+off]
	}
	return 0
}

func (s *contentScanner) word() string {
	start := s.i
	for s.i < len(s.b) && !isPDFSpace(s.b[s.i]) && !isPDFDelim(s.b[s.i]) {
		s.i++
	}
	return string(s.b[start:s.i])
}

func (s *contentScanner) push(str string) {
	if s.inArray > 0 {
		s.arr = append(s.arr, str)
		return
	}
	s.strs = append(s.strs, str)
}

func (s *contentScanner) newline() {
	if n := s.out.Len(); n > 0 && !strings.HasSuffix(s.out.String(), "\n") {
		s.out.WriteByte('\n')
	}
}

func (s *contentScanner) space() {
	str := s.out.String()
	if str != "" && !strings.HasSuffix(str, " ") && !strings.HasSuffix(str, "\n") {
		s.out.WriteByte(' ')
	}
}

func (s *contentScanner) operator(op string) {
	switch op {
	case "Tj":
		s.found = true
		s.out.WriteString(strings.Join(s.strs, ""))
	case "'", "\"":
		s.found = true
		s.newline()
		if len(s.strs) > 0 {
			s.out.WriteString(s.strs[len(s.strs)-1])
		}
	case "TJ":
		s.found = true
		s.out.WriteString(strings.Join(s.arr, ""))
	case "T*", "Tm", "ET":
		s.newline()
	case "Td", "TD":
		if len(s.nums) >= 2 && s.nums[len(s.nums)-1] != 0 {
			s.newline()
		} else {
			s.space()
		}
	case "BI":
		if k := bytes.Index(s.b[s.i:], []byte("EI")); k >= 0 {
			s.i += k + 2
		} else {
			s.i = len(s.b)
		}
	}
	s.strs = s.strs[:0]
	s.arr = s.arr[:0]
	s.nums = s.nums[:0]
	s.inArray = 0
}

// literal reads a balanced (...) string, resolving escapes.
func (s *contentScanner) literal() []byte {
	s.i++ // (
	depth := 1
	var out []byte
	for s.i < len(s.b) {
		c := s.b[s.i]
		s.i++
		switch c {
		case '\\':
			if s.i >= len(s.b) {
				return out
			}
			e := s.b[s.i]
			s.i++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if s.i < len(s.b) && s.b[s.i] == '\n' {
					s.i++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for k := 0; k < 2 && s.i < len(s.b) && s.b[s.i] >= '0' && s.b[s.i] <= '7'; k++ {
						v = v*8 + int(s.b[s.i]-'0')
						s.i++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return out
}

func (s *contentScanner) hexString() []byte {
	s.i++ // <
	var digits []byte
	for s.i < len(s.b) && s.b[s.i] != '>' {
		c := s.b[s.i]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') {
			digits = append(digits, c)
		}
		s.i++
	}
	s.i++ // >
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, hex.DecodedLen(len(digits)))
	n, _ := hex.Decode(out, digits)
	return out[:n]
}

// decodePDFString turns string operand bytes into UTF-8: UTF-16BE with BOM,
// otherwise UTF-8 when valid, otherwise a Windows-1252 approximation of PDFDocEncoding.
func decodePDFString(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		dec := xunicode.UTF16(xunicode.BigEndian, xunicode.ExpectBOM).NewDecoder()
		if out, err := dec.Bytes(b); err == nil {
			return string(out)
		}
	}
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "")
	}
	return string(out)
}
