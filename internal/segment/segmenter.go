// Package segment splits legal document text into clauses.
//
// Segmentation is total: every non-whitespace character of the input belongs
// to exactly one clause, and clauses appear in document order.
package segment

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ppiankov/clausewise/internal/model"
)

// enumeratorPattern matches a clause marker at the start of a line or clause:
// "1.", "1.2", "2)", "(a)", "(iv)", "a)", "IV.", "Section 3", "Article II", bullets.
var enumeratorPattern = regexp.MustCompile(`^(?:\(\s*(?:\d{1,3}|[a-zA-Z]|[ivxlcdmIVXLCDM]{1,6})\s*\)|(?:\d{1,3}(?:\.\d{1,3})*|[a-zA-Z]|[ivxlcdmIVXLCDM]{1,6})[.)]|\d{1,3}(?:\.\d{1,3})+|(?i:section|article|clause|schedule|exhibit)\s+(?:\d{1,3}(?:\.\d{1,3})*|[ivxlcdmIVXLCDM]{1,6}|[A-Z])\.?|[-•*])(?:\s|$)`)

var paragraphBreak = regexp.MustCompile(`\n[ \t\r\f\v]*\n`)

var (
	numericToken = regexp.MustCompile(`^\d{1,3}(?:\.\d{1,3})*$`)
	romanToken   = regexp.MustCompile(`^[ivxlcdmIVXLCDM]{1,6}$`)
	headingWord  = regexp.MustCompile(`(?i)^(?:section|article|clause|schedule|exhibit)\s+$`)
)

// Segmenter splits document text into clauses using structural heuristics
type Segmenter struct {
	splitSemicolons bool

	// abbreviations maps a lowercase token to whether it may also end a
	// sentence (only when the next word is capitalized)
	abbreviations map[string]bool
}

// New creates a segmenter from configuration
func New(cfg model.SegmentConfig) *Segmenter {
	return &Segmenter{
		splitSemicolons: cfg.SplitSemicolons,
		abbreviations: map[string]bool{
			"mr": false, "mrs": false, "ms": false, "dr": false, "prof": false,
			"inc": false, "ltd": false, "llc": false, "co": false, "corp": false,
			"no": false, "nos": false, "vs": false, "v": false, "st": false,
			"jr": false, "sr": false, "art": false, "arts": false, "sec": false,
			"secs": false, "para": false, "paras": false, "cl": false, "ch": false,
			"p": false, "pp": false, "approx": false, "dept": false, "fig": false,
			"etc": true, "al": true, "ibid": true, "id": true, "seq": true,
		},
	}
}

// piece is a trimmed clause candidate
type piece struct {
	span   model.Span
	number string
}

// Segment splits the document text into clauses in document order.
// It fails only when the text is empty or whitespace.
func (s *Segmenter) Segment(doc *model.Document) ([]model.Clause, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, &model.SegmentationError{Reason: "empty input", Err: model.ErrEmptyDocument}
	}

	pieces := s.split(doc.Text)
	if len(pieces) == 0 {
		// Unreachable for non-blank text; kept so callers never get zero clauses silently
		return nil, &model.SegmentationError{Reason: "no clauses found"}
	}

	clauses := make([]model.Clause, len(pieces))
	for i, p := range pieces {
		clauses[i] = model.Clause{
			DocumentID: doc.ID,
			Index:      i,
			Number:     p.number,
			Span:       p.span,
			Text:       doc.Text[p.span.Start:p.span.End],
		}
	}
	return clauses, nil
}

func (s *Segmenter) split(text string) []piece {
	cuts := s.cutPoints(text)

	var pieces []piece
	var pending *piece // enumerator-only piece waiting for its body

	for i := 0; i < len(cuts)-1; i++ {
		start, end := trimSpan(text, cuts[i], cuts[i+1])
		if start >= end {
			continue
		}

		p := piece{span: model.Span{Start: start, End: end}}
		marker := leadingMarker(text[start:end])
		p.number = normalizeNumber(marker)

		if pending != nil {
			p.span.Start = pending.span.Start
			p.number = joinNumbers(pending.number, p.number)
			pending = nil
		}

		if marker != "" && len(marker) == end-start && p.number != "" {
			held := p
			pending = &held
			continue
		}

		pieces = append(pieces, p)
	}

	// A trailing marker with nothing after it is still text and becomes its own clause
	if pending != nil {
		pieces = append(pieces, *pending)
	}

	return pieces
}

// cutPoints returns sorted, unique positions where a new clause may begin,
// always including 0 and len(text)
func (s *Segmenter) cutPoints(text string) []int {
	structural := make(map[int]bool)

	for _, m := range paragraphBreak.FindAllStringIndex(text, -1) {
		structural[m[1]] = true
	}

	for lineStart := 0; lineStart < len(text); {
		pos := skipInlineSpace(text, lineStart)
		if pos > 0 && leadingMarker(text[pos:]) != "" {
			structural[pos] = true
		}
		next := strings.IndexByte(text[lineStart:], '\n')
		if next < 0 {
			break
		}
		lineStart += next + 1
	}

	cuts := map[int]bool{0: true, len(text): true}
	for p := range structural {
		cuts[p] = true
	}

	lastCut := 0
	for i := 0; i < len(text); i++ {
		if structural[i] {
			lastCut = i
		}

		c := text[i]
		switch c {
		case '.', '!', '?':
			j := skipClosers(text, i+1)
			if j >= len(text) || !isSpaceByte(text[j]) {
				continue
			}
			if c == '.' && !s.endsSentence(text, lastCut, i, j) {
				continue
			}
			cuts[j] = true
			lastCut = j
		case ';':
			if !s.splitSemicolons {
				continue
			}
			j := skipInlineSpace(text, i+1)
			if j >= len(text) {
				continue
			}
			if text[j] == '\n' || text[j] == '\r' || (text[j] == '(' && leadingMarker(text[j:]) != "") {
				cuts[i+1] = true
				lastCut = i + 1
			}
		}
	}

	out := make([]int, 0, len(cuts))
	for p := range cuts {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// endsSentence decides whether the period at dot terminates a clause.
// next is the first whitespace position after the period and any closers.
func (s *Segmenter) endsSentence(text string, lastCut, dot, next int) bool {
	tokStart := dot
	for tokStart > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:tokStart])
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.') {
			break
		}
		tokStart -= size
	}
	token := strings.Trim(text[tokStart:dot], ".")
	if token == "" {
		return true
	}

	clauseStart := skipAllSpace(text, lastCut)

	// Enumerator opening the clause: "1. The Buyer", "IV. Remedies", "Section 2. Payment"
	if numericToken.MatchString(token) || romanToken.MatchString(token) || utf8.RuneCountInString(token) == 1 {
		if tokStart == clauseStart || headingWord.MatchString(text[clauseStart:tokStart]) {
			return false
		}
	}

	// Single-letter initials and dotted abbreviations such as "U.S." and "e.g."
	if utf8.RuneCountInString(token) == 1 && unicode.IsLetter([]rune(token)[0]) {
		return false
	}
	if isDottedAbbreviation(text[tokStart:dot]) {
		return false
	}

	if finalOK, ok := s.abbreviations[strings.ToLower(token)]; ok {
		if !finalOK {
			return false
		}
		r, _ := utf8.DecodeRuneInString(text[skipAllSpace(text, next):])
		return unicode.IsUpper(r) || unicode.IsDigit(r)
	}

	return true
}

// isDottedAbbreviation reports tokens like "U.S" or "e.g" made of single letters joined by dots
func isDottedAbbreviation(tok string) bool {
	if !strings.Contains(tok, ".") {
		return false
	}
	for _, part := range strings.Split(tok, ".") {
		if utf8.RuneCountInString(part) != 1 {
			return false
		}
		r, _ := utf8.DecodeRuneInString(part)
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// leadingMarker returns the enumerator at the start of s without trailing whitespace
func leadingMarker(s string) string {
	loc := enumeratorPattern.FindStringIndex(s)
	if loc == nil {
		return ""
	}
	return strings.TrimRightFunc(s[:loc[1]], unicode.IsSpace)
}

// normalizeNumber turns a marker into a clause number: "1." → "1", "Section 3." → "Section 3".
// Bullets carry no number.
func normalizeNumber(marker string) string {
	switch marker {
	case "", "-", "•", "*":
		return ""
	}
	if strings.HasPrefix(marker, "(") {
		return strings.Join(strings.Fields(marker), "")
	}
	return strings.Join(strings.Fields(strings.TrimSuffix(marker, ".")), " ")
}

// joinNumbers nests an inner enumerator under a held outer one:
// "1" and "(a)" give "1(a)", "Article IV" and "2" give "Article IV.2".
func joinNumbers(outer, inner string) string {
	switch {
	case inner == "":
		return outer
	case outer == "":
		return inner
	case strings.HasPrefix(inner, "("):
		return outer + inner
	}
	return outer + "." + inner
}

func trimSpan(text string, start, end int) (int, int) {
	for start < end {
		r, size := utf8.DecodeRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		start += size
	}
	for end > start {
		r, size := utf8.DecodeLastRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		end -= size
	}
	return start, end
}

func skipClosers(text string, i int) int {
	for i < len(text) {
		switch text[i] {
		case '"', '\'', ')', ']':
			i++
			continue
		}
		break
	}
	return i
}

func skipInlineSpace(text string, i int) int {
	for i < len(text) && (text[i] == ' ' || text[i] == '\t') {
		i++
	}
	return i
}

func skipAllSpace(text string, i int) int {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	return i
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' || b == '\v'
}

// Verify checks that clauses cover text totally and in order: spans are
// increasing and non-overlapping, each clause text equals its span, and the
// text outside all spans is whitespace.
func Verify(text string, clauses []model.Clause) error {
	prev := 0
	for i, c := range clauses {
		if c.Span.Start < prev || c.Span.End <= c.Span.Start || c.Span.End > len(text) {
			return fmt.Errorf("clause %d: span [%d,%d) out of order or out of range", i, c.Span.Start, c.Span.End)
		}
		if text[c.Span.Start:c.Span.End] != c.Text {
			return fmt.Errorf("clause %d: text does not match span", i)
		}
		if strings.TrimSpace(text[prev:c.Span.Start]) != "" {
			return fmt.Errorf("clause %d: non-whitespace text before span start %d", i, c.Span.Start)
		}
		prev = c.Span.End
	}
	if strings.TrimSpace(text[prev:]) != "" {
		return fmt.Errorf("non-whitespace text after last clause at %d", prev)
	}
	return nil
}
