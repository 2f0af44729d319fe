// Package segment splits pasted text into fenced blocks, heredoc bodies and
// the raw text around them. Splitting is lossless: Join(Split(s)) == s.
package segment

import (
	"regexp"
	"strings"

	"github.com/runger/clipfix/internal/lang"
)

// Kind identifies how a segment was delimited in the input.
type Kind int

const (
	// Raw is text outside any recognized structure.
	Raw Kind = iota
	// Fenced is the body of a markdown ``` or ~~~ block.
	Fenced
	// Heredoc is the body of a shell heredoc.
	Heredoc
)

func (k Kind) String() string {
	switch k {
	case Raw:
		return "raw"
	case Fenced:
		return "fenced-block"
	case Heredoc:
		return "wrapped-heredoc"
	default:
		return "unknown"
	}
}

// Segment is one span of the input. Prefix and Suffix hold the wrapper text
// that is reproduced verbatim; only Text is ever rewritten.
type Segment struct {
	Prefix       string
	Text         string
	Suffix       string
	LanguageHint string
	Index        int
	Kind         Kind
}

// Full returns Prefix+Text+Suffix.
func (s Segment) Full() string {
	return s.Prefix + s.Text + s.Suffix
}

// WithText returns a copy of s carrying a replacement body.
func (s Segment) WithText(text string) Segment {
	s.Text = text
	return s
}

// CRLF reports whether the segment's first line break, counting the
// wrapper lines, is CRLF.
func (s Segment) CRLF() bool {
	full := s.Full()
	i := strings.IndexByte(full, '\n')
	return i > 0 && full[i-1] == '\r'
}

// Join concatenates the segments in order.
func Join(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.Prefix)
		b.WriteString(s.Text)
		b.WriteString(s.Suffix)
	}
	return b.String()
}

// HasStructure reports whether any segment is a fence or heredoc.
func HasStructure(segs []Segment) bool {
	for _, s := range segs {
		if s.Kind != Raw {
			return true
		}
	}
	return false
}

// HasOpenFence reports whether text contains a fence opener line. In a raw
// segment that means the fence was never closed.
func HasOpenFence(text string) bool {
	for _, l := range splitLines(text) {
		if _, ok := parseFence(l.text); ok {
			return true
		}
	}
	return false
}

var (
	heredocRe   = regexp.MustCompile(`(^|[^<])<<(-?)[ \t]*(['"]?)([A-Za-z_][A-Za-z0-9_]*)(['"]?)`)
	redirectRe  = regexp.MustCompile(`>>?[ \t]*([^\s;&|<>]+)`)
	fenceOpenRe = regexp.MustCompile("^ {0,3}(`{3,}|~{3,})[ \\t]*([^`]*)$")
	fenceEndRe  = regexp.MustCompile("^ {0,3}(`{3,}|~{3,})[ \\t]*$")
)

// tagLanguages maps conventional heredoc terminator words to languages.
var tagLanguages = map[string]lang.Language{
	"PY":     lang.Python,
	"PYTHON": lang.Python,
	"JS":     lang.JavaScript,
	"NODE":   lang.JavaScript,
	"TS":     lang.TypeScript,
	"SQL":    lang.SQL,
	"PSQL":   lang.SQL,
	"SH":     lang.Bash,
	"BASH":   lang.Bash,
	"JSON":   lang.JSON,
	"YAML":   lang.YAML,
	"YML":    lang.YAML,
	"RUST":   lang.Rust,
	"GO":     lang.Go,
}

type line struct {
	start int    // offset of the first byte
	end   int    // offset just past the line break
	text  string // content without the line break
}

func (l line) contentEnd() int { return l.start + len(l.text) }

func splitLines(s string) []line {
	var lines []line
	start := 0
	for start < len(s) {
		end := strings.IndexByte(s[start:], '\n')
		if end < 0 {
			lines = append(lines, line{start: start, end: len(s), text: strings.TrimSuffix(s[start:], "\r")})
			break
		}
		end += start
		lines = append(lines, line{start: start, end: end + 1, text: strings.TrimSuffix(s[start:end], "\r")})
		start = end + 1
	}
	return lines
}

type heredocOpen struct {
	word      string
	stripTabs bool
	hint      string
}

type fenceOpen struct {
	marker string
	hint   string
}

// Split segments raw. It never fails: an unterminated fence turns the rest of
// the input into raw text.
func Split(raw string) []Segment {
	if raw == "" {
		return nil
	}

	lines := splitLines(raw)
	var segs []Segment
	rawStart := 0

	flushRaw := func(upTo int) {
		if upTo > rawStart {
			segs = append(segs, Segment{Kind: Raw, Text: raw[rawStart:upTo]})
		}
	}

	// emit records the structure opened at lines[open] and closed at lines[end].
	emit := func(kind Kind, open, end int, hint string) {
		flushRaw(lines[open].start)
		seg := Segment{
			Kind:         kind,
			Prefix:       raw[lines[open].start:lines[open].end],
			LanguageHint: hint,
		}
		closer := lines[end]
		if end == open+1 {
			seg.Suffix = raw[closer.start:closer.contentEnd()]
		} else {
			bodyEnd := lines[end-1].contentEnd()
			seg.Text = raw[lines[open].end:bodyEnd]
			seg.Suffix = raw[bodyEnd:closer.contentEnd()]
		}
		segs = append(segs, seg)
		rawStart = closer.contentEnd()
	}

	for i := 0; i < len(lines); i++ {
		// A << without a terminator line is usually a shift operator in
		// prose or code, so it does not stop the scan.
		if h, ok := parseHeredoc(lines[i].text); ok {
			if end := findHeredocEnd(lines, i+1, h); end > 0 {
				emit(Heredoc, i, end, h.hint)
				i = end
				continue
			}
		}
		if f, ok := parseFence(lines[i].text); ok {
			end := findFenceEnd(lines, i+1, f)
			if end < 0 {
				break
			}
			emit(Fenced, i, end, f.hint)
			i = end
		}
	}

	flushRaw(len(raw))
	for i := range segs {
		segs[i].Index = i
	}
	return segs
}

func parseHeredoc(text string) (heredocOpen, bool) {
	m := heredocRe.FindStringSubmatchIndex(text)
	if m == nil {
		return heredocOpen{}, false
	}
	openQuote := text[m[6]:m[7]]
	closeQuote := text[m[10]:m[11]]
	if openQuote != closeQuote {
		return heredocOpen{}, false
	}
	h := heredocOpen{
		word:      text[m[8]:m[9]],
		stripTabs: m[5] > m[4],
	}
	h.hint = heredocHint(text[:m[3]], h.word, text)
	return h, true
}

// heredocHint picks a language from the interpreter before the operator, the
// terminator word, or the redirect target, in that order.
func heredocHint(command, word, full string) string {
	for _, field := range strings.Fields(command) {
		if l, ok := lang.FromInterpreter(field); ok {
			return string(l)
		}
	}
	if l, ok := tagLanguages[strings.ToUpper(word)]; ok {
		return string(l)
	}
	for _, m := range redirectRe.FindAllStringSubmatch(full, -1) {
		if l, ok := lang.FromPath(m[1]); ok {
			return string(l)
		}
	}
	return ""
}

func findHeredocEnd(lines []line, from int, h heredocOpen) int {
	for j := from; j < len(lines); j++ {
		t := lines[j].text
		if h.stripTabs {
			t = strings.TrimLeft(t, "\t")
		}
		if strings.TrimRight(t, " \t") == h.word {
			return j
		}
	}
	return -1
}

func parseFence(text string) (fenceOpen, bool) {
	m := fenceOpenRe.FindStringSubmatch(text)
	if m == nil {
		return fenceOpen{}, false
	}
	f := fenceOpen{marker: m[1]}
	if fields := strings.Fields(m[2]); len(fields) > 0 {
		f.hint = strings.Trim(fields[0], "{}.")
	}
	return f, true
}

func findFenceEnd(lines []line, from int, f fenceOpen) int {
	for j := from; j < len(lines); j++ {
		m := fenceEndRe.FindStringSubmatch(lines[j].text)
		if m == nil {
			continue
		}
		if m[1][0] == f.marker[0] && len(m[1]) >= len(f.marker) {
			return j
		}
	}
	return -1
}
