package migration

import (
	"strings"

	"github.com/BaSui01/migrateflow/internal/schema"
)

// SplitStatements splits a script into statements for the database named by
// dialect (a gorm dialector name).
//
// A statement ends at the delimiter when it is outside quotes, comments,
// dollar-quoted bodies and the BEGIN ... END body of a CREATE TRIGGER,
// PROCEDURE, FUNCTION or EVENT. The delimiter is ";" until a client-style
// DELIMITER line between statements changes it. Backslash escapes a quote
// only on MySQL. Comments are dropped and blank statements are skipped.
func SplitStatements(dialect, script string) []string {
	s := &splitter{
		src:       script,
		delim:     ";",
		backslash: dialect == schema.DialectMySQL,
	}
	return s.run()
}

type splitter struct {
	src       string
	delim     string
	backslash bool

	out []string
	buf strings.Builder

	// state of the current statement
	words    int
	create   bool
	opened   bool
	compound bool
	depth    int
	skipWord bool
}

func (s *splitter) run() []string {
	src, n := s.src, len(s.src)
	for i := 0; i < n; {
		if s.pending() == "" && (i == 0 || src[i-1] == '\n') {
			if d, next, ok := delimiterCommand(src, i); ok {
				s.delim = d
				i = next
				continue
			}
		}
		if s.atDelimiter(i) {
			s.flush()
			i += len(s.delim)
			continue
		}

		c := src[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end := s.closingQuote(i+1, c)
			s.buf.WriteString(src[i:end])
			i = end

		case c == '-' && i+1 < n && src[i+1] == '-':
			for i < n && src[i] != '\n' {
				i++
			}
			s.buf.WriteByte('\n')
			i++

		case c == '/' && i+1 < n && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				i = n
			} else {
				i += end + 4
			}
			s.buf.WriteByte(' ')

		case c == '$':
			tag, ok := dollarTag(src[i:])
			if !ok {
				s.buf.WriteByte(c)
				i++
				continue
			}
			end := strings.Index(src[i+len(tag):], tag)
			if end < 0 {
				s.buf.WriteString(src[i:])
				i = n
				continue
			}
			stop := i + len(tag) + end + len(tag)
			s.buf.WriteString(src[i:stop])
			i = stop

		case isWordStart(c) && (i == 0 || !isWordByte(src[i-1])):
			end := i
			for end < n && isWordByte(src[end]) {
				end++
			}
			s.buf.WriteString(src[i:end])
			s.word(src[i:end], end)
			i = end

		default:
			if c == '(' {
				s.opened = true
			}
			s.buf.WriteByte(c)
			i++
		}
	}
	s.flush()
	return s.out
}

func (s *splitter) pending() string {
	return strings.TrimSpace(s.buf.String())
}

func (s *splitter) flush() {
	if stmt := s.pending(); stmt != "" {
		s.out = append(s.out, stmt)
	}
	s.buf.Reset()
	s.words, s.depth = 0, 0
	s.create, s.opened, s.compound, s.skipWord = false, false, false, false
}

func (s *splitter) atDelimiter(i int) bool {
	if s.delim == ";" {
		return s.src[i] == ';' && s.depth == 0
	}
	return strings.HasPrefix(s.src[i:], s.delim)
}

// word tracks the keywords that open and close routine bodies. A routine
// keyword only counts before the first parenthesis, so column names such as
// "event" do not start a body.
func (s *splitter) word(w string, next int) {
	s.words++
	if s.skipWord {
		s.skipWord = false
		return
	}
	if s.words == 1 {
		s.create = strings.EqualFold(w, "CREATE")
		return
	}
	upper := strings.ToUpper(w)
	if !s.compound {
		if s.create && !s.opened {
			switch upper {
			case "TRIGGER", "PROCEDURE", "FUNCTION", "EVENT":
				s.compound = true
			}
		}
		return
	}

	switch upper {
	case "BEGIN", "CASE":
		s.depth++
	case "END":
		if s.depth == 0 {
			return
		}
		switch strings.ToUpper(peekWord(s.src, next)) {
		case "IF", "LOOP", "WHILE", "REPEAT":
			s.skipWord = true
		case "CASE":
			s.depth--
			s.skipWord = true
		default:
			s.depth--
		}
	}
}

// closingQuote returns the index just past the quote closing the literal that
// starts at from. A doubled quote is an escaped quote.
func (s *splitter) closingQuote(from int, q byte) int {
	src := s.src
	for j := from; j < len(src); j++ {
		switch src[j] {
		case '\\':
			if s.backslash && q != '`' {
				j++
			}
		case q:
			if j+1 < len(src) && src[j+1] == q {
				j++
				continue
			}
			return j + 1
		}
	}
	return len(src)
}

// delimiterCommand matches a "DELIMITER <token>" line starting at i and
// returns the token and the offset of the next line.
func delimiterCommand(src string, i int) (string, int, bool) {
	const kw = "DELIMITER"
	j := i
	for j < len(src) && (src[j] == ' ' || src[j] == '\t') {
		j++
	}
	if len(src)-j <= len(kw) || !strings.EqualFold(src[j:j+len(kw)], kw) {
		return "", 0, false
	}
	j += len(kw)
	if src[j] != ' ' && src[j] != '\t' {
		return "", 0, false
	}

	next := len(src)
	lineEnd := len(src)
	if k := strings.IndexByte(src[j:], '\n'); k >= 0 {
		lineEnd = j + k
		next = lineEnd + 1
	}
	d := strings.TrimSpace(src[j:lineEnd])
	if d == "" {
		return "", 0, false
	}
	return d, next, true
}

// dollarTag matches $$ or $tag$ at the start of s.
func dollarTag(s string) (string, bool) {
	for j := 1; j < len(s); j++ {
		c := s[j]
		if c == '$' {
			return s[:j+1], true
		}
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || j > 1 && c >= '0' && c <= '9') {
			return "", false
		}
	}
	return "", false
}

func peekWord(src string, from int) string {
	for from < len(src) && (src[from] == ' ' || src[from] == '\t' || src[from] == '\n' || src[from] == '\r') {
		from++
	}
	end := from
	for end < len(src) && isWordByte(src[end]) {
		end++
	}
	return src[from:end]
}

func isWordStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isWordByte(c byte) bool {
	return isWordStart(c) || c >= '0' && c <= '9'
}
