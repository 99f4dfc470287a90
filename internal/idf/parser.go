package idf

import (
	"strings"
)

// Parse reads a document into a Model. Unknown object classes and fields pass
// through opaquely; the only hard failure is a block still open at EOF.
func Parse(text string) (*Model, error) {
	m := &Model{}
	lines := strings.Split(text, "\n")

	var (
		cur       *Record   // block being accumulated, nil between blocks
		rawLines  []string  // source lines of the current block
		gapLines  []string  // comment/blank lines between blocks
		startLine int
	)

	flushGap := func() {
		if len(gapLines) > 0 {
			m.nodes = append(m.nodes, node{gap: strings.Join(gapLines, "\n")})
			gapLines = nil
		}
	}

	for i, line := range lines {
		code, comment := splitComment(line)
		trimmed := strings.TrimSpace(code)

		if cur == nil {
			if trimmed == "" {
				// Trailing empty split artifact from the final newline is
				// not a gap line.
				if i == len(lines)-1 && line == "" {
					continue
				}
				gapLines = append(gapLines, line)
				continue
			}
			flushGap()
			cur = &Record{}
			rawLines = nil
			startLine = i + 1
		}
		rawLines = append(rawLines, line)

		terminated := consumeTokens(cur, trimmed, comment)
		if terminated {
			cur.raw = strings.Join(rawLines, "\n")
			m.nodes = append(m.nodes, node{rec: cur})
			cur = nil
		}
	}

	if cur != nil {
		return nil, &FormatError{Line: startLine, Msg: "unterminated block (missing ';')"}
	}
	flushGap()
	return m, nil
}

// consumeTokens feeds one line's code text into the record and reports
// whether the block's terminating semicolon was seen.
func consumeTokens(r *Record, code, comment string) bool {
	if code == "" {
		return false
	}
	terminated := strings.HasSuffix(code, ";")
	code = strings.TrimSuffix(code, ";")
	code = strings.TrimSuffix(strings.TrimSpace(code), ",")

	for tok := range strings.SplitSeq(code, ",") {
		tok = strings.TrimSpace(tok)
		if r.Type == "" {
			r.Type = tok
			continue
		}
		r.Fields = append(r.Fields, Field{Value: tok})
	}
	// The inline annotation describes the last field on the line.
	if comment != "" && len(r.Fields) > 0 {
		r.Fields[len(r.Fields)-1].Comment = comment
	}
	return terminated
}

// splitComment separates a source line into code and the "!- ..." annotation.
func splitComment(line string) (code, comment string) {
	if i := strings.Index(line, "!"); i >= 0 {
		c := strings.TrimSpace(line[i:])
		c = strings.TrimPrefix(c, "!-")
		c = strings.TrimPrefix(c, "!")
		return line[:i], strings.TrimSpace(c)
	}
	return line, ""
}
