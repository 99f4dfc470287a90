package idf

import (
	"strings"
)

// Serialize renders the model back to document text. Untouched records emit
// their original source bytes; mutated records emit canonical one-field-per-
// line form with aligned annotations.
func (m *Model) Serialize() string {
	var b strings.Builder
	for _, n := range m.nodes {
		if n.rec == nil {
			b.WriteString(n.gap)
			b.WriteString("\n")
			continue
		}
		if n.rec.raw != "" {
			b.WriteString(n.rec.raw)
			b.WriteString("\n")
			continue
		}
		writeCanonical(&b, n.rec)
	}
	return b.String()
}

func writeCanonical(b *strings.Builder, r *Record) {
	if len(r.Fields) == 0 {
		b.WriteString(r.Type)
		b.WriteString(";\n")
		return
	}
	b.WriteString(r.Type)
	b.WriteString(",\n")
	for i, f := range r.Fields {
		sep := ","
		if i == len(r.Fields)-1 {
			sep = ";"
		}
		b.WriteString("  ")
		b.WriteString(f.Value)
		b.WriteString(sep)
		if f.Comment != "" {
			pad := 24 - len(f.Value) - len(sep) - 2
			if pad < 1 {
				pad = 1
			}
			b.WriteString(strings.Repeat(" ", pad))
			b.WriteString("!- ")
			b.WriteString(f.Comment)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}
