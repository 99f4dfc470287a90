// Package diag classifies the simulation engine's run log into structured
// diagnostics and summarizes recurring messages so repeated optimization
// passes can target one dominant defect at a time.
package diag

import (
	"sort"
	"strings"
)

// Severity of one engine diagnostic. The engine emits exactly these three;
// anything else in the log is noise and is dropped.
type Severity string

const (
	Warning Severity = "Warning"
	Severe  Severity = "Severe"
	Fatal   Severity = "Fatal"
)

// Diagnostic is one classified entry from the engine's run log.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Line     int      `json:"line"`
}

// The engine's fixed textual markers. Spacing inside the stars varies by
// severity and is part of the format.
var markers = []struct {
	tag string
	sev Severity
}{
	{"** Warning **", Warning},
	{"** Severe  **", Severe},
	{"**  Fatal  **", Fatal},
}

const continuation = "**   ~~~   **"

// Classify scans the engine log and returns its diagnostics in order.
// Continuation lines fold into the preceding diagnostic's message.
func Classify(log string) []Diagnostic {
	var out []Diagnostic
	lineNo := 0
	for line := range strings.Lines(log) {
		lineNo++
		line = strings.TrimRight(line, "\n")
		trimmed := strings.TrimSpace(line)

		if rest, ok := strings.CutPrefix(trimmed, continuation); ok && len(out) > 0 {
			out[len(out)-1].Message += " " + strings.TrimSpace(rest)
			continue
		}
		for _, m := range markers {
			if rest, ok := strings.CutPrefix(trimmed, m.tag); ok {
				out = append(out, Diagnostic{
					Severity: m.sev,
					Message:  strings.TrimSpace(rest),
					Line:     lineNo,
				})
				break
			}
		}
	}
	return out
}

// HasFatal reports whether any diagnostic is Fatal.
func HasFatal(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == Fatal {
			return true
		}
	}
	return false
}

// Count returns how many diagnostics carry the given severity.
func Count(diags []Diagnostic, sev Severity) int {
	n := 0
	for _, d := range diags {
		if d.Severity == sev {
			n++
		}
	}
	return n
}

// MessageGroup is one summarized bucket of diagnostics sharing a message
// prefix.
type MessageGroup struct {
	Message string
	Count   int
}

// Summarize groups diagnostics by the first keyLen characters of their
// message and returns the groups sorted by descending count, ties broken by
// first occurrence. The top entry is the dominant problem of the run.
func Summarize(diags []Diagnostic, keyLen int) []MessageGroup {
	counts := map[string]int{}
	first := map[string]int{}
	for i, d := range diags {
		key := d.Message
		if keyLen > 0 && len(key) > keyLen {
			key = key[:keyLen]
		}
		if _, seen := counts[key]; !seen {
			first[key] = i
		}
		counts[key]++
	}

	out := make([]MessageGroup, 0, len(counts))
	for key, n := range counts {
		out = append(out, MessageGroup{Message: key, Count: n})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return first[out[i].Message] < first[out[j].Message]
	})
	return out
}
