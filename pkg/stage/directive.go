package stage

import (
	"fmt"
	"strings"
)

// DirectiveKind distinguishes assignments from deletions.
type DirectiveKind int

const (
	Set DirectiveKind = iota
	Delete
)

func (k DirectiveKind) String() string {
	if k == Delete {
		return "delete"
	}
	return "set"
}

// Directive is one line of a candidate change.
type Directive struct {
	Kind DirectiveKind
	// Text is "key=value" for Set and the bare key for Delete.
	Text string
}

// ParseDirective classifies one candidate line. The first space is
// rewritten as "=", so "ntp.server 10.0.0.1", "ntp.server=10.0.0.1" and
// "timeout 30" are all assignments. Only a bare key, with neither a space
// nor "=", deletes.
func ParseDirective(line string) Directive {
	line = strings.TrimSpace(line)
	joined := line
	if key, rest, ok := strings.Cut(line, " "); ok {
		joined = key + "=" + rest
	}
	if !strings.Contains(joined, "=") {
		return Directive{Kind: Delete, Text: line}
	}
	return Directive{Kind: Set, Text: joined}
}

// ParseDirectives classifies every non-blank line. Elements holding several
// lines are split first.
func ParseDirectives(lines []string) []Directive {
	var out []Directive
	for _, l := range lines {
		for _, line := range strings.Split(l, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			out = append(out, ParseDirective(line))
		}
	}
	return out
}

// Command returns the shell command that applies the directive.
func (d Directive) Command() string {
	if d.Kind == Delete {
		return fmt.Sprintf(`sudo config -d "%s"`, shellQuote(d.Text))
	}
	return fmt.Sprintf(`sudo config -s "%s"`, shellQuote(d.Text))
}

// shellQuote escapes the characters that stay special inside double quotes.
func shellQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`, "`", "\\`")
	return r.Replace(s)
}
