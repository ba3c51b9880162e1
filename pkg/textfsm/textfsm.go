// Package textfsm turns plain-text command output into records using
// TextFSM templates embedded in the binary.
package textfsm

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/sirikothe/gotextfsm"
)

//go:embed templates/*.textfsm
var templates embed.FS

const templateExt = ".textfsm"

// Template returns the source of the named template.
func Template(name string) (string, error) {
	data, err := templates.ReadFile(path.Join("templates", name+templateExt))
	if err != nil {
		return "", fmt.Errorf("no textfsm template %q", name)
	}
	return string(data), nil
}

// Names lists the embedded templates.
func Names() []string {
	entries, _ := templates.ReadDir("templates")
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), templateExt) {
			names = append(names, strings.TrimSuffix(e.Name(), templateExt))
		}
	}
	sort.Strings(names)
	return names
}

// Extract parses text with the named template. Record keys are the
// template's value names in lower case; list values are joined with spaces.
func Extract(name, text string) ([]map[string]string, error) {
	tmpl, err := Template(name)
	if err != nil {
		return nil, err
	}
	return ExtractWith(tmpl, text)
}

// ExtractWith parses text with a template given as source.
func ExtractWith(tmpl, text string) ([]map[string]string, error) {
	fsm := gotextfsm.TextFSM{}
	if err := fsm.ParseString(tmpl); err != nil {
		return nil, fmt.Errorf("parsing textfsm template: %w", err)
	}

	parser := gotextfsm.ParserOutput{}
	if err := parser.ParseTextString(text, fsm, true); err != nil {
		return nil, fmt.Errorf("extracting records: %w", err)
	}

	records := make([]map[string]string, 0, len(parser.Dict))
	for _, row := range parser.Dict {
		rec := make(map[string]string, len(row))
		for k, v := range row {
			rec[strings.ToLower(k)] = stringify(v)
		}
		records = append(records, rec)
	}
	return records, nil
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return strings.Join(t, " ")
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
