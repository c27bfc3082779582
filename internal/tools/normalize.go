package tools

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/odoo-mcp/bridge/internal/models"
)

// NormalizeOptions controls the response-normalization pass applied after
// every backend call (spec §4.8).
type NormalizeOptions struct {
	StripHTML       bool
	RequestedBinary map[string]bool // fields explicitly asked for; others are dropped
}

var datetimeLayout = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}) (\d{2}:\d{2}:\d{2})$`)

// NormalizeRecord applies spec §4.8's response normalization to one backend
// record, given the model's known field metadata (used to pick the right
// rule per field: relation vs date vs binary vs html). Unknown fields (not
// in the registry, e.g. computed projections) pass through untouched except
// for the universal false→null/""-on-string rule, which needs no type
// information beyond "is the raw value the Odoo empty marker".
//
// Idempotent: every transform here first checks whether the value is
// already in its normalized shape before converting, so re-running
// normalization on an already-normalized record is a no-op (spec §8
// "normalize(normalize(x)) = normalize(x)").
func NormalizeRecord(record map[string]interface{}, fields map[string]models.FieldInfo, opts NormalizeOptions) map[string]interface{} {
	out := make(map[string]interface{}, len(record))
	for name, raw := range record {
		fi, known := fields[name]
		out[name] = normalizeValue(raw, fi, known, opts)
	}
	return out
}

func normalizeValue(raw interface{}, fi models.FieldInfo, known bool, opts NormalizeOptions) interface{} {
	// Odoo's "empty" marker is the boolean false standing in for null on any
	// field type; everywhere except actual boolean fields this means "no
	// value", normalized per field-type family.
	if b, ok := raw.(bool); ok && !b && (!known || fi.Type != "boolean") {
		if known {
			switch fi.Type {
			case "char", "text", "html":
				return ""
			default:
				return nil
			}
		}
		return nil
	}

	if known {
		switch fi.Type {
		case "many2one":
			return normalizeRelational(raw)
		case "datetime":
			return normalizeDatetime(raw)
		case "binary":
			if opts.RequestedBinary[fi.Name] {
				return raw
			}
			return nil
		case "html":
			if opts.StripHTML {
				if s, ok := raw.(string); ok {
					return stripHTML(s)
				}
			}
			return raw
		}
	}
	return raw
}

// normalizeRelational converts a many2one's [id, name] tuple into
// {"id":id,"name":name}. A value already in that shape (a second
// normalization pass, or a hand-built test fixture) passes through
// unchanged.
func normalizeRelational(raw interface{}) interface{} {
	if m, ok := raw.(map[string]interface{}); ok {
		return m
	}
	tuple, ok := raw.([]interface{})
	if !ok || len(tuple) != 2 {
		return raw
	}
	return map[string]interface{}{"id": tuple[0], "name": tuple[1]}
}

// normalizeDatetime converts "YYYY-MM-DD HH:MM:SS" to RFC3339 UTC. A value
// that doesn't match the raw backend layout (already converted, or not a
// string) passes through unchanged.
func normalizeDatetime(raw interface{}) interface{} {
	s, ok := raw.(string)
	if !ok {
		return raw
	}
	m := datetimeLayout.FindStringSubmatch(s)
	if m == nil {
		return raw
	}
	return m[1] + "T" + m[2] + "Z"
}

// stripHTML removes tags and decodes entities, inserting a newline after
// block-level elements so paragraph/list structure survives as plain text.
// Grounded on the teacher's absence of any HTML-aware dependency: no
// example repo pulls in an HTML sanitizer, but golang.org/x/net/html (an
// indirect dependency of two pack repos already) gives a real tokenizer
// instead of a hand-rolled regex strip.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

func stripHTML(input string) string {
	if !strings.ContainsAny(input, "<&") {
		return input
	}
	tokenizer := html.NewTokenizer(strings.NewReader(input))
	var b strings.Builder
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return strings.TrimSpace(collapseBlankLines(b.String()))
		case html.TextToken:
			b.Write(tokenizer.Text())
		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			name, _ := tokenizer.TagName()
			if blockElements[string(name)] && (tt != html.StartTagToken || string(name) == "br") {
				b.WriteString("\n")
			}
		}
	}
}

var blankLines = regexp.MustCompile(`\n{3,}`)

func collapseBlankLines(s string) string {
	return blankLines.ReplaceAllString(s, "\n\n")
}
