// Package resource implements the Resource Engine (spec §4.11): the
// odoo:// URI scheme over system/config/model/record categories, read-only
// dispatch through the Safety Gate, and polling-based subscriptions.
//
// Grounded on the teacher's internal/mcp/server.go handleResourcesListV2/
// handlePromptsListV2 stubs (the teacher never implements real resources,
// since an OData service has no equivalent concept) — this package is the
// from-scratch implementation spec §4.11 calls for, following the same
// "read-only, Safety-Gate-filtered view over the Model Registry and the
// live backend" shape the teacher's CRUD tools use for writes.
package resource

import (
	"fmt"
	"net/url"
	"strings"
)

// Category is one of the four top-level resource categories (spec §4.11).
type Category string

const (
	CategorySystem Category = "system"
	CategoryConfig Category = "config"
	CategoryModel  Category = "model"
	CategoryRecord Category = "record"
)

// URI is a parsed odoo://{category}/{path}[?query] resource identifier.
type URI struct {
	Raw       string
	Namespace string
	Category  Category
	Segments  []string
	Query     url.Values
}

// Parse validates and decomposes a resource URI. The namespace is
// canonically "odoo" but, per spec §4.11 ("implementers may vary"), any
// non-empty scheme is accepted so a deployment can rebrand it.
func Parse(raw string) (URI, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return URI{}, fmt.Errorf("resource: invalid uri %q: %w", raw, err)
	}
	if parsed.Scheme == "" {
		return URI{}, fmt.Errorf("resource: uri %q is missing a scheme (expected odoo://category/path)", raw)
	}

	// url.Parse treats "odoo://system/info" as Host="system", Path="/info".
	segments := []string{}
	if parsed.Host != "" {
		segments = append(segments, parsed.Host)
	}
	for _, seg := range strings.Split(strings.Trim(parsed.Path, "/"), "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return URI{}, fmt.Errorf("resource: uri %q has no category", raw)
	}

	cat := Category(segments[0])
	switch cat {
	case CategorySystem, CategoryConfig, CategoryModel, CategoryRecord:
	default:
		return URI{}, fmt.Errorf("resource: unknown category %q in uri %q", segments[0], raw)
	}

	return URI{
		Raw:       raw,
		Namespace: parsed.Scheme,
		Category:  cat,
		Segments:  segments[1:],
		Query:     parsed.Query(),
	}, nil
}

// Path rejoins the segments after the category, e.g. "res.partner/fields".
func (u URI) Path() string { return strings.Join(u.Segments, "/") }
