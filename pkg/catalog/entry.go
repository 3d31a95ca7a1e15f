// Package catalog implements the tool catalog and policy resolver:
// per-tenant tool metadata, JSON-Schema argument validation, and the
// resolved write/rate-bucket policy for a (tenant, slug) pair.
package catalog

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/relaykit/actionplane/pkg/contracts"
)

// Entry wraps a contracts.CatalogEntry with its compiled JSON Schema.
type Entry struct {
	contracts.CatalogEntry
	compiled *jsonschema.Schema
}

// Compile parses the raw entry's schema string into an Entry ready for
// argument validation. An empty schema is accepted (no constraints).
func Compile(raw contracts.CatalogEntry) (*Entry, error) {
	e := &Entry{CatalogEntry: raw}
	if strings.TrimSpace(raw.Schema) == "" {
		return e, nil
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://actionplane.local/catalog/%s.schema.json", raw.Slug)
	if err := compiler.AddResource(url, strings.NewReader(raw.Schema)); err != nil {
		return nil, fmt.Errorf("catalog: schema load failed for %s: %w", raw.Slug, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("catalog: schema compile failed for %s: %w", raw.Slug, err)
	}
	e.compiled = compiled
	return e, nil
}

// ValidateArguments validates arguments against the entry's JSON Schema.
// An entry with no configured schema always validates.
func (e *Entry) ValidateArguments(arguments map[string]any) error {
	if e.compiled == nil {
		return nil
	}
	if err := e.compiled.Validate(arguments); err != nil {
		return fmt.Errorf("catalog: argument validation failed for %s: %w", e.Slug, err)
	}
	return nil
}

// PromptSnippet renders a short, human-readable line describing the tool for
// inclusion in the before-model system-prompt composition: name, one-line
// description, and required scopes.
func (e *Entry) PromptSnippet() string {
	scopes := "none"
	if len(e.RequiredScopes) > 0 {
		scopes = strings.Join(e.RequiredScopes, ", ")
	}
	return fmt.Sprintf("%s — %s (scopes: %s)", e.Slug, e.Description, scopes)
}
