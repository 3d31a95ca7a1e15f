package catalog

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/relaykit/actionplane/pkg/contracts"
)

// seedFile is the on-disk shape of a catalog seed: one file per tenant,
// listing every tool that tenant's agent may enqueue.
type seedFile struct {
	TenantID string        `yaml:"tenant_id"`
	Tools    []seedToolDef `yaml:"tools"`
}

type seedToolDef struct {
	Slug           string   `yaml:"slug"`
	DisplayName    string   `yaml:"display_name"`
	Description    string   `yaml:"description"`
	Version        string   `yaml:"version"`
	Risk           string   `yaml:"risk"`
	Schema         string   `yaml:"schema"`
	RequiredScopes []string `yaml:"required_scopes"`
}

// LoadSeedFile reads a YAML catalog seed and syncs every tool it lists into
// store for the tenant named in the file. A seed entry whose version is
// older than what is already stored is skipped by SyncEntries, the same as
// any other sync call.
func LoadSeedFile(ctx context.Context, store Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("catalog: read seed file %s: %w", path, err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("catalog: parse seed file %s: %w", path, err)
	}
	if seed.TenantID == "" {
		return fmt.Errorf("catalog: seed file %s is missing tenant_id", path)
	}

	entries := make([]contracts.CatalogEntry, 0, len(seed.Tools))
	for _, tool := range seed.Tools {
		if tool.Slug == "" {
			return fmt.Errorf("catalog: seed file %s has a tool with no slug", path)
		}
		risk := contracts.Risk(tool.Risk)
		if risk == "" {
			risk = contracts.RiskLow
		}
		entries = append(entries, contracts.CatalogEntry{
			Slug:           tool.Slug,
			DisplayName:    tool.DisplayName,
			Description:    tool.Description,
			Version:        tool.Version,
			Risk:           risk,
			Schema:         tool.Schema,
			RequiredScopes: tool.RequiredScopes,
		})
	}

	return store.SyncEntries(ctx, seed.TenantID, entries)
}
