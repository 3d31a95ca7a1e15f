package agent

import (
	"time"

	"github.com/google/uuid"

	"github.com/relaykit/actionplane/pkg/contracts"
)

func testDemoEnvelope() contracts.Envelope {
	return contracts.Envelope{
		EnvelopeID: uuid.NewString(),
		TenantID:   "tenant-demo",
		ToolSlug:   "GMAIL__drafts.create",
		Arguments:  map[string]any{"to": "c@e.com"},
		ExternalID: uuid.NewString(),
		Risk:       contracts.RiskMedium,
		CreatedAt:  time.Now().UTC(),
	}
}
