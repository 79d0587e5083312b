// Package demo provides a canned memory corpus for seeding a store through
// the full storage path, used by CLI commands and examples.
package demo

import (
	"context"

	"github.com/corticalco/engram/pkg/memory"
)

const (
	// UserID and AgentID own every demo record.
	UserID  = "demo-user"
	AgentID = "demo-agent"
)

type seedRecord struct {
	content    string
	memType    memory.Type
	importance float64
	tags       []string
}

var corpus = []seedRecord{
	{
		content:    "User prefers concise answers without preamble.",
		memType:    memory.TypePreference,
		importance: 0.9,
		tags:       []string{"style", "communication"},
	},
	{
		content:    "User's primary language is Go; projects use zap for logging.",
		memType:    memory.TypePreference,
		importance: 0.85,
		tags:       []string{"language", "tooling"},
	},
	{
		content:    "Deploy workflow: run tests, tag release, push to staging, then promote to production after smoke tests.",
		memType:    memory.TypeWorkflow,
		importance: 0.8,
		tags:       []string{"deploy", "release"},
	},
	{
		content:    "When debugging flaky tests, user starts by checking for shared state between test cases.",
		memType:    memory.TypePattern,
		importance: 0.7,
		tags:       []string{"testing", "debugging"},
	},
	{
		content:    "The staging database is refreshed from production snapshots every Sunday night.",
		memType:    memory.TypeFact,
		importance: 0.65,
		tags:       []string{"infrastructure", "database"},
	},
	{
		content:    "API rate limits: 100 requests per minute per key, burst of 20.",
		memType:    memory.TypeFact,
		importance: 0.6,
		tags:       []string{"api", "limits"},
	},
	{
		content:    "Discussed migrating the search service from Elasticsearch to OpenSearch; decision deferred to Q4.",
		memType:    memory.TypeConversation,
		importance: 0.55,
		tags:       []string{"search", "migration"},
	},
	{
		content:    "User asked how to configure structured logging levels per package.",
		memType:    memory.TypeConversation,
		importance: 0.5,
		tags:       []string{"logging"},
	},
	{
		content:    "Session recap: reviewed retry semantics for the payment webhook and agreed on exponential backoff with jitter.",
		memType:    memory.TypeSummary,
		importance: 0.7,
		tags:       []string{"payments", "webhooks"},
	},
	{
		content:    "User works in the Europe/Berlin timezone and prefers meetings after 10:00.",
		memType:    memory.TypeFact,
		importance: 0.6,
		tags:       []string{"schedule"},
	},
	{
		content:    "Code review checklist: error wrapping, context propagation, test coverage for edge cases.",
		memType:    memory.TypePattern,
		importance: 0.75,
		tags:       []string{"review", "quality"},
	},
	{
		content:    "Asked about the difference between buffered and unbuffered channels for worker pools.",
		memType:    memory.TypeConversation,
		importance: 0.45,
		tags:       []string{"concurrency"},
	},
}

// Count returns the number of demo records.
func Count() int {
	return len(corpus)
}

// Seed stores the demo corpus through the driver's full store path and
// returns the number of records stored. The first error aborts the seed.
func Seed(ctx context.Context, driver memory.Driver) (int, error) {
	for i, rec := range corpus {
		importance := rec.importance
		_, err := driver.Store(ctx, &memory.StoreRequest{
			UserID:     UserID,
			AgentID:    AgentID,
			Content:    rec.content,
			Type:       rec.memType,
			Importance: &importance,
			Tags:       rec.tags,
		})
		if err != nil {
			return i, err
		}
	}
	return len(corpus), nil
}
