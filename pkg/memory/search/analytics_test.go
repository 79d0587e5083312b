package search_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/corticalco/engram/pkg/memory"
	"github.com/corticalco/engram/pkg/memory/local"
	"github.com/corticalco/engram/pkg/memory/search"
)

var _ = Describe("Search history", func() {
	var (
		searcher *search.Searcher
		driver   *local.Driver
		ctx      context.Context
	)

	runSearch := func(text, userID string, types ...memory.Type) {
		_, err := searcher.Search(ctx, &memory.Query{
			Text:    text,
			UserID:  userID,
			AgentID: "a1",
			Types:   types,
		}, nil)
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		ctx = context.Background()
		// A one-nanosecond TTL disables caching so every search reaches the
		// store and lands in the history log.
		searcher, driver, _, _ = newTestSearcher(search.Config{
			Threshold: 0.01,
			CacheTTL:  time.Nanosecond,
		})
		storeImportance(ctx, driver, "alpha release notes", 0.5)
	})

	AfterEach(func() {
		driver.Close()
	})

	Describe("GetSuggestions", func() {
		BeforeEach(func() {
			runSearch("alpha one", "u1")
			runSearch("beta two", "u1")
			runSearch("alpha three", "u1")
			runSearch("alpha other", "u2")
		})

		It("matches case-insensitively, most recent first", func() {
			suggestions := searcher.GetSuggestions("ALPHA", "u1", "a1", 10)
			Expect(suggestions).To(Equal([]string{"alpha three", "alpha one"}))
		})

		It("deduplicates repeated queries", func() {
			runSearch("alpha one", "u1")

			suggestions := searcher.GetSuggestions("alpha one", "u1", "a1", 10)
			Expect(suggestions).To(Equal([]string{"alpha one"}))
		})

		It("scopes to the requesting owner", func() {
			suggestions := searcher.GetSuggestions("alpha", "u2", "a1", 10)
			Expect(suggestions).To(Equal([]string{"alpha other"}))
		})

		It("applies the limit", func() {
			suggestions := searcher.GetSuggestions("alpha", "u1", "a1", 1)
			Expect(suggestions).To(HaveLen(1))
		})

		It("returns nothing without matching history", func() {
			Expect(searcher.GetSuggestions("gamma", "u1", "a1", 10)).To(BeEmpty())
		})
	})

	Describe("GetAnalytics", func() {
		BeforeEach(func() {
			runSearch("alpha", "u1")
			runSearch("alpha", "u1")
			runSearch("beta", "u1", memory.TypeFact)
			runSearch("other", "u2")
		})

		It("aggregates scoped history", func() {
			analytics := searcher.GetAnalytics("u1", "a1")

			Expect(analytics.TotalSearches).To(Equal(3))
			Expect(analytics.TopQueries[0]).To(Equal(search.QueryCount{Query: "alpha", Count: 2}))
			Expect(analytics.TopQueries[1]).To(Equal(search.QueryCount{Query: "beta", Count: 1}))
			Expect(analytics.SearchesByType).To(HaveKeyWithValue(memory.TypeFact, 1))
			Expect(analytics.AvgResultCount).To(BeNumerically(">", 0))
		})

		It("counts everything when unscoped", func() {
			analytics := searcher.GetAnalytics("", "")
			Expect(analytics.TotalSearches).To(Equal(4))
		})

		It("is empty without history for the owner", func() {
			analytics := searcher.GetAnalytics("u3", "a1")

			Expect(analytics.TotalSearches).To(BeZero())
			Expect(analytics.TopQueries).To(BeEmpty())
			Expect(analytics.AvgLatency).To(BeZero())
		})
	})
})
