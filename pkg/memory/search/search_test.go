package search_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/corticalco/engram/pkg/eventstream"
	"github.com/corticalco/engram/pkg/memory"
	"github.com/corticalco/engram/pkg/memory/local"
	"github.com/corticalco/engram/pkg/memory/search"
	testutils "github.com/corticalco/engram/pkg/utils/test"
)

// newTestSearcher wires a searcher over a fresh local driver. The capturing
// publisher only sees the searcher's events; the driver publishes nowhere.
func newTestSearcher(c search.Config) (*search.Searcher, *local.Driver, *testutils.MockEmbedder, *testutils.CapturePublisher) {
	embedder := testutils.NewMockEmbedder()
	publisher := testutils.NewCapturePublisher()

	driver, err := local.NewDriver(local.Config{Embedder: embedder}, nil)
	Expect(err).NotTo(HaveOccurred())

	c.Publisher = publisher
	return search.NewSearcher(driver, c, nil), driver, embedder, publisher
}

func ptrFloat(v float64) *float64 { return &v }
func ptrBool(v bool) *bool        { return &v }

// storeScored registers a fixed embedding for the content and stores it.
func storeScored(ctx context.Context, driver *local.Driver, embedder *testutils.MockEmbedder, content string, importance float64, vec []float32) *memory.Record {
	embedder.Embeddings[content] = vec

	record, err := driver.Store(ctx, &memory.StoreRequest{
		UserID:     "u1",
		AgentID:    "a1",
		Content:    content,
		Type:       memory.TypeFact,
		Importance: &importance,
	})
	Expect(err).NotTo(HaveOccurred())
	return record
}

var _ = Describe("Searcher", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("Search", func() {
		var (
			searcher  *search.Searcher
			driver    *local.Driver
			embedder  *testutils.MockEmbedder
			publisher *testutils.CapturePublisher
		)

		BeforeEach(func() {
			searcher, driver, embedder, publisher = newTestSearcher(search.Config{Threshold: 0.01})

			embedder.Embeddings["colors"] = []float32{1, 0, 0}
			storeScored(ctx, driver, embedder, "red", 0.5, []float32{1, 0, 0})
			storeScored(ctx, driver, embedder, "orange", 0.5, []float32{0.9, 0.1, 0})
			storeScored(ctx, driver, embedder, "music", 0.5, []float32{0, 0, 1})
		})

		AfterEach(func() {
			driver.Close()
		})

		It("blends similarity and importance into the relevance score", func() {
			result, err := searcher.Search(ctx, &memory.Query{Text: "colors", UserID: "u1"}, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Records).To(HaveLen(3))
			Expect(result.Records[0].Record.Content).To(Equal("red"))
			Expect(result.Records[1].Record.Content).To(Equal("orange"))
			Expect(result.Records[2].Record.Content).To(Equal("music"))

			// red: 1.0*0.6 + 0.5*0.3
			Expect(result.Records[0].Relevance).To(BeNumerically("~", 0.75, 0.001))
			// music: 0.0*0.6 + 0.5*0.3
			Expect(result.Records[2].Relevance).To(BeNumerically("~", 0.15, 0.001))
		})

		It("drops results below the threshold", func() {
			result, err := searcher.Search(ctx, &memory.Query{Text: "colors", UserID: "u1"},
				&search.Options{Threshold: ptrFloat(0.5)})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Records).To(HaveLen(2))
			for _, sr := range result.Records {
				Expect(sr.Relevance).To(BeNumerically(">=", 0.5))
			}
		})

		It("truncates to the result cap", func() {
			result, err := searcher.Search(ctx, &memory.Query{Text: "colors", UserID: "u1"},
				&search.Options{MaxResults: 1})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Records).To(HaveLen(1))
			Expect(result.Records[0].Record.Content).To(Equal("red"))
		})

		It("honors per-call weight overrides", func() {
			storeScored(ctx, driver, embedder, "opera", 0.9, []float32{0, 1, 0})

			result, err := searcher.Search(ctx, &memory.Query{Text: "colors", UserID: "u1"}, &search.Options{
				SimilarityWeight: ptrFloat(0),
				ImportanceWeight: ptrFloat(1),
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Records[0].Record.Content).To(Equal("opera"))
			Expect(result.Records[0].Relevance).To(BeNumerically("~", 0.9, 0.001))
		})

		It("boosts fresh records when recency is enabled", func() {
			boosted, driver2, embedder2, _ := newTestSearcher(search.Config{
				SimilarityWeight: 0.5,
				ImportanceWeight: 0.001,
				RecencyWeight:    0.5,
				BoostRecent:      true,
				Threshold:        0.1,
			})
			defer driver2.Close()

			embedder2.Embeddings["colors"] = []float32{1, 0, 0}
			embedder2.Embeddings["shapes"] = []float32{1, 0, 0}
			storeScored(ctx, driver2, embedder2, "music", 0.5, []float32{0, 0, 1})

			// Zero similarity, but a brand-new record earns a recency boost
			// near 1, keeping it above the threshold.
			result, err := boosted.Search(ctx, &memory.Query{Text: "colors", UserID: "u1"}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Records).To(HaveLen(1))
			Expect(result.Records[0].Relevance).To(BeNumerically("~", 0.5, 0.01))

			// With the boost switched off the same record falls through.
			result, err = boosted.Search(ctx, &memory.Query{Text: "shapes", UserID: "u1"},
				&search.Options{BoostRecent: ptrBool(false)})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Records).To(BeEmpty())
		})

		It("serves repeated queries from cache", func() {
			first, err := searcher.Search(ctx, &memory.Query{Text: "colors", UserID: "u1"}, nil)
			Expect(err).NotTo(HaveOccurred())

			second, err := searcher.Search(ctx, &memory.Query{Text: "colors", UserID: "u1"}, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(second.Records).To(Equal(first.Records))
			Expect(second.Total).To(Equal(first.Total))
			Expect(publisher.EventsOfType(eventstream.EventTypeSearchCacheHit)).To(HaveLen(1))
			Expect(publisher.EventsOfType(eventstream.EventTypeSearchComplete)).To(HaveLen(1))
		})

		It("is unaffected by callers mutating their result", func() {
			first, err := searcher.Search(ctx, &memory.Query{Text: "colors", UserID: "u1"}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Records).To(HaveLen(3))

			first.Records = first.Records[:0]

			second, err := searcher.Search(ctx, &memory.Query{Text: "colors", UserID: "u1"}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Records).To(HaveLen(3))
		})

		It("keys the cache on query text rather than the supplied embedding", func() {
			first, err := searcher.Search(ctx, &memory.Query{Text: "colors", UserID: "u1"}, nil)
			Expect(err).NotTo(HaveOccurred())

			second, err := searcher.Search(ctx, &memory.Query{
				Text:      "colors",
				UserID:    "u1",
				Embedding: []float32{0, 0, 1},
			}, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(second.Records).To(Equal(first.Records))
			Expect(publisher.EventsOfType(eventstream.EventTypeSearchCacheHit)).To(HaveLen(1))
		})

		It("expires cached results after the TTL", func() {
			quick, driver2, embedder2, publisher2 := newTestSearcher(search.Config{
				Threshold: 0.01,
				CacheTTL:  20 * time.Millisecond,
			})
			defer driver2.Close()

			embedder2.Embeddings["colors"] = []float32{1, 0, 0}
			storeScored(ctx, driver2, embedder2, "red", 0.5, []float32{1, 0, 0})

			_, err := quick.Search(ctx, &memory.Query{Text: "colors", UserID: "u1"}, nil)
			Expect(err).NotTo(HaveOccurred())

			time.Sleep(50 * time.Millisecond)

			_, err = quick.Search(ctx, &memory.Query{Text: "colors", UserID: "u1"}, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(publisher2.EventsOfType(eventstream.EventTypeSearchCacheHit)).To(BeEmpty())
			Expect(publisher2.EventsOfType(eventstream.EventTypeSearchComplete)).To(HaveLen(2))
		})

		It("evicts the oldest cache entry when full", func() {
			small, driver2, embedder2, publisher2 := newTestSearcher(search.Config{
				Threshold: 0.01,
				CacheSize: 1,
			})
			defer driver2.Close()

			embedder2.Embeddings["colors"] = []float32{1, 0, 0}
			storeScored(ctx, driver2, embedder2, "red", 0.5, []float32{1, 0, 0})

			for _, text := range []string{"colors", "sounds", "colors"} {
				_, err := small.Search(ctx, &memory.Query{Text: text, UserID: "u1"}, nil)
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(publisher2.EventsOfType(eventstream.EventTypeSearchCacheHit)).To(BeEmpty())
			Expect(publisher2.EventsOfType(eventstream.EventTypeSearchComplete)).To(HaveLen(3))
		})

		It("propagates store failures", func() {
			embedder.FailOn = "broken"

			_, err := searcher.Search(ctx, &memory.Query{Text: "broken", UserID: "u1"}, nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("FindSimilar", func() {
		var (
			searcher *search.Searcher
			driver   *local.Driver
			embedder *testutils.MockEmbedder
			red      *memory.Record
		)

		BeforeEach(func() {
			searcher, driver, embedder, _ = newTestSearcher(search.Config{Threshold: 0.01})

			red = storeScored(ctx, driver, embedder, "red", 0.5, []float32{1, 0, 0})
			storeScored(ctx, driver, embedder, "orange", 0.5, []float32{0.9, 0.1, 0})
			storeScored(ctx, driver, embedder, "music", 0.5, []float32{0, 0, 1})
		})

		AfterEach(func() {
			driver.Close()
		})

		It("returns a not-found error for an unknown record", func() {
			_, err := searcher.FindSimilar(ctx, "missing", 10, 0)
			Expect(err).To(MatchError(memory.NotFoundError{ID: "missing"}))
		})

		It("excludes the source and filters by similarity", func() {
			similar, err := searcher.FindSimilar(ctx, red.ID, 10, 0.5)
			Expect(err).NotTo(HaveOccurred())

			Expect(similar).To(HaveLen(1))
			Expect(similar[0].Record.Content).To(Equal("orange"))
		})

		It("scopes results to the source record's owner", func() {
			embedder.Embeddings["crimson"] = []float32{0.95, 0.05, 0}
			_, err := driver.Store(ctx, &memory.StoreRequest{
				UserID:  "u2",
				AgentID: "a1",
				Content: "crimson",
				Type:    memory.TypeFact,
			})
			Expect(err).NotTo(HaveOccurred())

			similar, err := searcher.FindSimilar(ctx, red.ID, 10, 0.5)
			Expect(err).NotTo(HaveOccurred())

			for _, sr := range similar {
				Expect(sr.Record.UserID).To(Equal("u1"))
			}
		})

		It("applies the limit", func() {
			storeScored(ctx, driver, embedder, "scarlet", 0.5, []float32{0.95, 0.05, 0})

			similar, err := searcher.FindSimilar(ctx, red.ID, 1, 0.5)
			Expect(err).NotTo(HaveOccurred())
			Expect(similar).To(HaveLen(1))
		})
	})
})
