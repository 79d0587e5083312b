package local_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/corticalco/engram/pkg/eventstream"
	"github.com/corticalco/engram/pkg/memory"
	"github.com/corticalco/engram/pkg/memory/local"
	testutils "github.com/corticalco/engram/pkg/utils/test"
)

// newTestDriver creates a local driver backed by a predictable embedder and
// a capturing publisher.
func newTestDriver() (*local.Driver, *testutils.MockEmbedder, *testutils.CapturePublisher) {
	embedder := testutils.NewMockEmbedder()
	publisher := testutils.NewCapturePublisher()

	driver, err := local.NewDriver(local.Config{
		Embedder:  embedder,
		Publisher: publisher,
	}, nil)
	Expect(err).NotTo(HaveOccurred())

	return driver, embedder, publisher
}

func storeReq(content string) *memory.StoreRequest {
	return &memory.StoreRequest{
		UserID:  "u1",
		AgentID: "a1",
		Content: content,
		Type:    memory.TypeFact,
	}
}

var _ = Describe("Driver", func() {
	var (
		driver    *local.Driver
		embedder  *testutils.MockEmbedder
		publisher *testutils.CapturePublisher
		ctx       context.Context
	)

	BeforeEach(func() {
		driver, embedder, publisher = newTestDriver()
		ctx = context.Background()
	})

	AfterEach(func() {
		driver.Close()
	})

	Describe("NewDriver", func() {
		It("requires an embedder", func() {
			_, err := local.NewDriver(local.Config{}, nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Store", func() {
		It("assigns id, version and timestamps", func() {
			record, err := driver.Store(ctx, storeReq("the sky is blue"))
			Expect(err).NotTo(HaveOccurred())

			Expect(record.ID).NotTo(BeEmpty())
			Expect(record.Version).To(Equal(1))
			Expect(record.AccessCount).To(BeZero())
			Expect(record.Timestamp).To(BeTemporally("~", time.Now(), time.Second))
			Expect(record.Embedding).To(Equal(embedder.Default))
		})

		It("derives a default importance from type", func() {
			record, err := driver.Store(ctx, &memory.StoreRequest{
				UserID:  "u1",
				AgentID: "a1",
				Content: "short",
				Type:    memory.TypePreference,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Importance).To(BeNumerically("~", 0.8, 1e-9))
		})

		It("honors an explicit importance", func() {
			imp := 0.42
			req := storeReq("x")
			req.Importance = &imp

			record, err := driver.Store(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Importance).To(Equal(0.42))
		})

		It("sets ExpiresAt from TTL", func() {
			req := storeReq("ephemeral")
			req.TTL = time.Hour

			record, err := driver.Store(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(record.ExpiresAt).NotTo(BeNil())
			Expect(*record.ExpiresAt).To(BeTemporally("~", time.Now().Add(time.Hour), time.Second))
		})

		It("returns a ValidationError naming the field for missing content", func() {
			req := storeReq("")

			_, err := driver.Store(ctx, req)
			var verr memory.ValidationError
			Expect(err).To(BeAssignableToTypeOf(verr))
			Expect(err.(memory.ValidationError).Field).To(Equal("content"))
		})

		It("rejects embeddings of the wrong dimension", func() {
			req := storeReq("x")
			req.Embedding = []float32{1, 2} // embedder dimension is 3

			_, err := driver.Store(ctx, req)
			var verr memory.ValidationError
			Expect(err).To(BeAssignableToTypeOf(verr))
		})

		It("rejects out-of-range importance", func() {
			imp := 1.5
			req := storeReq("x")
			req.Importance = &imp

			_, err := driver.Store(ctx, req)
			Expect(err).To(HaveOccurred())
		})

		It("wraps embedder failures in ErrProvider and stores nothing", func() {
			embedder.FailOn = "bad text"

			_, err := driver.Store(ctx, storeReq("bad text"))
			Expect(err).To(MatchError(memory.ErrProvider))

			result, err := driver.Search(ctx, &memory.Query{UserID: "u1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Total).To(BeZero())
		})

		It("emits a created event", func() {
			record, err := driver.Store(ctx, storeReq("observable"))
			Expect(err).NotTo(HaveOccurred())

			events := publisher.EventsOfType(eventstream.EventTypeMemoryCreated)
			Expect(events).To(HaveLen(1))
			Expect(events[0].RecordID).To(Equal(record.ID))
			Expect(events[0].UserID).To(Equal("u1"))
		})
	})

	Describe("Retrieve", func() {
		It("returns records and updates access bookkeeping", func() {
			record, err := driver.Store(ctx, storeReq("remember me"))
			Expect(err).NotTo(HaveOccurred())

			got, err := driver.Retrieve(ctx, []string{record.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))
			Expect(got[0].AccessCount).To(Equal(1))

			got, err = driver.Retrieve(ctx, []string{record.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(got[0].AccessCount).To(Equal(2))
		})

		It("skips missing ids silently", func() {
			got, err := driver.Retrieve(ctx, []string{"no-such-id"})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeEmpty())
		})

		It("skips expired records", func() {
			past := time.Now().Add(-time.Minute)
			req := storeReq("gone")
			req.ExpiresAt = &past

			record, err := driver.Store(ctx, req)
			Expect(err).NotTo(HaveOccurred())

			got, err := driver.Retrieve(ctx, []string{record.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeEmpty())
		})

		It("returns clones detached from the store", func() {
			record, err := driver.Store(ctx, storeReq("immutable"))
			Expect(err).NotTo(HaveOccurred())

			got, err := driver.Retrieve(ctx, []string{record.ID})
			Expect(err).NotTo(HaveOccurred())
			got[0].Content = "mutated"

			again, err := driver.Retrieve(ctx, []string{record.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(again[0].Content).To(Equal("immutable"))
		})
	})

	Describe("Update", func() {
		It("applies partial updates and bumps the version", func() {
			record, err := driver.Store(ctx, storeReq("v1"))
			Expect(err).NotTo(HaveOccurred())

			imp := 0.9
			updated, err := driver.Update(ctx, &memory.UpdateRequest{
				ID:         record.ID,
				Importance: &imp,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Version).To(Equal(2))
			Expect(updated.Importance).To(Equal(0.9))
			Expect(updated.Content).To(Equal("v1"))
		})

		It("recomputes the embedding when content changes", func() {
			embedder.Embeddings["new content"] = []float32{0, 1, 0}

			record, err := driver.Store(ctx, storeReq("old content"))
			Expect(err).NotTo(HaveOccurred())

			content := "new content"
			updated, err := driver.Update(ctx, &memory.UpdateRequest{
				ID:      record.ID,
				Content: &content,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Embedding).To(Equal([]float32{0, 1, 0}))
		})

		It("reindexes on type change", func() {
			record, err := driver.Store(ctx, storeReq("typed"))
			Expect(err).NotTo(HaveOccurred())

			newType := memory.TypeWorkflow
			_, err = driver.Update(ctx, &memory.UpdateRequest{ID: record.ID, Type: &newType})
			Expect(err).NotTo(HaveOccurred())

			result, err := driver.Search(ctx, &memory.Query{Types: []memory.Type{memory.TypeWorkflow}})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Total).To(Equal(1))

			result, err = driver.Search(ctx, &memory.Query{Types: []memory.Type{memory.TypeFact}})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Total).To(BeZero())
		})

		It("returns NotFoundError for unknown ids", func() {
			_, err := driver.Update(ctx, &memory.UpdateRequest{ID: "ghost"})
			var nfe memory.NotFoundError
			Expect(err).To(BeAssignableToTypeOf(nfe))
		})
	})

	Describe("Delete", func() {
		It("reports whether a record existed", func() {
			record, err := driver.Store(ctx, storeReq("doomed"))
			Expect(err).NotTo(HaveOccurred())

			existed, err := driver.Delete(ctx, record.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(existed).To(BeTrue())

			existed, err = driver.Delete(ctx, record.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(existed).To(BeFalse())
		})

		It("removes the record from all indices", func() {
			req := storeReq("indexed")
			req.Tags = []string{"t1"}

			record, err := driver.Store(ctx, req)
			Expect(err).NotTo(HaveOccurred())

			_, err = driver.Delete(ctx, record.ID)
			Expect(err).NotTo(HaveOccurred())

			result, err := driver.Search(ctx, &memory.Query{UserID: "u1", Tags: []string{"t1"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Total).To(BeZero())
		})
	})
})
