package session_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/corticalco/engram/pkg/eventstream"
	"github.com/corticalco/engram/pkg/memory"
	"github.com/corticalco/engram/pkg/memory/local"
	"github.com/corticalco/engram/pkg/session"
	testutils "github.com/corticalco/engram/pkg/utils/test"
)

var _ = Describe("Context assembly", func() {
	var (
		manager   *session.Manager
		driver    *local.Driver
		publisher *testutils.CapturePublisher
		ctx       context.Context
	)

	storeLongTerm := func(content string, importance float64) {
		_, err := driver.Store(ctx, &memory.StoreRequest{
			UserID:     "u1",
			AgentID:    "a1",
			Content:    content,
			Type:       memory.TypeFact,
			Importance: &importance,
		})
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		ctx = context.Background()
		manager, driver, _, publisher = newTestManager(session.Config{ContextWindowSize: 2})

		_, err := manager.GetContext(ctx, "s1", "u1", "a1")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		driver.Close()
	})

	Describe("GetLongTermContext", func() {
		It("recalls owner-scoped memories above the importance floor", func() {
			storeLongTerm("the deploy target is us-east-1", 0.8)
			storeLongTerm("barely notable detail", 0.2)

			records, err := manager.GetLongTermContext(ctx, "s1", "deploy target", 5)
			Expect(err).NotTo(HaveOccurred())

			Expect(records).To(HaveLen(1))
			Expect(records[0].Record.Content).To(Equal("the deploy target is us-east-1"))
		})

		It("falls back to recent turns when the query is empty", func() {
			storeLongTerm("the deploy target is us-east-1", 0.8)

			_, err := manager.AddConversationTurn(ctx, "s1", "user", "where do we deploy?")
			Expect(err).NotTo(HaveOccurred())

			records, err := manager.GetLongTermContext(ctx, "s1", "", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).NotTo(BeEmpty())
		})

		It("returns nothing for an empty session without a query", func() {
			records, err := manager.GetLongTermContext(ctx, "s1", "", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(BeNil())
		})

		It("fails for an unknown session", func() {
			_, err := manager.GetLongTermContext(ctx, "missing", "anything", 5)
			Expect(err).To(MatchError(session.NotFoundError{SessionID: "missing"}))
		})
	})

	Describe("BuildLLMContext", func() {
		It("assembles conversation, memories, variables and task", func() {
			storeLongTerm("the deploy target is us-east-1", 0.8)

			for i := 0; i < 3; i++ {
				_, err := manager.AddConversationTurn(ctx, "s1", "user", fmt.Sprintf("turn %d", i))
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(manager.SetWorkingMemory(ctx, "s1", "region", memory.StringValue("us-east-1"), session.WorkingVariable, 0.5, 0)).To(Succeed())
			Expect(manager.SetWorkingMemory(ctx, "s1", "scratchpad", memory.StringValue("tmp"), session.WorkingScratch, 0.5, 0)).To(Succeed())
			_, err := manager.SetActiveTask(ctx, "s1", "plan deploy")
			Expect(err).NotTo(HaveOccurred())

			bundle, err := manager.BuildLLMContext(ctx, "s1", "deploy")
			Expect(err).NotTo(HaveOccurred())

			// Only the last two turns fit the configured context window.
			Expect(bundle.Conversation).To(Equal([]string{"user: turn 1", "user: turn 2"}))
			Expect(bundle.ShortTermMemories).To(HaveLen(3))
			Expect(bundle.LongTermMemories).NotTo(BeEmpty())
			Expect(bundle.Variables).To(HaveKey("region"))
			Expect(bundle.Variables).NotTo(HaveKey("scratchpad"))
			Expect(bundle.ActiveTask).NotTo(BeNil())
			Expect(bundle.Metadata).To(HaveKeyWithValue("turn_count", "3"))
		})

		It("drops expired working variables", func() {
			Expect(manager.SetWorkingMemory(ctx, "s1", "flash", memory.StringValue("gone"), session.WorkingVariable, 0.5, 10*time.Millisecond)).To(Succeed())

			time.Sleep(30 * time.Millisecond)

			bundle, err := manager.BuildLLMContext(ctx, "s1", "anything")
			Expect(err).NotTo(HaveOccurred())
			Expect(bundle.Variables).NotTo(HaveKey("flash"))
		})
	})

	Describe("SummarizeContext", func() {
		It("stores a summary of recent turns", func() {
			for i := 0; i < 3; i++ {
				_, err := manager.AddConversationTurn(ctx, "s1", "user", fmt.Sprintf("turn %d", i))
				Expect(err).NotTo(HaveOccurred())
			}

			record, err := manager.SummarizeContext(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())

			Expect(record.Type).To(Equal(memory.TypeSummary))
			Expect(record.Importance).To(Equal(0.7))
			Expect(record.Content).To(HavePrefix("Conversation summary: "))
			Expect(record.Content).To(ContainSubstring("user: turn 2"))
			Expect(record.Tags).To(ContainElement("session:s1"))
			Expect(record.Metadata["turn_count"].Num).To(Equal(3.0))

			events := publisher.EventsOfType(eventstream.EventTypeContextSummarized)
			Expect(events).To(HaveLen(1))
			Expect(events[0].RecordID).To(Equal(record.ID))
		})

		It("is a no-op without history", func() {
			record, err := manager.SummarizeContext(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(record).To(BeNil())
		})
	})

	Describe("PersistContext", func() {
		It("promotes short-term items at the threshold and saves a snapshot", func() {
			persister := newMemPersister()
			persisting, driver2, _, publisher2 := newTestManager(session.Config{Persister: persister})
			defer driver2.Close()

			_, err := persisting.GetContext(ctx, "s2", "u1", "a1")
			Expect(err).NotTo(HaveOccurred())
			_, err = persisting.AddConversationTurn(ctx, "s2", "user", "remember this")
			Expect(err).NotTo(HaveOccurred())

			Expect(persisting.PersistContext(ctx, "s2")).To(Succeed())

			// Turn items carry importance 0.6, exactly the default threshold.
			result, err := driver2.Search(ctx, &memory.Query{
				UserID: "u1",
				Tags:   []string{"promoted-from-short-term"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Records).To(HaveLen(1))

			snap, ok := persister.saved("s2")
			Expect(ok).To(BeTrue())
			Expect(snap.History).To(HaveLen(1))

			persisted := publisher2.EventsOfType(eventstream.EventTypeContextPersisted)
			Expect(persisted).To(HaveLen(1))
			Expect(persisted[0].Detail).To(HaveKeyWithValue("promoted", "1"))
		})

		It("summarizes long conversations during persistence", func() {
			for i := 0; i < 6; i++ {
				_, err := manager.AddConversationTurn(ctx, "s1", "user", fmt.Sprintf("turn %d", i))
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(manager.PersistContext(ctx, "s1")).To(Succeed())

			result, err := driver.Search(ctx, &memory.Query{
				UserID: "u1",
				Types:  []memory.Type{memory.TypeSummary},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Records).To(HaveLen(1))
			Expect(result.Records[0].Record.Content).To(HavePrefix("Conversation summary: "))
		})

		It("fails for an unknown session", func() {
			err := manager.PersistContext(ctx, "missing")
			Expect(err).To(MatchError(session.NotFoundError{SessionID: "missing"}))
		})
	})
})
