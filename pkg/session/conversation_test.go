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

var _ = Describe("Conversation", func() {
	var (
		manager   *session.Manager
		driver    *local.Driver
		publisher *testutils.CapturePublisher
		state     *session.State
		ctx       context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		manager, driver, _, publisher = newTestManager(session.Config{ShortTermCap: 3})

		var err error
		state, err = manager.GetContext(ctx, "s1", "u1", "a1")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		driver.Close()
	})

	Describe("AddConversationTurn", func() {
		It("records the turn in history, window and short-term memory", func() {
			turn, err := manager.AddConversationTurn(ctx, "s1", "user", "what is the capital of France?")
			Expect(err).NotTo(HaveOccurred())

			Expect(turn.ID).NotTo(BeEmpty())
			Expect(turn.Role).To(Equal("user"))

			Expect(state.History).To(HaveLen(1))
			Expect(state.Window.Size()).To(Equal(1))
			Expect(state.ShortTerm).To(HaveLen(1))
			Expect(state.ShortTerm[0].Importance).To(Equal(0.6))
			Expect(state.ShortTerm[0].Tags).To(ContainElement("session:s1"))

			events := publisher.EventsOfType(eventstream.EventTypeConversationTurn)
			Expect(events).To(HaveLen(1))
			Expect(events[0].Detail).To(HaveKeyWithValue("role", "user"))
		})

		It("fails for an unknown session", func() {
			_, err := manager.AddConversationTurn(ctx, "missing", "user", "hello")
			Expect(err).To(MatchError(session.NotFoundError{SessionID: "missing"}))
		})

		It("trims short-term memory at the cap, oldest first", func() {
			for i := 0; i < 4; i++ {
				_, err := manager.AddConversationTurn(ctx, "s1", "user", fmt.Sprintf("turn %d", i))
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(state.ShortTerm).To(HaveLen(3))
			Expect(state.ShortTerm[0].Content).To(Equal("turn 1"))
		})

		It("promotes important items to the long-term store on overflow", func() {
			state.ShortTerm = append(state.ShortTerm, session.ShortTermItem{
				ID:         "manual",
				Content:    "the user prefers metric units",
				Importance: 0.9,
				Timestamp:  time.Now(),
			})

			for i := 0; i < 3; i++ {
				_, err := manager.AddConversationTurn(ctx, "s1", "user", fmt.Sprintf("turn %d", i))
				Expect(err).NotTo(HaveOccurred())
			}

			result, err := driver.Search(ctx, &memory.Query{
				UserID: "u1",
				Tags:   []string{"promoted-from-short-term"},
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Records).To(HaveLen(1))
			Expect(result.Records[0].Record.Content).To(Equal("the user prefers metric units"))
			Expect(result.Records[0].Record.Type).To(Equal(memory.TypeConversation))
			Expect(result.Records[0].Record.Importance).To(Equal(0.9))
		})
	})

	Describe("Working memory", func() {
		It("round-trips a value", func() {
			err := manager.SetWorkingMemory(ctx, "s1", "draft", memory.StringValue("v1"), session.WorkingScratch, 0.5, 0)
			Expect(err).NotTo(HaveOccurred())

			value, ok, err := manager.GetWorkingMemory("s1", "draft")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(value.Str).To(Equal("v1"))

			Expect(publisher.EventsOfType(eventstream.EventTypeWorkingSet)).To(HaveLen(1))
		})

		It("reports missing keys as absent", func() {
			_, ok, err := manager.GetWorkingMemory("s1", "nothing")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("expires values lazily after the TTL", func() {
			err := manager.SetWorkingMemory(ctx, "s1", "ephemeral", memory.NumberValue(42), session.WorkingScratch, 0.5, 10*time.Millisecond)
			Expect(err).NotTo(HaveOccurred())

			time.Sleep(30 * time.Millisecond)

			_, ok, err := manager.GetWorkingMemory("s1", "ephemeral")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("mirrors variables into session variables", func() {
			err := manager.SetWorkingMemory(ctx, "s1", "project", memory.StringValue("engram"), session.WorkingVariable, 0.5, 0)
			Expect(err).NotTo(HaveOccurred())

			Expect(state.Variables).To(HaveKey("project"))
		})

		It("clears everything", func() {
			Expect(manager.SetWorkingMemory(ctx, "s1", "a", memory.StringValue("1"), session.WorkingVariable, 0.5, 0)).To(Succeed())
			Expect(manager.SetWorkingMemory(ctx, "s1", "b", memory.StringValue("2"), session.WorkingScratch, 0.5, 0)).To(Succeed())

			Expect(manager.ClearWorkingMemory(ctx, "s1")).To(Succeed())

			_, ok, err := manager.GetWorkingMemory("s1", "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(state.Variables).NotTo(HaveKey("a"))
			Expect(publisher.EventsOfType(eventstream.EventTypeWorkingCleared)).To(HaveLen(1))
		})
	})

	Describe("Tasks", func() {
		It("starts a task running", func() {
			task, err := manager.SetActiveTask(ctx, "s1", "summarize notes")
			Expect(err).NotTo(HaveOccurred())

			Expect(task.ID).NotTo(BeEmpty())
			Expect(task.State).To(Equal(session.TaskRunning))
			Expect(task.Progress).To(BeZero())
			Expect(publisher.EventsOfType(eventstream.EventTypeTaskStarted)).To(HaveLen(1))
		})

		It("clamps progress and completes at 100", func() {
			task, err := manager.SetActiveTask(ctx, "s1", "summarize notes")
			Expect(err).NotTo(HaveOccurred())

			Expect(manager.UpdateTaskProgress(ctx, "s1", -5)).To(Succeed())
			Expect(task.Progress).To(BeZero())
			Expect(task.State).To(Equal(session.TaskRunning))

			Expect(manager.UpdateTaskProgress(ctx, "s1", 150)).To(Succeed())
			Expect(task.Progress).To(Equal(100.0))
			Expect(task.State).To(Equal(session.TaskCompleted))
		})

		It("ignores progress without an active task", func() {
			Expect(manager.UpdateTaskProgress(ctx, "s1", 50)).To(Succeed())
		})
	})
})
