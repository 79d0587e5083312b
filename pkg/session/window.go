package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// WindowStrategy selects how the context window makes room when full.
type WindowStrategy string

const (
	// StrategySliding evicts the oldest item until both caps hold.
	StrategySliding WindowStrategy = "sliding"

	// StrategyPriority evicts the lowest-priority item, ties broken by
	// insertion order.
	StrategyPriority WindowStrategy = "priority"

	// StrategySummarize collapses the three oldest items into one synthetic
	// summary appended at the end; with fewer than five items it falls back
	// to sliding.
	StrategySummarize WindowStrategy = "summarize"
)

// Valid reports whether s names a known window strategy.
func (s WindowStrategy) Valid() bool {
	switch s {
	case StrategySliding, StrategyPriority, StrategySummarize:
		return true
	}
	return false
}

const (
	// summarizeMinItems is the window population below which the summarize
	// strategy falls back to sliding.
	summarizeMinItems = 5

	// summarizeTakeOldest is how many oldest items one summarize pass
	// collapses.
	summarizeTakeOldest = 3

	// summarizeSnippetLen is how much of each collapsed item survives into
	// the summary text.
	summarizeSnippetLen = 50

	summaryPriority = 0.8
)

// WindowItem is one ordered entry with its token cost.
type WindowItem struct {
	ID       string    `json:"id"`
	Content  string    `json:"content"`
	Priority float64   `json:"priority"`
	Tokens   int       `json:"tokens"`
	AddedAt  time.Time `json:"added_at"`
}

// EstimateTokens approximates the token cost of content as ceil(len/4).
func EstimateTokens(content string) int {
	return (len(content) + 3) / 4
}

// Window is the bounded, ordered set of recent items available for prompt
// assembly, capped both by item count and by estimated token budget.
type Window struct {
	items     []WindowItem
	maxSize   int
	maxTokens int
	tokens    int
	strategy  WindowStrategy
}

// NewWindow creates an empty window. Non-positive caps and unknown
// strategies fall back to defaults.
func NewWindow(maxSize, maxTokens int, strategy WindowStrategy) *Window {
	if maxSize <= 0 {
		maxSize = DefaultWindowMaxSize
	}
	if maxTokens <= 0 {
		maxTokens = DefaultWindowMaxTokens
	}
	if !strategy.Valid() {
		strategy = StrategySliding
	}
	return &Window{
		maxSize:   maxSize,
		maxTokens: maxTokens,
		strategy:  strategy,
	}
}

// Add appends an item, evicting per the strategy until both the size cap and
// the token budget hold.
func (w *Window) Add(content string, priority float64) {
	item := WindowItem{
		ID:       uuid.NewString(),
		Content:  content,
		Priority: priority,
		Tokens:   EstimateTokens(content),
		AddedAt:  time.Now(),
	}

	w.items = append(w.items, item)
	w.tokens += item.Tokens

	// A lone item over the token budget stays; evicting it would leave the
	// window empty.
	for (len(w.items) > w.maxSize || w.tokens > w.maxTokens) && len(w.items) > 1 {
		w.evictOne()
	}
}

func (w *Window) evictOne() {
	if len(w.items) == 0 {
		return
	}

	switch w.strategy {
	case StrategyPriority:
		// Ties break toward the earliest-inserted item.
		lowest := 0
		for i, item := range w.items {
			if item.Priority < w.items[lowest].Priority {
				lowest = i
			}
		}
		w.removeAt(lowest)
	case StrategySummarize:
		if len(w.items) >= summarizeMinItems {
			w.summarizeOldest()
			return
		}
		w.removeAt(0)
	default: // StrategySliding
		w.removeAt(0)
	}
}

// summarizeOldest collapses the three oldest items into one synthetic
// summary item appended at the end: a net window-size change of -2.
func (w *Window) summarizeOldest() {
	snippets := make([]string, 0, summarizeTakeOldest)
	for _, item := range w.items[:summarizeTakeOldest] {
		content := item.Content
		if len(content) > summarizeSnippetLen {
			content = content[:summarizeSnippetLen]
		}
		snippets = append(snippets, content)
		w.tokens -= item.Tokens
	}
	w.items = append([]WindowItem(nil), w.items[summarizeTakeOldest:]...)

	summary := WindowItem{
		ID:       uuid.NewString(),
		Content:  "Summary: " + strings.Join(snippets, " | "),
		Priority: summaryPriority,
		AddedAt:  time.Now(),
	}
	summary.Tokens = EstimateTokens(summary.Content)

	w.items = append(w.items, summary)
	w.tokens += summary.Tokens
}

func (w *Window) removeAt(i int) {
	w.tokens -= w.items[i].Tokens
	w.items = append(w.items[:i], w.items[i+1:]...)
}

// Size returns the current item count.
func (w *Window) Size() int { return len(w.items) }

// Tokens returns the current estimated token usage.
func (w *Window) Tokens() int { return w.tokens }

// MaxSize returns the item cap.
func (w *Window) MaxSize() int { return w.maxSize }

// MaxTokens returns the token budget.
func (w *Window) MaxTokens() int { return w.maxTokens }

// Items returns a copy of the window contents in order.
func (w *Window) Items() []WindowItem {
	out := make([]WindowItem, len(w.items))
	copy(out, w.items)
	return out
}

// restore replaces the window contents from a snapshot.
func (w *Window) restore(items []WindowItem) {
	w.items = append([]WindowItem(nil), items...)
	w.tokens = 0
	for _, item := range w.items {
		w.tokens += item.Tokens
	}
}
