package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummaryBody(t *testing.T) {
	assert.Equal(t, "X raised $10M", Summary{Text: " X raised $10M "}.Body())
	assert.Equal(t, "- one\n- two", Summary{Text: "ignored", KeyPoints: []string{"one", " two"}}.Body())
	assert.True(t, Summary{Text: "  "}.IsEmpty())
	assert.False(t, Summary{KeyPoints: []string{"a"}}.IsEmpty())
}

func TestDisplayTitle(t *testing.T) {
	a := Article{Title: "X raises funding"}
	assert.Equal(t, "X raises funding", DisplayTitle(a, Summary{}))
	assert.Equal(t, "X closes round", DisplayTitle(a, Summary{Title: "X closes round"}))
}

func TestParseOutcome(t *testing.T) {
	o, ok := ParseOutcome("Accepted")
	assert.True(t, ok)
	assert.Equal(t, OutcomeApprove, o)

	o, ok = ParseOutcome("reject")
	assert.True(t, ok)
	assert.Equal(t, OutcomeReject, o)

	_, ok = ParseOutcome("maybe")
	assert.False(t, ok)
}

func TestDraftStateTransitions(t *testing.T) {
	assert.True(t, StateSummarizing.CanTransition(StatePendingReview))
	assert.True(t, StateSummarizing.CanTransition(StateFailed))
	assert.True(t, StatePendingReview.CanTransition(StatePublishing))
	assert.True(t, StatePendingReview.CanTransition(StateDiscarded))
	assert.True(t, StatePublishing.CanTransition(StatePublished))

	assert.False(t, StatePendingReview.CanTransition(StateSummarizing))
	assert.False(t, StatePublishing.CanTransition(StatePendingReview))
	for _, terminal := range []DraftState{StatePublished, StateDiscarded, StateFailed} {
		assert.True(t, terminal.Terminal())
		assert.False(t, terminal.CanTransition(StatePublished))
		assert.False(t, terminal.CanTransition(StateDiscarded))
	}
}
