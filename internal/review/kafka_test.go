package review

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LiamFearon/LocalAINews/internal/domain"
)

type captured struct {
	mu   sync.Mutex
	got  []domain.Decision
	fail error
}

func (c *captured) submit(_ context.Context, dec domain.Decision) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.got = append(c.got, dec)
	return nil
}

func TestDecisionConsumerHandle(t *testing.T) {
	c := &captured{}
	h := newDecisionConsumer(c.submit, nil)

	mark, err := h.handle(context.Background(), []byte(`{"correlation_key":"msg-42","outcome":"Approved","actor":"alice"}`))
	require.NoError(t, err)
	assert.True(t, mark)
	require.Len(t, c.got, 1)
	assert.Equal(t, domain.Decision{CorrelationKey: "msg-42", Outcome: domain.OutcomeApprove, Actor: "alice", Source: domain.SourceKafka}, c.got[0])

	for _, raw := range []string{`not json`, `{"outcome":"approve"}`, `{"correlation_key":"k","outcome":"maybe"}`} {
		mark, err := h.handle(context.Background(), []byte(raw))
		require.Error(t, err, raw)
		assert.True(t, mark, "malformed messages are skipped: %s", raw)
	}

	c.fail = context.Canceled
	mark, err = h.handle(context.Background(), []byte(`{"correlation_key":"msg-43","outcome":"reject"}`))
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, mark)
}

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32 { return nil }
func (s *fakeSession) MemberID() string { return "m1" }
func (s *fakeSession) GenerationID() int32 { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string) {}
func (s *fakeSession) Commit() {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, msg.Offset)
	s.mu.Unlock()
}

type fakeClaim struct {
	ch chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string { return "decisions" }
func (c *fakeClaim) Partition() int32 { return 0 }
func (c *fakeClaim) InitialOffset() int64 { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64 { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.ch }

func TestConsumeClaimMarksHandledMessages(t *testing.T) {
	c := &captured{}
	h := newDecisionConsumer(c.submit, nil)
	session := &fakeSession{ctx: context.Background()}
	claim := &fakeClaim{ch: make(chan *sarama.ConsumerMessage, 3)}

	claim.ch <- &sarama.ConsumerMessage{Offset: 1, Value: []byte(`{"correlation_key":"msg-42","outcome":"reject","actor":"bob"}`)}
	claim.ch <- &sarama.ConsumerMessage{Offset: 2, Value: []byte(`garbage`)}
	close(claim.ch)

	require.NoError(t, h.ConsumeClaim(session, claim))
	assert.Equal(t, []int64{1, 2}, session.marked)
	require.Len(t, c.got, 1)
	assert.Equal(t, "bob", c.got[0].Actor)
}

func TestConsumeClaimLeavesUnqueuedMessagesUnmarked(t *testing.T) {
	c := &captured{fail: errors.New("queue closed")}
	h := newDecisionConsumer(c.submit, nil)
	session := &fakeSession{ctx: context.Background()}
	claim := &fakeClaim{ch: make(chan *sarama.ConsumerMessage, 1)}
	claim.ch <- &sarama.ConsumerMessage{Offset: 5, Value: []byte(`{"correlation_key":"msg-42","outcome":"approve"}`)}
	close(claim.ch)

	require.NoError(t, h.ConsumeClaim(session, claim))
	assert.Empty(t, session.marked)
}

func TestNewKafkaSourceValidates(t *testing.T) {
	_, err := NewKafkaSource(KafkaOptions{}, nil, nil)
	require.Error(t, err)
}
