package publish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LiamFearon/LocalAINews/internal/domain"
	"github.com/LiamFearon/LocalAINews/internal/metrics"
	"github.com/LiamFearon/LocalAINews/pkg/discord"
	"github.com/LiamFearon/LocalAINews/pkg/publishers"
)

type fakeSender struct {
	mu    sync.Mutex
	calls int
	msgs  []discord.MessageCreate
	err   error
}

func (f *fakeSender) SendMessage(_ context.Context, channelID string, msg discord.MessageCreate) (discord.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return discord.Message{}, f.err
	}
	f.msgs = append(f.msgs, msg)
	return discord.Message{ID: "pub-1", ChannelID: channelID}, nil
}

type recordingSink struct {
	id  string
	err error
	mu  sync.Mutex
	got []publishers.Event
}

func (s *recordingSink) ID() string   { return s.id }
func (s *recordingSink) Type() string { return "test" }
func (s *recordingSink) Publish(_ context.Context, evt publishers.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, evt)
	return s.err
}

var now = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func approvedDraft() domain.Draft {
	return domain.Draft{
		ID:      "d1",
		Article: domain.Article{ID: "a1", Title: "X raises funding", URL: "https://example.com/x", Topic: "ai"},
		Summary: domain.Summary{Text: "X raised money.", WhyItMatters: "Competition."},
		State:   domain.StatePublishing,
		Actor:   "alice",
	}
}

func TestPublishPostsOnceAndNotifiesSinks(t *testing.T) {
	sender := &fakeSender{}
	good := &recordingSink{id: "webhook"}
	bad := &recordingSink{id: "archive", err: errors.New("denied")}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	p, err := New(Options{
		Sender:    sender,
		ChannelID: "222",
		Sinks:     []publishers.Publisher{good, bad},
		Clock:     func() time.Time { return now },
		Metrics:   m,
	})
	require.NoError(t, err)

	post, err := p.Publish(context.Background(), approvedDraft())
	require.NoError(t, err)
	p.Wait()

	assert.Equal(t, domain.PublishedPost{DraftID: "d1", ChannelID: "222", MessageID: "pub-1", PublishedAt: now}, post)
	assert.Equal(t, 1, sender.calls)
	require.Len(t, sender.msgs[0].Embeds, 1)
	assert.Equal(t, "X raises funding", sender.msgs[0].Embeds[0].Title)
	assert.Empty(t, sender.msgs[0].Components)

	require.Len(t, good.got, 1)
	assert.Equal(t, "pub-1", good.got[0].MessageID)
	assert.Equal(t, "alice", good.got[0].ApprovedBy)
	require.Len(t, bad.got, 1)

	sinkSeries, err := testutil.GatherAndCount(reg, "localainews_sink_events_total")
	require.NoError(t, err)
	assert.Equal(t, 2, sinkSeries)
}

func TestPublishFailureIsReported(t *testing.T) {
	sender := &fakeSender{err: errors.New("503")}
	sink := &recordingSink{id: "webhook"}
	p, err := New(Options{Sender: sender, ChannelID: "222", Sinks: []publishers.Publisher{sink}})
	require.NoError(t, err)

	_, err = p.Publish(context.Background(), approvedDraft())
	require.ErrorIs(t, err, ErrPublish)
	p.Wait()
	assert.Equal(t, 1, sender.calls)
	assert.Empty(t, sink.got)
}

func TestNewValidates(t *testing.T) {
	_, err := New(Options{ChannelID: "1"})
	require.Error(t, err)
	_, err = New(Options{Sender: &fakeSender{}})
	require.Error(t, err)
}

func TestEventCarriesSummary(t *testing.T) {
	d := approvedDraft()
	d.Summary.KeyPoints = []string{"one", "two"}
	evt := Event(d, domain.PublishedPost{ChannelID: "222", MessageID: "m", PublishedAt: now})
	assert.Equal(t, "a1", evt.ArticleID)
	assert.Equal(t, []string{"one", "two"}, evt.KeyPoints)
	assert.Equal(t, "ai", evt.Topic)
	assert.Equal(t, now, evt.PublishedAt)
}
