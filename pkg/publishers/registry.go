package publishers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Factory builds the sink for one config entry.
type Factory func(ctx context.Context, cfg SinkConfig, log Logger) (Publisher, error)

// Registry maps sink types to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry knows every sink type this package implements.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(TypeQueue, newQueuePublisher)
	r.Register(TypeWebhook, newWebhookPublisher)
	r.Register(TypeArchive, newArchivePublisher)
	return r
}

// Register associates a factory with a sink type, replacing any previous one.
func (r *Registry) Register(typ string, f Factory) {
	typ = strings.ToLower(strings.TrimSpace(typ))
	if typ == "" || f == nil {
		return
	}
	r.mu.Lock()
	r.factories[typ] = f
	r.mu.Unlock()
}

// Build creates the sink for cfg, wrapped in a topic filter when cfg.Topics is set.
func (r *Registry) Build(ctx context.Context, cfg SinkConfig, log Logger) (Publisher, error) {
	r.mu.RLock()
	f := r.factories[strings.ToLower(cfg.Type)]
	r.mu.RUnlock()
	if f == nil {
		return nil, fmt.Errorf("sink %q: no factory for type %q", cfg.ID, cfg.Type)
	}
	pub, err := f(ctx, cfg, ensureLogger(log))
	if err != nil {
		return nil, fmt.Errorf("build sink %q: %w", cfg.ID, err)
	}
	if len(cfg.Topics) > 0 {
		pub = newTopicFilter(pub, cfg.Topics)
	}
	return pub, nil
}

// BuildAll builds every enabled sink. On failure the sinks built so far are closed.
func BuildAll(ctx context.Context, reg *Registry, cfgs []SinkConfig, log Logger) ([]Publisher, error) {
	if reg == nil {
		return nil, errors.New("sink registry is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var pubs []Publisher
	for _, cfg := range cfgs {
		if !cfg.IsEnabled() {
			continue
		}
		pub, err := reg.Build(ctx, cfg, log)
		if err != nil {
			_ = CloseAll(pubs)
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	return pubs, nil
}

// CloseAll releases sinks that hold client connections.
func CloseAll(pubs []Publisher) error {
	var errs []error
	for _, p := range pubs {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close sink %q: %w", p.ID(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// topicFilter drops events whose topic is not in its set.
type topicFilter struct {
	Publisher
	topics map[string]struct{}
}

func newTopicFilter(p Publisher, topics []string) *topicFilter {
	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		set[strings.ToLower(t)] = struct{}{}
	}
	return &topicFilter{Publisher: p, topics: set}
}

func (f *topicFilter) Publish(ctx context.Context, evt Event) error {
	if _, ok := f.topics[strings.ToLower(strings.TrimSpace(evt.Topic))]; !ok {
		return nil
	}
	return f.Publisher.Publish(ctx, evt)
}

func (f *topicFilter) Close() error {
	if c, ok := f.Publisher.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
