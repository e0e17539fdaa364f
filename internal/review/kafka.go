package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/IBM/sarama"

	"github.com/LiamFearon/LocalAINews/internal/domain"
	"github.com/LiamFearon/LocalAINews/internal/logger"
)

// KafkaOptions configures the moderation-decision consumer.
type KafkaOptions struct {
	Brokers []string
	Topic   string
	GroupID string
}

// kafkaDecision is the message shape on the decisions topic.
type kafkaDecision struct {
	CorrelationKey string `json:"correlation_key"`
	Outcome        string `json:"outcome"`
	Actor          string `json:"actor"`
}

// submitFunc hands a decision to the queue, waiting for room.
type submitFunc func(ctx context.Context, dec domain.Decision) error

// KafkaSource feeds decisions published by an external moderation tool into the
// gateway queue. Producers on the topic are trusted; the admin filter does not apply.
type KafkaSource struct {
	group   sarama.ConsumerGroup
	topic   string
	handler *decisionConsumer
	log     logger.Logger
}

// NewKafkaSource joins the consumer group. Consumption starts with Run.
func NewKafkaSource(opts KafkaOptions, g *Gateway, log logger.Logger) (*KafkaSource, error) {
	if len(opts.Brokers) == 0 || opts.Topic == "" || opts.GroupID == "" {
		return nil, errors.New("kafka source: brokers, topic and group id are required")
	}
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(opts.Brokers, opts.GroupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}
	log = logger.Ensure(log)
	return &KafkaSource{
		group:   group,
		topic:   opts.Topic,
		handler: newDecisionConsumer(g.SubmitWait, log),
		log:     log,
	}, nil
}

// Run consumes until ctx is cancelled, rejoining the group after rebalances.
func (s *KafkaSource) Run(ctx context.Context) error {
	go func() {
		for err := range s.group.Errors() {
			s.log.ErrorObj("kafka consumer error", "review_kafka_error", map[string]any{"error": err.Error()})
		}
	}()
	s.log.InfoObj("kafka decision source started", "review_kafka_started", map[string]any{"topic": s.topic})

	for {
		if err := s.group.Consume(ctx, []string{s.topic}, s.handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) || ctx.Err() != nil {
				return nil
			}
			s.log.ErrorObj("kafka consume failed", "review_kafka_consume_failed", map[string]any{"error": err.Error()})
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *KafkaSource) Close() error {
	return s.group.Close()
}

// decisionConsumer implements sarama.ConsumerGroupHandler.
type decisionConsumer struct {
	submit submitFunc
	log    logger.Logger
}

func newDecisionConsumer(submit submitFunc, log logger.Logger) *decisionConsumer {
	return &decisionConsumer{submit: submit, log: logger.Ensure(log)}
}

func (h *decisionConsumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *decisionConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *decisionConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok || msg == nil {
				return nil
			}
			mark, err := h.handle(session.Context(), msg.Value)
			if err != nil {
				h.log.WarnObj("kafka decision not handled", "review_kafka_decision_failed", map[string]any{
					"partition": msg.Partition,
					"offset":    msg.Offset,
					"error":     err.Error(),
				})
			}
			if mark {
				session.MarkMessage(msg, "")
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

// handle decodes one message. Malformed messages are marked so they are skipped;
// a message that could not be queued is left unmarked.
func (h *decisionConsumer) handle(ctx context.Context, raw []byte) (bool, error) {
	var msg kafkaDecision
	if err := json.Unmarshal(raw, &msg); err != nil {
		return true, fmt.Errorf("decode decision: %w", err)
	}
	key := strings.TrimSpace(msg.CorrelationKey)
	if key == "" {
		return true, errors.New("decision has no correlation key")
	}
	outcome, ok := domain.ParseOutcome(msg.Outcome)
	if !ok {
		return true, fmt.Errorf("decision has unknown outcome %q", msg.Outcome)
	}
	actor := strings.TrimSpace(msg.Actor)
	if actor == "" {
		actor = "moderation"
	}

	if err := h.submit(ctx, domain.Decision{
		CorrelationKey: key,
		Outcome:        outcome,
		Actor:          actor,
		Source:         domain.SourceKafka,
	}); err != nil {
		return false, fmt.Errorf("queue decision: %w", err)
	}
	return true, nil
}
