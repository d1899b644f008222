package kafka

import (
	"context"
	"errors"
	"strings"
	"time"

	"paysync/internal/domain"
	"paysync/internal/infrastructure/telemetry"
	"paysync/internal/streaming"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultTopic = "paysync-payments"

type Producer struct {
	writer   *kafka.Writer
	topic    string
	account  string
	currency string
	issuer   string
}

type ProducerConfig struct {
	Brokers  []string
	Topic    string
	Account  string
	Currency string
	Issuer   string
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if strings.TrimSpace(cfg.Account) == "" {
		return nil, errors.New("account is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		cfg.Topic = DefaultTopic
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 500 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return &Producer{
		writer:   writer,
		topic:    cfg.Topic,
		account:  cfg.Account,
		currency: cfg.Currency,
		issuer:   cfg.Issuer,
	}, nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// PublishPayments writes one message per payment, keyed by transaction hash.
func (p *Producer) PublishPayments(ctx context.Context, payments []domain.Payment) error {
	if len(payments) == 0 {
		return nil
	}
	ctx, span := otel.Tracer("paysync/kafka").Start(ctx, "kafka.publish_payments", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination.name", p.topic),
		attribute.Int("messaging.batch.message_count", len(payments)),
	)

	messages, err := p.messages(ctx, payments)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (p *Producer) messages(ctx context.Context, payments []domain.Payment) ([]kafka.Message, error) {
	traceID := telemetry.TraceIDFromContext(ctx)
	messages := make([]kafka.Message, 0, len(payments))
	for _, payment := range payments {
		msg := streaming.FromPayment(payment)
		msg.Account = p.account
		msg.Currency = p.currency
		msg.Issuer = p.issuer
		msg.TraceID = traceID

		payload, err := streaming.Encode(msg)
		if err != nil {
			return nil, err
		}
		headers := make([]kafka.Header, 0, 2)
		telemetry.InjectKafkaHeaders(ctx, &headers)
		messages = append(messages, kafka.Message{
			Key:     []byte(payment.Hash),
			Value:   payload,
			Headers: headers,
		})
	}
	return messages, nil
}
