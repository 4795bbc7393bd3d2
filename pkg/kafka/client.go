// Package kafka 将 SQL 审计事件发布到 Kafka。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"querybot-go/internal/config"
	"querybot-go/pkg/log"
	"time"

	"github.com/segmentio/kafka-go"
)

// AuditEvent 记录一次 SQL 校验或执行，不包含查询结果。
type AuditEvent struct {
	SessionID  string    `json:"sessionId"`
	Username   string    `json:"username"`
	Role       string    `json:"role"`
	Question   string    `json:"question"`
	SQL        string    `json:"sql"`
	Allowed    bool      `json:"allowed"`
	Rule       string    `json:"rule,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	RowCount   int       `json:"rowCount"`
	DurationMs int64     `json:"durationMs"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// AuditPublisher 发布审计事件。
type AuditPublisher interface {
	PublishAudit(ctx context.Context, event AuditEvent) error
	Close() error
}

// messageWriter 是 kafka.Writer 的最小子集，便于替换。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type producer struct {
	writer messageWriter
}

// NewAuditPublisher 创建审计事件生产者；未启用时返回空实现。
func NewAuditPublisher(cfg config.KafkaConfig) AuditPublisher {
	brokers := cfg.SplitBrokers()
	if !cfg.Enabled || len(brokers) == 0 {
		return nopPublisher{}
	}
	log.Infof("Kafka 审计生产者初始化成功, topic: %s", cfg.Topic)
	return &producer{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

// PublishAudit 以会话 ID 为 key 写入一条事件，同一会话的事件保持有序。
func (p *producer) PublishAudit(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.SessionID),
		Value: value,
	})
}

func (p *producer) Close() error {
	return p.writer.Close()
}

type nopPublisher struct{}

func (nopPublisher) PublishAudit(context.Context, AuditEvent) error { return nil }
func (nopPublisher) Close() error                                    { return nil }
