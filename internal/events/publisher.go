package events

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/trustscore/api/schemas"
	"github.com/xkilldash9x/trustscore/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Subject suffixes appended to the configured prefix.
const (
	SubjectEscalations = "escalations"
	SubjectDrift       = "drift"
	SubjectAudit       = "audit"
)

// conn is the subset of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// envelope wraps every published payload.
type envelope struct {
	Kind        string    `json:"kind"`
	PublishedAt time.Time `json:"published_at"`
	Data        any       `json:"data"`
}

// NATSPublisher emits engine events as JSON on core NATS subjects.
type NATSPublisher struct {
	conn   conn
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

var _ schemas.Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher dials the configured server.
func NewNATSPublisher(cfg config.NATSConfig, logger *zap.Logger) (*NATSPublisher, error) {
	logger = logger.Named("events")
	nc, err := nats.Connect(cfg.URL,
		nats.Name("trustscore"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}
	return newNATSPublisher(nc, cfg.SubjectPrefix, logger), nil
}

func newNATSPublisher(c conn, prefix string, logger *zap.Logger) *NATSPublisher {
	return &NATSPublisher{conn: c, prefix: prefix, logger: logger, now: time.Now}
}

// Subject returns the full subject for a suffix.
func (p *NATSPublisher) Subject(suffix string) string {
	if p.prefix == "" {
		return suffix
	}
	return p.prefix + "." + suffix
}

func (p *NATSPublisher) publish(ctx context.Context, suffix, kind string, data any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	payload, err := json.Marshal(envelope{Kind: kind, PublishedAt: p.now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", kind, err)
	}
	subject := p.Subject(suffix)
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	p.logger.Debug("Published event", zap.String("subject", subject), zap.String("kind", kind))
	return nil
}

func (p *NATSPublisher) PublishEscalation(ctx context.Context, esc schemas.Escalation) error {
	return p.publish(ctx, SubjectEscalations, "escalation", esc)
}

func (p *NATSPublisher) PublishDrift(ctx context.Context, ev schemas.DriftEvent) error {
	return p.publish(ctx, SubjectDrift, "drift", ev)
}

func (p *NATSPublisher) PublishAudit(ctx context.Context, rec schemas.AuditRecord) error {
	return p.publish(ctx, SubjectAudit, "audit", rec)
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}

// LogPublisher writes events to the structured log. Used when NATS is disabled.
type LogPublisher struct {
	logger *zap.Logger
}

var _ schemas.Publisher = (*LogPublisher)(nil)

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) PublishEscalation(_ context.Context, esc schemas.Escalation) error {
	p.logger.Info("Escalation raised",
		zap.String("escalation_id", esc.ID),
		zap.String("org_id", esc.OrgID),
		zap.String("source_type", esc.SourceType),
		zap.String("source_id", esc.SourceID),
		zap.String("severity", string(esc.Severity)))
	return nil
}

func (p *LogPublisher) PublishDrift(_ context.Context, ev schemas.DriftEvent) error {
	p.logger.Info("Drift recorded",
		zap.String("run_id", ev.RunID),
		zap.String("target_id", ev.TargetID),
		zap.Int("delta", ev.Delta),
		zap.Bool("material", ev.Material))
	return nil
}

func (p *LogPublisher) PublishAudit(_ context.Context, rec schemas.AuditRecord) error {
	p.logger.Info("Audit record",
		zap.String("action", rec.Action),
		zap.String("actor", rec.Actor),
		zap.String("subject_type", rec.SubjectType),
		zap.String("subject_id", rec.SubjectID))
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// New picks the NATS publisher when enabled and the log publisher otherwise.
func New(cfg config.NATSConfig, logger *zap.Logger) (schemas.Publisher, error) {
	if !cfg.Enabled {
		return NewLogPublisher(logger), nil
	}
	return NewNATSPublisher(cfg, logger)
}
