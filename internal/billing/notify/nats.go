// Package notify publishes committed billing events: audit entries for
// downstream listeners and property release signals for the availability side.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/zlovtnik/leasebill/internal/billing/domain"
)

// Publisher sends a message to a subject
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// JetStream is a Publisher backed by a NATS JetStream stream
type JetStream struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the stream capturing
// prefix.> exists.
func Connect(ctx context.Context, url, stream, prefix string) (*JetStream, error) {
	nc, err := nats.Connect(url, nats.Name("leasebill"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     stream,
		Subjects: []string{prefix + ".>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", stream)
	return &JetStream{nc: nc, js: js}, nil
}

// Publish sends a message to the given subject
func (j *JetStream) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := j.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Close shuts down the NATS connection
func (j *JetStream) Close() {
	j.nc.Close()
}

// Bus turns billing events into messages. Audit entries go to
// <prefix>.audit.<action>, releases to <prefix>.property.released.
type Bus struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
}

// NewBus creates a new Bus
func NewBus(pub Publisher, prefix string, logger *slog.Logger) *Bus {
	if pub == nil {
		panic("publisher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{pub: pub, prefix: strings.TrimSuffix(prefix, "."), logger: logger}
}

// Notify publishes an audit entry. Failures are logged, never returned.
func (b *Bus) Notify(ctx context.Context, entry domain.AuditEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		b.logger.Error("failed to encode audit entry", "audit_id", entry.ID, "error", err)
		return
	}
	subject := b.prefix + ".audit." + strings.ToLower(string(entry.Action))
	if err := b.pub.Publish(ctx, subject, data); err != nil {
		b.logger.Error("failed to publish audit entry",
			"audit_id", entry.ID,
			"contract_id", entry.ContractID.String(),
			"subject", subject,
			"error", err,
		)
	}
}

// PropertyReleased is the payload of a release signal
type PropertyReleased struct {
	TenantID   string    `json:"tenant_id"`
	PropertyID string    `json:"property_id"`
	ReleasedAt time.Time `json:"released_at"`
}

// ReleaseProperty publishes a release signal for a property
func (b *Bus) ReleaseProperty(ctx context.Context, tenantID string, propertyID domain.PropertyID, at time.Time) error {
	data, err := json.Marshal(PropertyReleased{TenantID: tenantID, PropertyID: propertyID.String(), ReleasedAt: at})
	if err != nil {
		return fmt.Errorf("encode release: %w", err)
	}
	return b.pub.Publish(ctx, b.prefix+".property.released", data)
}

// Log writes billing events to a structured logger instead of a broker
type Log struct {
	logger *slog.Logger
}

// NewLog creates a new Log notifier
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Notify logs an audit entry
func (l *Log) Notify(_ context.Context, entry domain.AuditEntry) {
	l.logger.Info("billing event",
		"action", string(entry.Action),
		"operation", entry.Operation,
		"tenant_id", entry.TenantID,
		"contract_id", entry.ContractID.String(),
		"user", entry.UserName,
	)
}

// ReleaseProperty logs a release signal
func (l *Log) ReleaseProperty(_ context.Context, tenantID string, propertyID domain.PropertyID, at time.Time) error {
	l.logger.Info("property released",
		"tenant_id", tenantID,
		"property_id", propertyID.String(),
		"released_at", at,
	)
	return nil
}
