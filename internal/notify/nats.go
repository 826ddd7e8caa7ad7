// Package notify announces catalog publications to other services.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/k-boateng/satellite-pass-predictionv2/internal/tle"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "catalog.refreshed"

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher sends a JSON message for every published catalog.
type NATSPublisher struct {
	conn    publisher
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

// Connect dials url and returns a publisher for subject. The connection keeps
// retrying in the background, so a broker that is down at startup is not fatal.
func Connect(url, subject string, logger *slog.Logger) (*NATSPublisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	nc, err := nats.Connect(url,
		nats.Name("passd"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return &NATSPublisher{conn: nc, nc: nc, subject: subject, logger: logger}, nil
}

// CatalogRefreshed publishes ev. It implements tle.Notifier.
func (p *NATSPublisher) CatalogRefreshed(_ context.Context, ev tle.RefreshEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding refresh event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.subject, err)
	}
	p.logger.Debug("catalog refresh announced", "subject", p.subject, "count", ev.Count)
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn("nats drain failed", "error", err)
		p.nc.Close()
	}
}
