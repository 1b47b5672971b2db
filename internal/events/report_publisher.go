package events

import (
	"encoding/json"
	"fmt"
	"time"

	"allocation-generator/internal/metrics"
	"allocation-generator/internal/models"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Publisher announces generated reports
type Publisher interface {
	PublishReportGenerated(event *models.ReportGeneratedEvent) error
	Close()
}

// ReportPublisher publishes report events on a NATS subject
type ReportPublisher struct {
	conn    *nats.Conn
	subject string
	logger  logrus.FieldLogger
}

// NewReportPublisher connects to the NATS server at url
func NewReportPublisher(url, subject string, timeout time.Duration, logger logrus.FieldLogger) (*ReportPublisher, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	conn, err := nats.Connect(url,
		nats.Name("allocation-generator"),
		nats.Timeout(timeout),
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(3),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("⚠️ NATS disconnected")
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("🔌 NATS reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)

	logger.WithFields(logrus.Fields{
		"url":     conn.ConnectedUrlRedacted(),
		"subject": subject,
	}).Info("✅ Connected to NATS")

	return &ReportPublisher{conn: conn, subject: subject, logger: logger}, nil
}

// PublishReportGenerated publishes event as JSON and flushes it to the server
func (p *ReportPublisher) PublishReportGenerated(event *models.ReportGeneratedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to publish to %s: %w", p.subject, err)
	}
	if err := p.conn.Flush(); err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to flush %s: %w", p.subject, err)
	}

	metrics.EventsPublished.WithLabelValues("success").Inc()
	p.logger.WithFields(logrus.Fields{
		"subject": p.subject,
		"run_id":  event.RunID,
		"root":    event.MerkleRoot,
	}).Info("📤 Published report event")

	return nil
}

// Close drains pending messages and closes the connection
func (p *ReportPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
	metrics.NATSConnectionStatus.Set(0)
}
