// Package events publishes notifications about finished simulation runs.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"ideasim/models"
)

// SubjectRunCompleted receives one message per successful run.
const SubjectRunCompleted = "ideasim.simulation.completed"

// RunCompleted is the payload published on SubjectRunCompleted.
type RunCompleted struct {
	RunID        string      `json:"run_id"`
	ExperimentID string      `json:"experiment_id"`
	Mode         models.Mode `json:"mode"`
	Personas     int         `json:"personas"`
	CreditUsage  float64     `json:"credit_usage"`
}

// NewRunCompleted summarizes result for publication.
func NewRunCompleted(result *models.SimulationResult) RunCompleted {
	return RunCompleted{
		RunID:        result.RunID,
		ExperimentID: result.ExperimentID,
		Mode:         result.Mode,
		Personas:     len(result.Personas),
		CreditUsage:  result.CreditUsage,
	}
}

// Publisher delivers run notifications.
type Publisher interface {
	PublishRunCompleted(ctx context.Context, ev RunCompleted) error
	Close() error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) PublishRunCompleted(context.Context, RunCompleted) error { return nil }
func (NopPublisher) Close() error                                            { return nil }

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes events as JSON over core NATS.
type NATSPublisher struct {
	conn   conn
	logger *slog.Logger
}

// NewNATSPublisher connects to url.
func NewNATSPublisher(url string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "events")

	nc, err := nats.Connect(url,
		nats.Name("ideasim"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	logger.Info("Connected to NATS", "url", nc.ConnectedUrl())
	return &NATSPublisher{conn: nc, logger: logger}, nil
}

// PublishRunCompleted marshals ev and publishes it on SubjectRunCompleted.
func (p *NATSPublisher) PublishRunCompleted(ctx context.Context, ev RunCompleted) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal run completed event: %w", err)
	}
	if err := p.conn.Publish(SubjectRunCompleted, data); err != nil {
		return fmt.Errorf("publish %s: %w", SubjectRunCompleted, err)
	}
	p.logger.Debug("Published run completed", "run_id", ev.RunID)
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}
