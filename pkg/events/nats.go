// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/internaltools/credshare/pkg/logger"

	"github.com/nats-io/nats.go"
)

var errNATSClosed = errors.New("nats connection not initialized")

// NATSPublisher publishes events on NATS subjects.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

// NewNATSPublisher dials NATS with unlimited reconnects.
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}
	if cfg.Subject == "" {
		cfg.Subject = "credshare.events"
	}

	opts := []nats.Option{
		nats.Name("credshare-events"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected to NATS")
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info().Msg("NATS connection closed")
		}),
	}
	if cfg.ConnectTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnectTimeout))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	logger.Info().
		Str("url", cfg.URL).
		Str("subject", cfg.Subject).
		Msg("nats event publisher connected")

	return &NATSPublisher{nc: nc, subject: cfg.Subject}, nil
}

func (p *NATSPublisher) Name() string {
	return "nats"
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(eventName EventType) string {
	return p.subject + "." + eventName.Short()
}

func (p *NATSPublisher) Publish(ctx context.Context, eventName EventType, key string, data []byte) error {
	if p == nil || p.nc == nil {
		return errNATSClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := nats.NewMsg(p.Subject(eventName))
	msg.Header.Set("Credshare-Object-Key", key)
	msg.Data = data
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		p.nc.Close()
		return err
	}
	return nil
}
