package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/config"
)

// ErrNotConnected is returned by Publish before Start has run.
var ErrNotConnected = errors.New("mqtt publisher not started")

// MQTTPublisher publishes events as JSON to
// "<topic_prefix>/events/<event type>" at QoS 1.
type MQTTPublisher struct {
	cfg    config.MQTTConfig
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
}

// NewMQTTPublisher returns a publisher. Call Start to connect.
func NewMQTTPublisher(cfg config.MQTTConfig, logger *slog.Logger) *MQTTPublisher {
	return &MQTTPublisher{cfg: cfg, logger: logger}
}

// Start connects to the broker. autopaho keeps reconnecting in the
// background after the initial attempt; Start only waits up to 10s.
func (p *MQTTPublisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	status := p.statusTopic()
	cfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       uint16(p.cfg.KeepAlive),
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   status,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected", "broker", p.cfg.Broker)
			if _, err := cm.Publish(ctx, &paho.Publish{Topic: status, Payload: []byte("online"), QoS: 1, Retain: true}); err != nil {
				p.logger.Warn("mqtt status publish failed", "error", err)
			}
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.cfg.ClientID,
		},
	}
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		cfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(waitCtx); err != nil {
		p.logger.Warn("mqtt initial connection timed out, retrying in background", "error", err)
	}
	return nil
}

// Publish sends ev. Events are not retained.
func (p *MQTTPublisher) Publish(ctx context.Context, ev Event) error {
	if p.cm == nil {
		return ErrNotConnected
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   p.EventTopic(ev.Type),
		Payload: payload,
		QoS:     1,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Stop marks the publisher offline and disconnects.
func (p *MQTTPublisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	_, _ = p.cm.Publish(ctx, &paho.Publish{Topic: p.statusTopic(), Payload: []byte("offline"), QoS: 1, Retain: true})
	return p.cm.Disconnect(ctx)
}

// EventTopic returns the topic an event type is published on. Dots in
// the type become topic levels.
func (p *MQTTPublisher) EventTopic(eventType string) string {
	return p.cfg.TopicPrefix + "/events/" + strings.ReplaceAll(eventType, ".", "/")
}

func (p *MQTTPublisher) statusTopic() string {
	return p.cfg.TopicPrefix + "/status"
}
