package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type Email struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers email notifications.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// PushNotification is the JSON body published to a user's push topic.
type PushNotification struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	SessionID string    `json:"session_id,omitempty"`
	Tier      Tier      `json:"tier,omitempty"`
	StartsAt  time.Time `json:"starts_at,omitempty"`
}

// Pusher delivers push notifications to a user's devices.
type Pusher interface {
	Push(ctx context.Context, userID string, n PushNotification) error
}

type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

// SMTPMailer sends plain-text mail through an SMTP relay.
type SMTPMailer struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

func (m *SMTPMailer) Send(ctx context.Context, e Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.To == "" {
		return errors.New("smtp: empty recipient")
	}
	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", e.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", e.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(e.Body)
	addr := net.JoinHostPort(m.cfg.Host, m.cfg.Port)
	if err := m.send(addr, auth, m.cfg.From, []string{e.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send to %s: %w", e.To, err)
	}
	return nil
}

// LogMailer only logs; used when no SMTP relay is configured.
type LogMailer struct{ Log *zap.Logger }

func (m LogMailer) Send(_ context.Context, e Email) error {
	m.Log.Info("email (not sent, smtp disabled)", zap.String("to", e.To), zap.String("subject", e.Subject))
	return nil
}

type MQTTConfig struct {
	BrokerURL string
	ClientID  string
}

// ConnectMQTT opens an auto-reconnecting client to the broker.
func ConnectMQTT(cfg MQTTConfig, log *zap.Logger) (mqtt.Client, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("mqtt broker URL is empty")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "support-chat"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", zap.Error(err))
	}
	opts.OnConnect = func(_ mqtt.Client) {
		log.Info("mqtt connected", zap.String("broker", cfg.BrokerURL), zap.String("client_id", cfg.ClientID))
	}

	c := mqtt.NewClient(opts)
	tok := c.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		return nil, err
	}
	return c, nil
}

// MQTTPusher publishes push notifications to <prefix>/users/<id>/push,
// where the mobile push bridge subscribes.
type MQTTPusher struct {
	client  mqtt.Client
	prefix  string
	timeout time.Duration
}

func NewMQTTPusher(client mqtt.Client, topicPrefix string) *MQTTPusher {
	return &MQTTPusher{client: client, prefix: strings.TrimSuffix(topicPrefix, "/"), timeout: 5 * time.Second}
}

func (p *MQTTPusher) Topic(userID string) string {
	return p.prefix + "/users/" + userID + "/push"
}

func (p *MQTTPusher) Push(ctx context.Context, userID string, n PushNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	tok := p.client.Publish(p.Topic(userID), 1, false, payload)
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.timeout):
		return fmt.Errorf("mqtt publish to %s: timeout", p.Topic(userID))
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", p.Topic(userID), err)
	}
	return nil
}

// LogPusher only logs; used when no broker is configured.
type LogPusher struct{ Log *zap.Logger }

func (p LogPusher) Push(_ context.Context, userID string, n PushNotification) error {
	p.Log.Info("push (not sent, mqtt disabled)", zap.String("user_id", userID), zap.String("title", n.Title))
	return nil
}
