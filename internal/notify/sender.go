package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	defaultResendEndpoint = "https://api.resend.com/emails"
	defaultSendTimeout    = 10 * time.Second
	// EmailQueue is the durable queue the AMQP sender publishes to.
	EmailQueue = "notifications.email"
)

var (
	errMissingAPIKey  = errors.New("notify: resend api key is required")
	errMissingFrom    = errors.New("notify: sender address is required")
	errMissingAMQPURL = errors.New("notify: amqp url is required")
	errEmptyRecipient = errors.New("notify: message has no recipient")
)

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, message Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, message Message) error

func (f SenderFunc) Send(ctx context.Context, message Message) error {
	return f(ctx, message)
}

// ResendConfig configures the Resend HTTP API sender.
type ResendConfig struct {
	APIKey     string
	From       string
	Endpoint   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ResendSender posts messages to the Resend email API.
type ResendSender struct {
	apiKey   string
	from     string
	endpoint string
	client   *http.Client
}

func NewResendSender(cfg ResendConfig) (*ResendSender, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errMissingAPIKey
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errMissingFrom
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultResendEndpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultSendTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &ResendSender{apiKey: cfg.APIKey, from: cfg.From, endpoint: endpoint, client: client}, nil
}

type resendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (s *ResendSender) Send(ctx context.Context, message Message) error {
	if strings.TrimSpace(message.To) == "" {
		return errEmptyRecipient
	}
	body, err := json.Marshal(resendPayload{
		From:    s.from,
		To:      []string{message.To},
		Subject: message.Subject,
		HTML:    message.HTML,
	})
	if err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	request.Header.Set("Authorization", "Bearer "+s.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("resend request: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return fmt.Errorf("resend status %d: %s", response.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// AMQPSender publishes messages as persistent JSON to EmailQueue for an
// external mail relay to consume.
type AMQPSender struct {
	url string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQPSender(url string) (*AMQPSender, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errMissingAMQPURL
	}
	return &AMQPSender{url: url}, nil
}

func (s *AMQPSender) Send(ctx context.Context, message Message) error {
	if strings.TrimSpace(message.To) == "" {
		return errEmptyRecipient
	}
	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	channel, err := s.channelLocked()
	if err != nil {
		return err
	}
	err = channel.PublishWithContext(ctx, "", EmailQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		s.resetLocked()
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

// channelLocked dials lazily and redials after the broker drops the connection.
func (s *AMQPSender) channelLocked() (*amqp.Channel, error) {
	if s.conn != nil && !s.conn.IsClosed() && s.channel != nil && !s.channel.IsClosed() {
		return s.channel, nil
	}
	s.resetLocked()

	conn, err := amqp.Dial(s.url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := channel.QueueDeclare(EmailQueue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp queue declare: %w", err)
	}
	s.conn = conn
	s.channel = channel
	return channel, nil
}

func (s *AMQPSender) resetLocked() {
	if s.channel != nil {
		_ = s.channel.Close()
		s.channel = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// Close releases the broker connection.
func (s *AMQPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	return nil
}

// LogSender records messages in the log instead of delivering them.
type LogSender struct {
	Logger *zap.Logger
}

func (s LogSender) Send(_ context.Context, message Message) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("email delivery skipped; no sender configured",
		zap.String("to", message.To),
		zap.String("subject", message.Subject),
	)
	return nil
}
