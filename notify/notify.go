package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Channel is an outbound delivery medium.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// ErrUnavailable is returned by Breaker while the circuit is open.
var ErrUnavailable = errors.New("notify: sender unavailable")

// Message is a single templated outbound message.
type Message struct {
	Channel    Channel
	To         string
	TemplateID string
	Variables  map[string]string
}

// Sender delivers messages to an external provider.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// LogSender records message metadata with zap and delivers nothing. It is the
// default sender when none is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender returns a LogSender. A nil logger discards output.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("notify: message not delivered, no sender configured",
		zap.String("channel", string(msg.Channel)),
		zap.String("to", maskRecipient(msg.To)),
		zap.String("template_id", msg.TemplateID),
	)
	return nil
}

// BreakerConfig tunes [NewBreaker].
type BreakerConfig struct {
	Name        string
	MaxFailures uint32
	Interval    time.Duration
	OpenTimeout time.Duration
}

// DefaultBreakerConfig trips after five consecutive failures and lets a trial
// request through after thirty seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:        "notify",
		MaxFailures: 5,
		Interval:    time.Minute,
		OpenTimeout: 30 * time.Second,
	}
}

// Breaker guards a Sender with a circuit breaker.
type Breaker struct {
	next   Sender
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewBreaker wraps next.
func NewBreaker(next Sender, cfg BreakerConfig, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = DefaultBreakerConfig().MaxFailures
	}
	if cfg.Name == "" {
		cfg.Name = "notify"
	}

	b := &Breaker{next: next, logger: logger}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("notify: circuit breaker state",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return b
}

func (b *Breaker) Send(ctx context.Context, msg Message) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// State reports the breaker state name ("closed", "open", "half-open").
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func maskRecipient(to string) string {
	if at := strings.IndexByte(to, '@'); at > 0 {
		return to[:1] + "***" + to[at:]
	}
	if len(to) > 4 {
		return "***" + to[len(to)-4:]
	}
	return "***"
}
