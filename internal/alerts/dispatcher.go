package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rlaau/swapsentry/shared/eventbus"
	"github.com/rlaau/swapsentry/shared/metrics"
)

const (
	defaultMaxAttempts = 3
	defaultMaxWait     = 10 * time.Second
)

// Channel is one enabled delivery target: a webhook URL plus its own
// rate limit and bounded durable queue. kind selects how an Alert is
// encoded into the POST body; "" means raw JSON (Discord and any
// generic webhook), "telegram" wraps it as a bot API sendMessage call.
type Channel struct {
	Name       string
	WebhookURL string
	Limiter    *rate.Limiter
	MaxWait    time.Duration

	kind   string
	chatID string
	queue  *eventbus.EventBus[Alert]
	client *http.Client
	log    *zap.Logger
}

func NewChannel(name, webhookURL string, ratePerSecond float64, burst int, queuePath string, queueCap int, log *zap.Logger) (*Channel, error) {
	q, err := eventbus.NewWithPath[Alert](queuePath, queueCap)
	if err != nil {
		return nil, fmt.Errorf("alerts: open queue for channel %s: %w", name, err)
	}
	return &Channel{
		Name:       name,
		WebhookURL: webhookURL,
		Limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		MaxWait:    defaultMaxWait,
		queue:      q,
		client:     &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}, nil
}

// NewTelegramChannel builds a channel that delivers through the Telegram
// bot API's sendMessage endpoint instead of a generic webhook POST.
func NewTelegramChannel(botToken, chatID string, ratePerSecond float64, burst int, queuePath string, queueCap int, log *zap.Logger) (*Channel, error) {
	ch, err := NewChannel("telegram", "https://api.telegram.org/bot"+botToken+"/sendMessage",
		ratePerSecond, burst, queuePath, queueCap, log)
	if err != nil {
		return nil, err
	}
	ch.kind = "telegram"
	ch.chatID = chatID
	return ch, nil
}

// Enqueue durably queues an alert for this channel; the dispatcher
// formats the alert once upstream and fans the same payload to every
// enabled channel's queue.
func (c *Channel) Enqueue(a Alert) error { return c.queue.Publish(a) }

// Run drains the channel's queue FIFO, applying rate limiting and retry
// with backoff to each delivery, until ctx is cancelled.
func (c *Channel) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.queue.Close()
			return
		case a, ok := <-c.queue.Dequeue():
			if !ok {
				return
			}
			c.deliver(ctx, a)
		}
	}
}

func (c *Channel) deliver(ctx context.Context, a Alert) {
	waitCtx, cancel := context.WithTimeout(ctx, c.MaxWait)
	if err := c.Limiter.Wait(waitCtx); err != nil {
		cancel()
		metrics.AlertsDispatched.WithLabelValues(c.Name, "rate_limit_dropped").Inc()
		if c.log != nil {
			c.log.Warn("alert dropped: rate limiter wait exceeded max_wait", zap.String("channel", c.Name))
		}
		return
	}
	cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0
	bo.Reset()

	var lastErr error
	for attempt := 1; attempt <= defaultMaxAttempts; attempt++ {
		err := c.post(ctx, a)
		if err == nil {
			metrics.AlertsDispatched.WithLabelValues(c.Name, "delivered").Inc()
			return
		}
		lastErr = err

		if _, ok := err.(*nonRetryableError); ok {
			metrics.AlertsDispatched.WithLabelValues(c.Name, "dropped").Inc()
			if c.log != nil {
				c.log.Error("alert delivery failed with a non-retryable status; dropping",
					zap.String("channel", c.Name), zap.Error(err))
			}
			return
		}
		if attempt == defaultMaxAttempts {
			break
		}

		delay := bo.NextBackOff()
		if rl, ok := err.(*rateLimitError); ok && rl.hasRetryAfter {
			delay = rl.retryAfter
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}

	metrics.AlertsDispatched.WithLabelValues(c.Name, "dropped").Inc()
	if c.log != nil {
		c.log.Error("alert delivery exhausted retries; dropping", zap.String("channel", c.Name), zap.Error(lastErr))
	}
}

type nonRetryableError struct{ status int }

func (e *nonRetryableError) Error() string { return fmt.Sprintf("non-retryable status %d", e.status) }

type rateLimitError struct {
	retryAfter    time.Duration
	hasRetryAfter bool
}

func (e *rateLimitError) Error() string { return "rate limited" }

// post sends one HTTP POST attempt. A 429's retry_after is carried on
// the returned rateLimitError so the caller's retry loop can override
// the default exponential schedule.
func (c *Channel) post(ctx context.Context, a Alert) error {
	body, err := c.encode(a)
	if err != nil {
		return &nonRetryableError{status: 0}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return &nonRetryableError{status: 0}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err // network/timeout: retryable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		d, ok := parseRetryAfter(resp.Header.Get("Retry-After"))
		return &rateLimitError{retryAfter: d, hasRetryAfter: ok}
	case resp.StatusCode >= 500 && resp.StatusCode < 600:
		return fmt.Errorf("alerts: server error %d", resp.StatusCode)
	default:
		return &nonRetryableError{status: resp.StatusCode}
	}
}

// encode shapes a onto the wire format this channel's endpoint expects.
func (c *Channel) encode(a Alert) ([]byte, error) {
	if c.kind != "telegram" {
		return json.Marshal(a)
	}
	text := fmt.Sprintf("%s triggered on %s\nvenue=%s volume_sol_5m=%.2f buyers_5m=%d cto_score=%.2f",
		a.TriggerName, a.Mint, a.Venue, a.VolumeSol5m, a.UniqueBuyers5m, a.CTOScore)
	return json.Marshal(struct {
		ChatID string `json:"chat_id"`
		Text   string `json:"text"`
	}{ChatID: c.chatID, Text: text})
}

func parseRetryAfter(header string) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t), true
	}
	return 0, false
}

// Dispatcher fans one formatted Alert out to every enabled channel's
// durable queue; each channel drains independently on its own goroutine.
type Dispatcher struct {
	channels []*Channel
}

func NewDispatcher(channels ...*Channel) *Dispatcher { return &Dispatcher{channels: channels} }

func (d *Dispatcher) Start(ctx context.Context) {
	for _, ch := range d.channels {
		go ch.Run(ctx)
	}
}

// Dispatch enqueues a onto every channel, stamping a unique ID first if
// the caller didn't already set one, so a channel's durable queue and
// logs can refer to one alert by a single stable identifier regardless
// of how many channels deliver it.
func (d *Dispatcher) Dispatch(a Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	for _, ch := range d.channels {
		if err := ch.Enqueue(a); err != nil {
			return fmt.Errorf("alerts: enqueue to %s: %w", ch.Name, err)
		}
	}
	return nil
}
