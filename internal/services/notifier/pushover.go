package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	config "github.com/NordCoder/upwatch/internal/config/worker"
	"github.com/NordCoder/upwatch/internal/domain/notification"
)

var _ notification.PushSender = (*Pushover)(nil)

const defaultPushoverURL = "https://api.pushover.net/1/messages.json"

// Pushover posts form-encoded messages to the Pushover API. All sends share
// one limiter so an alert storm cannot exceed the configured rate.
type Pushover struct {
	apiURL  string
	client  *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

func NewPushover(cfg config.Push) *Pushover {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = defaultPushoverURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	lim := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return &Pushover{
		apiURL:  apiURL,
		client:  &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		limiter: lim,
		log:     zap.L().With(zap.String("component", "notifier.pushover")),
	}
}

func (p *Pushover) WithLogger(l *zap.Logger) *Pushover {
	if l == nil {
		return p
	}
	cp := *p
	cp.log = l.With(zap.String("component", "notifier.pushover"))
	return &cp
}

type pushoverResponse struct {
	Status  int      `json:"status"`
	Request string   `json:"request"`
	Errors  []string `json:"errors"`
}

func (p *Pushover) Send(ctx context.Context, userKey, apiToken notification.Secret, msg notification.PushMessage) error {
	if userKey.Empty() {
		return fmt.Errorf("pushover: user key is required")
	}
	if apiToken.Empty() {
		return fmt.Errorf("pushover: api token is required")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pushover rate limit: %w", err)
	}

	data := url.Values{}
	data.Set("token", apiToken.Reveal())
	data.Set("user", userKey.Reveal())
	data.Set("title", msg.Title)
	data.Set("message", msg.Body)
	data.Set("priority", strconv.Itoa(msg.Priority))
	if msg.URL != "" {
		data.Set("url", msg.URL)
		data.Set("url_title", "Open monitored URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("pushover request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		// url.Error carries the request URL only; the form body is never included.
		return fmt.Errorf("pushover send: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 16<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var pr pushoverResponse
		_ = json.Unmarshal(body, &pr)
		if len(pr.Errors) > 0 {
			return fmt.Errorf("pushover api status %d: %s", resp.StatusCode, strings.Join(pr.Errors, "; "))
		}
		return fmt.Errorf("pushover api status %d", resp.StatusCode)
	}

	p.log.Debug("push sent", zap.String("title", msg.Title), zap.Duration("elapsed", time.Since(start)))
	return nil
}
