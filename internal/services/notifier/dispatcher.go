package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NordCoder/upwatch/internal/domain/check"
	"github.com/NordCoder/upwatch/internal/domain/monitor"
	"github.com/NordCoder/upwatch/internal/domain/notification"
	"github.com/NordCoder/upwatch/internal/domain/user"
	"github.com/NordCoder/upwatch/internal/obs"
	"github.com/NordCoder/upwatch/internal/repository"
)

var (
	mSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_sent_total", Help: "Notifications delivered, by channel.",
	}, []string{"channel"})
	mFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_failed_total", Help: "Notification attempts that failed, by channel.",
	}, []string{"channel"})
)

var (
	ErrNoAddress        = errors.New("no email address")
	ErrPushUnconfigured = errors.New("push credentials missing")
)

type ChannelResult struct {
	Attempted bool
	Err       error
}

func (r ChannelResult) OK() bool { return r.Attempted && r.Err == nil }

type DispatchResult struct {
	Email ChannelResult
	Push  ChannelResult
}

// Dispatcher sends one alert over every enabled channel. Channel failures
// are logged and reported in the result, never returned.
type Dispatcher struct {
	Settings   notification.SettingsRepo
	Users      user.Reader
	Deliveries notification.DeliveryRepo
	Email      notification.EmailSender
	Push       notification.PushSender
	Render     *Renderer
	Clock      notification.Clock
	Log        *zap.Logger
}

func (d *Dispatcher) Dispatch(ctx context.Context, m *monitor.Monitor, res monitor.Result, c *check.Check) DispatchResult {
	var out DispatchResult

	ctx, span := otel.Tracer("notifier").Start(ctx, "notifier.dispatch",
		trace.WithAttributes(
			attribute.Int64("monitor.id", m.ID),
			attribute.String("transition.to", string(res.To)),
		),
	)
	defer span.End()

	log := obs.WithTrace(ctx, d.Log).With(
		zap.String("component", "notifier.dispatcher"),
		zap.Int64("monitor_id", m.ID),
		zap.Int64("user_id", m.UserID),
	)

	settings, err := d.Settings.GetByUser(ctx, m.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Debug("no notification settings; nothing to send")
			return out
		}
		span.RecordError(err)
		log.Error("load notification settings", zap.Error(err))
		return out
	}

	msg := BuildMessage(m, res, c)

	if settings.EmailEnabled {
		out.Email = d.attempt(ctx, log, m, msg, notification.ChannelEmail, func() (string, error) {
			return d.sendEmail(ctx, m, settings, msg)
		})
	}
	if settings.PushEnabled {
		out.Push = d.attempt(ctx, log, m, msg, notification.ChannelPush, func() (string, error) {
			return d.sendPush(ctx, settings, msg)
		})
	}
	return out
}

// attempt runs one channel send in isolation, including from panics, and
// writes the delivery log row.
func (d *Dispatcher) attempt(
	ctx context.Context,
	log *zap.Logger,
	m *monitor.Monitor,
	msg notification.Message,
	ch notification.Channel,
	send func() (string, error),
) (res ChannelResult) {
	res.Attempted = true
	var payload string

	func() {
		defer func() {
			if p := recover(); p != nil {
				res.Err = fmt.Errorf("%s sender panic: %v", ch, p)
			}
		}()
		payload, res.Err = send()
	}()

	log = log.With(zap.String("channel", string(ch)), zap.String("direction", string(msg.Direction)))
	if res.Err != nil {
		mFailed.WithLabelValues(string(ch)).Inc()
		log.Warn("notification failed", zap.Error(res.Err))
	} else {
		mSent.WithLabelValues(string(ch)).Inc()
		log.Info("notification sent")
	}

	if d.Deliveries != nil {
		del := &notification.Delivery{
			MonitorID: m.ID,
			UserID:    m.UserID,
			Channel:   ch,
			Direction: msg.Direction,
			OK:        res.Err == nil,
			SentAt:    d.Clock.Now(),
			Payload:   payload,
		}
		if res.Err != nil {
			del.Error = res.Err.Error()
		}
		if err := d.Deliveries.Create(ctx, del); err != nil {
			log.Warn("record delivery", zap.Error(err))
		}
	}
	return res
}

func (d *Dispatcher) sendEmail(ctx context.Context, m *monitor.Monitor, s *notification.Settings, msg notification.Message) (string, error) {
	if d.Email == nil {
		return "", errors.New("email sender not configured")
	}
	var account string
	if s.EmailAddress == "" {
		u, err := d.Users.GetByID(ctx, m.UserID)
		if err != nil {
			return "", fmt.Errorf("load owner: %w", err)
		}
		account = u.Email
	}
	to := s.EmailTo(account)
	if to == "" {
		return "", ErrNoAddress
	}

	data, err := d.Render.Email(msg)
	if err != nil {
		return "", err
	}
	if err := d.Email.Send(ctx, to, data); err != nil {
		return data.Subject, fmt.Errorf("send email: %w", err)
	}
	return data.Subject, nil
}

func (d *Dispatcher) sendPush(ctx context.Context, s *notification.Settings, msg notification.Message) (string, error) {
	if d.Push == nil {
		return "", errors.New("push sender not configured")
	}
	if s.PushCredentialErr != nil {
		return "", s.PushCredentialErr
	}
	if !s.PushConfigured() {
		return "", ErrPushUnconfigured
	}
	pm, err := d.Render.Push(msg)
	if err != nil {
		return "", err
	}
	if err := d.Push.Send(ctx, s.PushUserKey, s.PushAPIToken, pm); err != nil {
		return pm.Title, fmt.Errorf("send push: %w", err)
	}
	return pm.Title, nil
}
