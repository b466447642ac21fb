package notification

import (
	"context"
	"time"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

type Direction string

const (
	DirectionDown Direction = "down"
	DirectionUp   Direction = "up"
)

type Settings struct {
	UserID       int64  `json:"user_id"`
	EmailEnabled bool   `json:"email_enabled"`
	EmailAddress string `json:"email_address,omitempty"`
	PushEnabled  bool   `json:"push_enabled"`
	PushUserKey  Secret `json:"push_user_key"`
	PushAPIToken Secret `json:"push_api_token"`

	// PushCredentialErr is set when the stored push credential could not be
	// read back. Push then fails on its own while email is unaffected.
	PushCredentialErr error `json:"-"`
}

// DefaultSettings is what a freshly created settings record holds.
func DefaultSettings(userID int64) *Settings {
	return &Settings{UserID: userID, EmailEnabled: true}
}

// EmailTo prefers the override address and falls back to the account email.
func (s *Settings) EmailTo(accountEmail string) string {
	if s.EmailAddress != "" {
		return s.EmailAddress
	}
	return accountEmail
}

func (s *Settings) PushConfigured() bool {
	return s.PushEnabled && !s.PushUserKey.Empty() && !s.PushAPIToken.Empty()
}

// Message is the channel-neutral content of one alert.
type Message struct {
	MonitorName string
	MonitorURL  string
	Direction   Direction
	At          time.Time
	StatusCode  *int
	Error       string
	Downtime    time.Duration
}

type EmailData struct {
	Subject   string
	PlainBody string
	HTMLBody  string
}

type PushMessage struct {
	Title    string
	Body     string
	URL      string
	Priority int
}

// Delivery is one channel attempt written to the delivery log.
type Delivery struct {
	ID        int64     `json:"id"`
	MonitorID int64     `json:"monitor_id"`
	UserID    int64     `json:"user_id"`
	Channel   Channel   `json:"channel"`
	Direction Direction `json:"direction"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	SentAt    time.Time `json:"sent_at"`
	Payload   string    `json:"payload"`
}

type EmailSender interface {
	Send(ctx context.Context, to string, data EmailData) error
}

type PushSender interface {
	Send(ctx context.Context, userKey, apiToken Secret, msg PushMessage) error
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
