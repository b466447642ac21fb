package notifier

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/NordCoder/upwatch/internal/domain/check"
	"github.com/NordCoder/upwatch/internal/domain/monitor"
	"github.com/NordCoder/upwatch/internal/domain/notification"
)

//go:embed "templates"
var templateFS embed.FS

const (
	statusTemplate = "templates/status.tmpl"
	pushBodyLimit  = 1024
)

// BuildMessage describes a notify-eligible transition in channel-neutral terms.
func BuildMessage(m *monitor.Monitor, res monitor.Result, c *check.Check) notification.Message {
	msg := notification.Message{
		MonitorName: m.Name,
		MonitorURL:  m.URL,
		Direction:   notification.DirectionUp,
		At:          c.CheckedAt,
		StatusCode:  c.StatusCode,
	}
	if res.To == monitor.StatusDown {
		msg.Direction = notification.DirectionDown
		if c.ErrorMessage != nil {
			msg.Error = *c.ErrorMessage
		}
		return msg
	}
	if res.DownSince != nil && c.CheckedAt.After(*res.DownSince) {
		msg.Downtime = c.CheckedAt.Sub(*res.DownSince)
	}
	return msg
}

type templateData struct {
	MonitorName string
	MonitorURL  string
	Status      string
	At          string
	Detail      string
	Downtime    string
}

func newTemplateData(msg notification.Message) templateData {
	d := templateData{
		MonitorName: msg.MonitorName,
		MonitorURL:  msg.MonitorURL,
		Status:      strings.ToUpper(string(msg.Direction)),
		At:          msg.At.UTC().Format(time.RFC3339),
	}
	if msg.Direction == notification.DirectionDown {
		switch {
		case msg.Error != "":
			d.Detail = msg.Error
		case msg.StatusCode != nil:
			d.Detail = fmt.Sprintf("HTTP %d", *msg.StatusCode)
		}
	}
	if msg.Downtime > 0 {
		d.Downtime = msg.Downtime.Round(time.Second).String()
	}
	return d
}

// Renderer turns messages into email and push payloads.
type Renderer struct {
	text *texttemplate.Template
	html *htmltemplate.Template
}

func NewRenderer() (*Renderer, error) {
	text, err := texttemplate.New("email").ParseFS(templateFS, statusTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	html, err := htmltemplate.New("email").ParseFS(templateFS, statusTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	return &Renderer{text: text, html: html}, nil
}

func (r *Renderer) Email(msg notification.Message) (notification.EmailData, error) {
	data := newTemplateData(msg)

	subject := new(bytes.Buffer)
	if err := r.text.ExecuteTemplate(subject, "subject", data); err != nil {
		return notification.EmailData{}, fmt.Errorf("render subject: %w", err)
	}
	plainBody := new(bytes.Buffer)
	if err := r.text.ExecuteTemplate(plainBody, "plainBody", data); err != nil {
		return notification.EmailData{}, fmt.Errorf("render plain body: %w", err)
	}
	htmlBody := new(bytes.Buffer)
	if err := r.html.ExecuteTemplate(htmlBody, "htmlBody", data); err != nil {
		return notification.EmailData{}, fmt.Errorf("render html body: %w", err)
	}

	return notification.EmailData{
		Subject:   strings.TrimSpace(subject.String()),
		PlainBody: plainBody.String(),
		HTMLBody:  htmlBody.String(),
	}, nil
}

func (r *Renderer) Push(msg notification.Message) (notification.PushMessage, error) {
	data := newTemplateData(msg)

	title := new(bytes.Buffer)
	if err := r.text.ExecuteTemplate(title, "subject", data); err != nil {
		return notification.PushMessage{}, fmt.Errorf("render title: %w", err)
	}
	body := new(bytes.Buffer)
	if err := r.text.ExecuteTemplate(body, "plainBody", data); err != nil {
		return notification.PushMessage{}, fmt.Errorf("render push body: %w", err)
	}

	text := strings.TrimSpace(body.String())
	if r := []rune(text); len(r) > pushBodyLimit {
		text = string(r[:pushBodyLimit])
	}
	priority := 0
	if msg.Direction == notification.DirectionDown {
		priority = 1
	}
	return notification.PushMessage{
		Title:    strings.TrimSpace(title.String()),
		Body:     text,
		URL:      msg.MonitorURL,
		Priority: priority,
	}, nil
}
