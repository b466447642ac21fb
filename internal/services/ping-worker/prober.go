package ping_worker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/NordCoder/upwatch/internal/domain/check"
)

const drainLimit = 64 << 10

type ProberConfig struct {
	Timeout   time.Duration
	UserAgent string
}

// Prober issues a single GET per call. It never retries and never touches
// storage.
type Prober struct {
	c   *http.Client
	cfg ProberConfig
}

func NewProber(cfg ProberConfig) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   minDuration(10*time.Second, cfg.Timeout),
		ResponseHeaderTimeout: cfg.Timeout,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(transport),
	}
	return &Prober{c: client, cfg: cfg}
}

func (p *Prober) Probe(ctx context.Context, rawURL string) check.Outcome {
	target := normalizeURL(rawURL)
	if _, err := url.ParseRequestURI(target); err != nil || target == "" {
		return check.Unreachable{Reason: "invalid url"}
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return check.Unreachable{Reason: "invalid url: " + err.Error()}
	}
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}

	start := time.Now()
	resp, err := p.c.Do(req)
	if err != nil {
		return check.Unreachable{Reason: p.reason(err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))

	return check.Responded{
		StatusCode: resp.StatusCode,
		ElapsedMS:  time.Since(start).Milliseconds(),
	}
}

// reason maps transport failures onto short stable messages.
func (p *Prober) reason(err error) string {
	var (
		dnsErr     *net.DNSError
		netErr     net.Error
		certErr    *tls.CertificateVerificationError
		unknownCA  x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		invalidErr x509.CertificateInvalidError
		recordErr  tls.RecordHeaderError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Sprintf("timeout after %s", p.cfg.Timeout)
	case errors.As(err, &dnsErr):
		return "dns lookup failed: " + dnsErr.Err
	case errors.As(err, &certErr), errors.As(err, &unknownCA), errors.As(err, &hostErr),
		errors.As(err, &invalidErr), errors.As(err, &recordErr):
		return "tls handshake failed: " + innermost(err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return "connection refused"
	case errors.Is(err, syscall.ECONNRESET):
		return "connection reset"
	case errors.Is(err, context.Canceled):
		return "probe cancelled"
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Sprintf("timeout after %s", p.cfg.Timeout)
	case strings.Contains(err.Error(), "tls:"):
		return "tls handshake failed: " + innermost(err)
	default:
		return "request failed: " + innermost(err)
	}
}

func innermost(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		return uerr.Err.Error()
	}
	return err.Error()
}

func normalizeURL(s string) string {
	t := strings.TrimSpace(s)
	if t == "" {
		return t
	}
	if u, err := url.Parse(t); err == nil {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return t
		}
	}
	// Other explicit schemes pass through and fail the probe as unsupported.
	if strings.Contains(t, "://") {
		return t
	}
	return "http://" + t
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
