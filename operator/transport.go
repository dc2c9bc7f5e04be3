package operator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kfoerderer/gridcontrol-bems-sub001/auth"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/logger"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// transport performs authenticated requests with exponential backoff.
// Network errors and 5xx responses are retried, other failures are final.
type transport struct {
	name       string
	base       string
	client     *http.Client
	auth       auth.Authorizer
	maxRetries int
	backoff    time.Duration
	log        logger.Logger
}

func newTransport(name string, cfg ClientConfig, client *http.Client, log logger.Logger) *transport {
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout()}
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &transport{
		name:       name,
		base:       strings.TrimRight(cfg.BaseURL, "/"),
		client:     client,
		auth:       auth.New(cfg.Auth),
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.backoff(),
		log:        log,
	}
}

func (t *transport) url(parts ...string) string {
	var b strings.Builder
	b.WriteString(t.base)
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(p)
	}
	return b.String()
}

// do sends the request and returns status code and body of the final
// attempt. A 404 is returned without error when allowNotFound is set.
func (t *transport) do(ctx context.Context, method, url, contentType string, body []byte, allowNotFound bool) (int, []byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.backoff
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(t.maxRetries)), ctx)

	var code int
	var respBody []byte
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if err := t.auth.SetAuthHeader(ctx, req); err != nil {
			return err
		}
		resp, err := t.client.Do(req)
		if err != nil {
			t.log.Warnf("%s attempt %d: %s %s: %v", t.name, attempt, method, url, err)
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		respBody, _ = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		code = resp.StatusCode
		switch {
		case code >= 200 && code < 300:
			return nil
		case code == http.StatusNotFound && allowNotFound:
			return nil
		}
		serr := &StatusError{Method: method, URL: url, Code: code, Body: strings.TrimSpace(string(respBody))}
		if code >= 500 || code == http.StatusTooManyRequests {
			t.log.Warnf("%s attempt %d: %v", t.name, attempt, serr)
			return serr
		}
		return backoff.Permanent(serr)
	}, policy)
	outboundRequests.WithLabelValues(t.name, result(err)).Inc()
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return code, respBody, err
	}
	return code, respBody, nil
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
