package telegram

import (
	"errors"
	"net"
	"net/http"
	"time"
)

const (
	dialTimeout           = 5 * time.Second
	tlsHandshakeTimeout   = 5 * time.Second
	idleConnTimeout       = 30 * time.Second
	responseHeaderTimeout = 5 * time.Second
	clientTimeout         = 30 * time.Second
	keepAliveInterval     = 30 * time.Second
	dialRetries           = 3
	dialBackoff           = 2 * time.Second
)

// newHTTPClient returns the client used for Bot API calls. Long polls hold the
// connection for up to the poll timeout, so the client timeout must exceed it.
func newHTTPClient(pollTimeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: keepAliveInterval}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ExpectContinueTimeout: time.Second,
	}
	if pollTimeout <= 0 {
		transport.ResponseHeaderTimeout = responseHeaderTimeout
	}

	timeout := clientTimeout
	if pollTimeout+responseHeaderTimeout > timeout {
		timeout = pollTimeout + responseHeaderTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &dialRetryTransport{base: transport, retries: dialRetries, backoff: dialBackoff},
	}
}

// dialRetryTransport retries requests whose connection could not be
// established. Once a request reached Telegram it is never replayed here, so
// a message is not delivered twice; the sender owns retries past that point.
type dialRetryTransport struct {
	base    http.RoundTripper
	retries int
	backoff time.Duration
}

func (t *dialRetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(req)
	for attempt := 1; attempt <= t.retries && err != nil && isDialError(err); attempt++ {
		if req.Body != nil && req.GetBody == nil {
			return nil, err
		}
		timer := time.NewTimer(t.backoff * time.Duration(attempt))
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}

		next := req.Clone(req.Context())
		if req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, bodyErr
			}
			next.Body = body
		}
		resp, err = base.RoundTrip(next)
	}
	return resp, err
}

func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
