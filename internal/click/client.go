// Package click is a client for the Click merchant card-token API: card
// tokenization, SMS verification, charging with a verified token and token
// release.
package click

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/topupbot/core/logger"
	"github.com/m3rciful/topupbot/internal/metrics"
)

const (
	// DefaultBaseURL is the production merchant API root.
	DefaultBaseURL = "https://api.click.uz/v2/merchant"
	// DefaultTimeout bounds a single call when Options.Timeout is zero.
	DefaultTimeout = 15 * time.Second

	maxResponseBytes = 1 << 20
)

// Operation names used in logs and metrics.
const (
	OpCreateCardToken  = "card_token.request"
	OpVerifyCardToken  = "card_token.verify"
	OpPaymentWithToken = "card_token.payment"
	OpDeleteCardToken  = "card_token.delete"
)

// Options configure a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Signer     Signer
}

// Client performs authenticated gateway calls. It is safe for concurrent use.
// Calls are never retried: a charge must not be sent twice.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	signer  Signer
}

// New builds a Client from opts, filling defaults for blank fields.
func New(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = buildHTTPClient()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{baseURL: base, http: hc, timeout: timeout, signer: opts.Signer}
}

func buildHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     60 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Transport: transport}
}

// CreateCardToken requests a token for the card. A successful Result carries CardToken.
func (c *Client) CreateCardToken(ctx context.Context, serviceID int64, cardNumber, expireDate string, temporary bool) (Result, error) {
	body := struct {
		ServiceID  int64  `json:"service_id"`
		CardNumber string `json:"card_number"`
		ExpireDate string `json:"expire_date"`
		Temporary  int    `json:"temporary"`
	}{serviceID, cardNumber, expireDate, boolToInt(temporary)}

	res, err := c.do(ctx, OpCreateCardToken, http.MethodPost, "/card_token/request", body)
	if err != nil {
		return Result{}, err
	}
	if res.OK() && strings.TrimSpace(res.CardToken) == "" {
		err := &TransportError{Op: OpCreateCardToken, Err: fmt.Errorf("%w: success without card_token", ErrMalformedResponse)}
		return Result{}, err
	}
	return res, nil
}

// VerifyCardToken confirms the one-time code sent to the cardholder.
func (c *Client) VerifyCardToken(ctx context.Context, serviceID int64, cardToken, smsCode string) (Result, error) {
	body := struct {
		ServiceID int64  `json:"service_id"`
		CardToken string `json:"card_token"`
		SMSCode   string `json:"sms_code"`
	}{serviceID, cardToken, smsCode}
	return c.do(ctx, OpVerifyCardToken, http.MethodPost, "/card_token/verify", body)
}

// PaymentWithToken charges amount against a verified token. merchantTransID
// tags the transaction with the destination account reference.
func (c *Client) PaymentWithToken(ctx context.Context, serviceID int64, cardToken string, amount decimal.Decimal, merchantTransID string) (Result, error) {
	body := struct {
		ServiceID            int64       `json:"service_id"`
		CardToken            string      `json:"card_token"`
		Amount               json.Number `json:"amount"`
		TransactionParameter string      `json:"transaction_parameter"`
	}{serviceID, cardToken, json.Number(amount.String()), merchantTransID}
	return c.do(ctx, OpPaymentWithToken, http.MethodPost, "/card_token/payment", body)
}

// DeleteCardToken releases a token.
func (c *Client) DeleteCardToken(ctx context.Context, serviceID int64, cardToken string) (Result, error) {
	path := "/card_token/" + strconv.FormatInt(serviceID, 10) + "/" + url.PathEscape(cardToken)
	return c.do(ctx, OpDeleteCardToken, http.MethodDelete, path, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any) (Result, error) {
	start := time.Now()
	res, status, err := c.roundTrip(ctx, op, method, path, payload)
	took := time.Since(start)

	attrs := []slog.Attr{
		slog.String("event", "gateway.call"),
		slog.String("op", op),
		slog.Duration("duration", logger.RoundMS(took)),
	}
	if status != 0 {
		attrs = append(attrs, slog.Int("http_code", status))
	}

	switch {
	case err != nil:
		metrics.ObserveGatewayCall(op, metrics.OutcomeTransportError, took)
		attrs = append(attrs, slog.String("status", "fail"), slog.String("err", err.Error()))
		logger.Click.LogAttrs(ctx, slog.LevelWarn, "gateway call failed", attrs...)
		return Result{}, err
	case !res.OK():
		metrics.ObserveGatewayCall(op, metrics.OutcomeBusinessError, took)
		attrs = append(attrs,
			slog.String("status", "declined"),
			slog.Int("error_code", res.ErrorCode),
			slog.String("error_note", res.ErrorNote),
		)
		logger.Click.LogAttrs(ctx, slog.LevelInfo, "gateway declined", attrs...)
	default:
		metrics.ObserveGatewayCall(op, metrics.OutcomeOK, took)
		attrs = append(attrs, slog.String("status", "ok"))
		if res.PaymentID != 0 {
			attrs = append(attrs, slog.Int64("payment_id", res.PaymentID))
		}
		logger.Click.LogAttrs(ctx, slog.LevelInfo, "gateway ok", attrs...)
	}
	return res, nil
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, payload any) (Result, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Result{}, 0, &TransportError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return Result{}, 0, &TransportError{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Auth", c.signer.Sign().String())

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timeout after %s: %w", c.timeout, err)
		}
		return Result{}, 0, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, resp.StatusCode, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	var wire wireResult
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Result{}, resp.StatusCode, &TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %v", ErrMalformedResponse, err),
		}
	}
	if wire.ErrorCode == nil {
		return Result{}, resp.StatusCode, &TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: missing error_code", ErrMalformedResponse),
		}
	}
	return wire.result(), resp.StatusCode, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
