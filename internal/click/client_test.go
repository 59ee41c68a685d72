package click

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Unix(1700000000, 0)

type capturedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   map[string]any
}

func newTestClient(t *testing.T, status int, reply string) (*Client, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Method = r.Method
		captured.Path = r.URL.Path
		captured.Header = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			dec := json.NewDecoder(strings.NewReader(string(raw)))
			dec.UseNumber()
			_ = dec.Decode(&captured.Body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)

	client := New(Options{
		BaseURL:    srv.URL + "/v2/merchant/",
		HTTPClient: srv.Client(),
		Timeout:    2 * time.Second,
		Signer:     Signer{MerchantUserID: 42, SecretKey: "secret", Now: func() time.Time { return fixedNow }},
	})
	return client, captured
}

func TestCreateCardTokenSuccess(t *testing.T) {
	client, req := newTestClient(t, http.StatusOK, `{"error_code":0,"error_note":"","card_token":"tok_abc","phone_number":"99890*****67","temporary":1}`)

	res, err := client.CreateCardToken(context.Background(), 7, "4111111111111111", "1227", true)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "tok_abc", res.CardToken)
	assert.Equal(t, 1, res.Temporary)

	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/v2/merchant/card_token/request", req.Path)
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, GenerateAuthHeader(42, "secret", fixedNow).String(), req.Header.Get("Auth"))
	assert.Equal(t, json.Number("7"), req.Body["service_id"])
	assert.Equal(t, "4111111111111111", req.Body["card_number"])
	assert.Equal(t, "1227", req.Body["expire_date"])
	assert.Equal(t, json.Number("1"), req.Body["temporary"])
}

func TestCreateCardTokenBusinessError(t *testing.T) {
	client, _ := newTestClient(t, http.StatusOK, `{"error_code":-5017,"error_note":"Invalid card"}`)

	res, err := client.CreateCardToken(context.Background(), 7, "4111111111111111", "1227", true)
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, -5017, res.ErrorCode)
	assert.Equal(t, "Invalid card", res.ErrorNote)
}

func TestCreateCardTokenSuccessWithoutToken(t *testing.T) {
	client, _ := newTestClient(t, http.StatusOK, `{"error_code":0}`)

	_, err := client.CreateCardToken(context.Background(), 7, "4111111111111111", "1227", true)
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestVerifyCardToken(t *testing.T) {
	client, req := newTestClient(t, http.StatusOK, `{"error_code":0,"error_note":"","card_number":"411111******1111"}`)

	res, err := client.VerifyCardToken(context.Background(), 7, "tok_abc", "123456")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "/v2/merchant/card_token/verify", req.Path)
	assert.Equal(t, "tok_abc", req.Body["card_token"])
	assert.Equal(t, "123456", req.Body["sms_code"])
}

func TestPaymentWithTokenSendsAmountAsNumber(t *testing.T) {
	client, req := newTestClient(t, http.StatusOK, `{"error_code":0,"error_note":"","payment_id":9001,"payment_status":2}`)

	res, err := client.PaymentWithToken(context.Background(), 7, "tok_abc", decimal.RequireFromString("50000.50"), "SB123")
	require.NoError(t, err)
	assert.Equal(t, int64(9001), res.PaymentID)
	assert.Equal(t, 2, res.PaymentStatus)
	assert.Equal(t, "/v2/merchant/card_token/payment", req.Path)
	assert.Equal(t, json.Number("50000.5"), req.Body["amount"])
	assert.Equal(t, "SB123", req.Body["transaction_parameter"])
}

func TestDeleteCardToken(t *testing.T) {
	client, req := newTestClient(t, http.StatusOK, `{"error_code":0,"error_note":""}`)

	res, err := client.DeleteCardToken(context.Background(), 7, "tok_abc")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "/v2/merchant/card_token/7/tok_abc", req.Path)
	assert.Nil(t, req.Body)
}

func TestMalformedResponseIsTransportError(t *testing.T) {
	cases := map[string]struct {
		status int
		reply  string
	}{
		"html error page":    {http.StatusBadGateway, "<html>bad gateway</html>"},
		"missing error_code": {http.StatusOK, `{"error_note":"?"}`},
		"empty body":         {http.StatusOK, ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			client, _ := newTestClient(t, tc.status, tc.reply)
			_, err := client.VerifyCardToken(context.Background(), 7, "tok", "1")
			require.Error(t, err)

			var te *TransportError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, OpVerifyCardToken, te.Op)
			assert.Equal(t, tc.status, te.StatusCode)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestNonSuccessStatusWithVerdictIsBusinessError(t *testing.T) {
	client, _ := newTestClient(t, http.StatusBadRequest, `{"error_code":-500,"error_note":"Incorrect code"}`)

	res, err := client.VerifyCardToken(context.Background(), 7, "tok", "000000")
	require.NoError(t, err)
	assert.Equal(t, "Incorrect code", res.ErrorNote)
}

func TestTimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	client := New(Options{BaseURL: srv.URL, HTTPClient: srv.Client(), Timeout: 50 * time.Millisecond})
	_, err := client.PaymentWithToken(context.Background(), 7, "tok", decimal.NewFromInt(1), "SB1")
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUnreachableGatewayIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client := New(Options{BaseURL: base, Timeout: time.Second})
	_, err := client.DeleteCardToken(context.Background(), 7, "tok")
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

func TestNewDefaults(t *testing.T) {
	c := New(Options{})
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, DefaultTimeout, c.timeout)
	assert.NotNil(t, c.http)
}
