package topup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/topupbot/internal/click"
	"github.com/m3rciful/topupbot/internal/i18n"
)

const chatID int64 = 1001

type gatewayCall struct {
	Op        string
	ServiceID int64
	Args      []string
}

type fakeGateway struct {
	mu      sync.Mutex
	calls   []gatewayCall
	results map[string]click.Result
	errs    map[string]error
	delay   time.Duration
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{results: map[string]click.Result{}, errs: map[string]error{}}
}

func (g *fakeGateway) respond(op string, args ...string) (click.Result, error) {
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, gatewayCall{Op: op, Args: args})
	return g.results[op], g.errs[op]
}

func (g *fakeGateway) CreateCardToken(_ context.Context, serviceID int64, cardNumber, expireDate string, temporary bool) (click.Result, error) {
	return g.respond(click.OpCreateCardToken, fmt.Sprint(serviceID), cardNumber, expireDate, fmt.Sprint(temporary))
}

func (g *fakeGateway) VerifyCardToken(_ context.Context, serviceID int64, cardToken, smsCode string) (click.Result, error) {
	return g.respond(click.OpVerifyCardToken, fmt.Sprint(serviceID), cardToken, smsCode)
}

func (g *fakeGateway) PaymentWithToken(_ context.Context, serviceID int64, cardToken string, amount decimal.Decimal, merchantTransID string) (click.Result, error) {
	return g.respond(click.OpPaymentWithToken, fmt.Sprint(serviceID), cardToken, amount.String(), merchantTransID)
}

func (g *fakeGateway) ops() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.calls))
	for _, c := range g.calls {
		out = append(out, c.Op)
	}
	return out
}

type sentMessage struct {
	ChatID int64
	Message
}

type recordingMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (m *recordingMessenger) Send(_ context.Context, chatID int64, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{ChatID: chatID, Message: msg})
	return m.err
}

func (m *recordingMessenger) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, s := range m.sent {
		out = append(out, s.Text)
	}
	return out
}

func (m *recordingMessenger) last() sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

// idTexts renders message ids verbatim, appending the provider note or code when present.
type idTexts struct{}

func (idTexts) Text(id string, data map[string]any) string {
	if note, ok := data["Note"]; ok && note != "" {
		return fmt.Sprintf("%s: %v", id, note)
	}
	if code, ok := data["Code"]; ok {
		return fmt.Sprintf("%s: code %v", id, code)
	}
	return id
}

type memJournal struct {
	mu       sync.Mutex
	attempts []Attempt
	err      error
}

func (j *memJournal) Record(_ context.Context, a Attempt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts = append(j.attempts, a)
	return j.err
}

type harness struct {
	engine    *Engine
	gateway   *fakeGateway
	messenger *recordingMessenger
	journal   *memJournal
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		gateway:   newFakeGateway(),
		messenger: &recordingMessenger{},
		journal:   &memJournal{},
	}
	engine, err := NewEngine(Options{
		ServiceID: 77,
		Gateway:   h.gateway,
		Messenger: h.messenger,
		Texts:     idTexts{},
		Journal:   h.journal,
	})
	require.NoError(t, err)
	h.engine = engine
	return h
}

func (h *harness) say(t *testing.T, texts ...string) {
	t.Helper()
	for _, text := range texts {
		require.NoError(t, h.engine.HandleText(context.Background(), chatID, text))
	}
}

func (h *harness) reachExpiry(t *testing.T) {
	t.Helper()
	require.NoError(t, h.engine.HandleContact(context.Background(), chatID, "+998901234567"))
	h.say(t, LabelTopUp, "SB123", "50000", "4111111111111111")
	require.Equal(t, StateAwaitingExpiry, h.engine.Session(chatID).State())
}

func TestHappyPath(t *testing.T) {
	h := newHarness(t)
	h.gateway.results[click.OpCreateCardToken] = click.Result{CardToken: "tok_abc"}
	h.gateway.results[click.OpPaymentWithToken] = click.Result{PaymentID: 555}

	require.NoError(t, h.engine.HandleStart(context.Background(), chatID))
	h.reachExpiry(t)
	h.say(t, "1227")
	assert.Equal(t, StateAwaitingSMSCode, h.engine.Session(chatID).State())
	h.say(t, "123456")

	assert.Equal(t, []string{
		MsgWelcome, MsgMenu, MsgPromptSpinbetID, MsgPromptAmount, MsgPromptCardNumber,
		MsgPromptExpiry, MsgPromptSMSCode, MsgPaymentSuccess,
	}, h.messenger.texts())
	assert.Equal(t, []string{click.OpCreateCardToken, click.OpVerifyCardToken, click.OpPaymentWithToken}, h.gateway.ops())
	assert.Equal(t, []string{"77", "4111111111111111", "1227", "true"}, h.gateway.calls[0].Args)
	assert.Equal(t, []string{"77", "tok_abc", "123456"}, h.gateway.calls[1].Args)
	assert.Equal(t, []string{"77", "tok_abc", "50000", "SB123"}, h.gateway.calls[2].Args)
	assert.True(t, h.engine.Session(chatID).Empty())

	require.Len(t, h.journal.attempts, 1)
	a := h.journal.attempts[0]
	assert.Equal(t, chatID, a.ChatID)
	assert.Equal(t, AttemptSuccess, a.Status)
	assert.Equal(t, "+998901234567", a.PhoneNumber)
	assert.Equal(t, int64(555), a.PaymentID)
	assert.Equal(t, "411111******1111", a.MaskedCard)
}

func TestInvalidCardTokenClearsSession(t *testing.T) {
	h := newHarness(t)
	h.gateway.results[click.OpCreateCardToken] = click.Result{ErrorCode: 1, ErrorNote: "Invalid card"}

	h.reachExpiry(t)
	h.say(t, "1227")

	last := h.messenger.last()
	assert.Contains(t, last.Text, "Invalid card")
	assert.Equal(t, KeyboardMenu, last.Keyboard)
	assert.True(t, h.engine.Session(chatID).Empty())
	assert.Empty(t, h.journal.attempts)

	// A fresh top-up can begin straight away.
	h.say(t, LabelTopUp)
	assert.Equal(t, StateAwaitingSpinbetID, h.engine.Session(chatID).State())
}

func TestWrongSMSCodeClearsSession(t *testing.T) {
	h := newHarness(t)
	h.gateway.results[click.OpCreateCardToken] = click.Result{CardToken: "tok_abc"}
	h.gateway.results[click.OpVerifyCardToken] = click.Result{ErrorCode: 1, ErrorNote: "Incorrect code"}

	h.reachExpiry(t)
	h.say(t, "1227", "000000")

	assert.Contains(t, h.messenger.last().Text, "Incorrect code")
	assert.True(t, h.engine.Session(chatID).Empty())
	assert.NotContains(t, h.gateway.ops(), click.OpPaymentWithToken)
	require.Len(t, h.journal.attempts, 1)
	assert.Equal(t, AttemptVerifyFailed, h.journal.attempts[0].Status)
}

func TestPaymentDeclinedShowsNote(t *testing.T) {
	h := newHarness(t)
	h.gateway.results[click.OpCreateCardToken] = click.Result{CardToken: "tok_abc"}
	h.gateway.results[click.OpPaymentWithToken] = click.Result{ErrorCode: -31, ErrorNote: "Insufficient funds"}

	h.reachExpiry(t)
	h.say(t, "1227", "123456")

	assert.Equal(t, MsgPaymentError+": Insufficient funds", h.messenger.last().Text)
	assert.True(t, h.engine.Session(chatID).Empty())
	assert.Equal(t, AttemptDeclined, h.journal.attempts[0].Status)
	assert.Equal(t, -31, h.journal.attempts[0].ErrorCode)
}

func TestVerifyErrorWithoutNoteShowsCode(t *testing.T) {
	h := newHarness(t)
	h.gateway.results[click.OpCreateCardToken] = click.Result{CardToken: "tok_abc"}
	h.gateway.results[click.OpVerifyCardToken] = click.Result{ErrorCode: -301}

	h.reachExpiry(t)
	h.say(t, "1227", "000000")

	assert.Equal(t, MsgVerifyError+": code -301", h.messenger.last().Text)
	assert.True(t, h.engine.Session(chatID).Empty())
}

func TestMalformedAmountDoesNotAdvance(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.HandleContact(context.Background(), chatID, "+998901234567"))
	h.say(t, LabelTopUp, "SB123", "-10")

	s := h.engine.Session(chatID)
	assert.Equal(t, StateAwaitingAmount, s.State())
	id, err := s.SpinbetID()
	require.NoError(t, err)
	assert.Equal(t, "SB123", id)
	assert.Equal(t, MsgInvalidAmount, h.messenger.last().Text)

	h.say(t, "12.50")
	assert.Equal(t, StateAwaitingCardNumber, h.engine.Session(chatID).State())
}

func TestTransportFaultAtExpiryKeepsStep(t *testing.T) {
	h := newHarness(t)
	h.gateway.errs[click.OpCreateCardToken] = &click.TransportError{Op: click.OpCreateCardToken, Err: context.DeadlineExceeded}

	h.reachExpiry(t)
	h.say(t, "1227")

	last := h.messenger.last()
	assert.Equal(t, MsgGenericError, last.Text)
	assert.True(t, last.Notice)
	assert.Equal(t, StateAwaitingExpiry, h.engine.Session(chatID).State())

	// The user may resend the expiry once the gateway recovers.
	h.gateway.errs = map[string]error{}
	h.gateway.results[click.OpCreateCardToken] = click.Result{CardToken: "tok_abc"}
	h.say(t, "1227")
	assert.Equal(t, StateAwaitingSMSCode, h.engine.Session(chatID).State())
}

func TestTransportFaultAtChargeClearsSession(t *testing.T) {
	h := newHarness(t)
	h.gateway.results[click.OpCreateCardToken] = click.Result{CardToken: "tok_abc"}
	h.gateway.errs[click.OpPaymentWithToken] = &click.TransportError{Op: click.OpPaymentWithToken, Err: errors.New("connection reset")}

	h.reachExpiry(t)
	h.say(t, "1227", "123456")

	assert.Equal(t, MsgGenericError, h.messenger.last().Text)
	assert.True(t, h.engine.Session(chatID).Empty())
	assert.Equal(t, AttemptError, h.journal.attempts[0].Status)
}

func TestJournalFailureDoesNotAffectUser(t *testing.T) {
	h := newHarness(t)
	h.journal.err = errors.New("db down")
	h.gateway.results[click.OpCreateCardToken] = click.Result{CardToken: "tok_abc"}

	h.reachExpiry(t)
	h.say(t, "1227", "123456")
	assert.Equal(t, MsgPaymentSuccess, h.messenger.last().Text)
}

func TestWithdrawAndUnmatchedText(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.HandleContact(context.Background(), chatID, "+998901234567"))

	h.say(t, "hello there")
	assert.Equal(t, []string{MsgMenu}, h.messenger.texts())

	h.say(t, LabelWithdraw)
	assert.Equal(t, MsgWithdrawUnavailable, h.messenger.last().Text)
	assert.Equal(t, StateMenu, h.engine.Session(chatID).State())

	h.say(t, LabelTopUp, "SB1", LabelWithdraw)
	assert.Equal(t, StateAwaitingAmount, h.engine.Session(chatID).State())
}

func TestContactAfterClearStartsFresh(t *testing.T) {
	h := newHarness(t)
	h.gateway.results[click.OpCreateCardToken] = click.Result{ErrorCode: 1, ErrorNote: "Invalid card"}
	h.reachExpiry(t)
	h.say(t, "1227")
	require.True(t, h.engine.Session(chatID).Empty())

	require.NoError(t, h.engine.HandleContact(context.Background(), chatID, "+998909999999"))
	s := h.engine.Session(chatID)
	assert.Equal(t, StateMenu, s.State())
	assert.Equal(t, "+998909999999", s.PhoneNumber())
	_, err := s.SpinbetID()
	assert.ErrorIs(t, err, ErrFieldUnavailable)
}

func TestDeterministicReplay(t *testing.T) {
	run := func() (Session, []string) {
		h := newHarness(t)
		h.gateway.results[click.OpCreateCardToken] = click.Result{CardToken: "tok_abc"}
		h.reachExpiry(t)
		h.say(t, "oops", "1227")
		return h.engine.Session(chatID), h.messenger.texts()
	}
	s1, t1 := run()
	s2, t2 := run()
	assert.Equal(t, t1, t2)
	assert.Equal(t, s1.State(), s2.State())
	tok1, _ := s1.CardToken()
	tok2, _ := s2.CardToken()
	assert.Equal(t, tok1, tok2)
	a1, _ := s1.Amount()
	a2, _ := s2.Amount()
	assert.True(t, a1.Equal(a2))
}

func TestDeliveryErrorNotifiesWithoutStateChange(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.HandleContact(context.Background(), chatID, "+998901234567"))
	h.say(t, LabelTopUp)

	h.engine.HandleDeliveryError(context.Background(), chatID, errors.New("telegram: bot was blocked"))
	last := h.messenger.last()
	assert.Equal(t, MsgGenericError, last.Text)
	assert.True(t, last.Notice)
	assert.Equal(t, StateAwaitingSpinbetID, h.engine.Session(chatID).State())
}

func TestPanicIsConvertedToNotice(t *testing.T) {
	h := newHarness(t)
	h.engine.gateway = panicGateway{h.gateway}
	h.reachExpiry(t)

	err := h.engine.HandleText(context.Background(), chatID, "1227")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUserNotified)
	assert.Equal(t, MsgGenericError, h.messenger.last().Text)
	assert.Equal(t, StateAwaitingExpiry, h.engine.Session(chatID).State())
}

type panicGateway struct{ *fakeGateway }

func (panicGateway) CreateCardToken(context.Context, int64, string, string, bool) (click.Result, error) {
	panic("boom")
}

type verifyPanicGateway struct{ *fakeGateway }

func (verifyPanicGateway) VerifyCardToken(context.Context, int64, string, string) (click.Result, error) {
	panic("boom")
}

type chargePanicGateway struct{ *fakeGateway }

func (chargePanicGateway) PaymentWithToken(context.Context, int64, string, decimal.Decimal, string) (click.Result, error) {
	panic("boom")
}

func TestPanicAtSMSStepClearsSession(t *testing.T) {
	cases := map[string]func(*fakeGateway) Gateway{
		"verify": func(g *fakeGateway) Gateway { return verifyPanicGateway{g} },
		"charge": func(g *fakeGateway) Gateway { return chargePanicGateway{g} },
	}
	for name, wrap := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.gateway.results[click.OpCreateCardToken] = click.Result{CardToken: "tok_abc"}
			h.engine.gateway = wrap(h.gateway)
			h.reachExpiry(t)
			h.say(t, "1227")
			require.Equal(t, StateAwaitingSMSCode, h.engine.Session(chatID).State())
			sentBefore := len(h.messenger.texts())

			err := h.engine.HandleText(context.Background(), chatID, "123456")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUserNotified)

			sess := h.engine.Session(chatID)
			assert.True(t, sess.Empty())
			_, tokenErr := sess.CardToken()
			assert.ErrorIs(t, tokenErr, ErrFieldUnavailable)

			require.Len(t, h.journal.attempts, 1)
			assert.Equal(t, AttemptError, h.journal.attempts[0].Status)
			assert.Equal(t, chatID, h.journal.attempts[0].ChatID)

			// One generic notice, carrying the menu so a new top-up can start.
			assert.Equal(t, []string{MsgGenericError}, h.messenger.texts()[sentBefore:])
			assert.Equal(t, KeyboardMenu, h.messenger.last().Keyboard)
		})
	}
}

func TestMessengerErrorIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.messenger.err = errors.New("queue closed")
	require.NoError(t, h.engine.HandleContact(context.Background(), chatID, "+998901234567"))
	assert.Equal(t, StateMenu, h.engine.Session(chatID).State())
}

func TestKeyboardsCarryLocalizedLabels(t *testing.T) {
	uz, err := i18n.New("uz")
	require.NoError(t, err)
	messenger := &recordingMessenger{}
	engine, err := NewEngine(Options{ServiceID: 1, Gateway: newFakeGateway(), Messenger: messenger, Texts: uz})
	require.NoError(t, err)

	require.NoError(t, engine.HandleStart(context.Background(), chatID))
	assert.Equal(t, KeyboardContact, messenger.last().Keyboard)
	assert.Equal(t, []string{uz.Text(MsgButtonContact, nil)}, messenger.last().Buttons)

	require.NoError(t, engine.HandleContact(context.Background(), chatID, "+998901234567"))
	menu := messenger.last()
	assert.Equal(t, KeyboardMenu, menu.Keyboard)
	require.Len(t, menu.Buttons, 2)

	// Localized and literal labels are both menu selections.
	require.NoError(t, engine.HandleText(context.Background(), chatID, menu.Buttons[0]))
	assert.Equal(t, StateAwaitingSpinbetID, engine.Session(chatID).State())
	require.NoError(t, engine.HandleText(context.Background(), chatID, LabelTopUp))
	assert.Equal(t, StateAwaitingSpinbetID, engine.Session(chatID).State())
}

func TestChatsRunIndependently(t *testing.T) {
	h := newHarness(t)
	h.gateway.delay = 20 * time.Millisecond
	h.gateway.results[click.OpCreateCardToken] = click.Result{CardToken: "tok"}

	var wg sync.WaitGroup
	for i := int64(0); i < 8; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			ctx := context.Background()
			assert.NoError(t, h.engine.HandleContact(ctx, id, "+99890"))
			for _, text := range []string{LabelTopUp, "SB", "10", "4111111111111111", "1227"} {
				assert.NoError(t, h.engine.HandleText(ctx, id, text))
			}
		}(i)
	}
	wg.Wait()

	for i := int64(0); i < 8; i++ {
		assert.Equal(t, StateAwaitingSMSCode, h.engine.Session(i).State())
	}
}

func TestNewEngineRequiresCollaborators(t *testing.T) {
	_, err := NewEngine(Options{})
	assert.Error(t, err)
	_, err = NewEngine(Options{Gateway: newFakeGateway(), Messenger: &recordingMessenger{}})
	assert.Error(t, err)
}
