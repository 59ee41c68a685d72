package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/topupbot/core/config"
	"github.com/m3rciful/topupbot/core/logger"
	"github.com/m3rciful/topupbot/internal/config"
	"github.com/m3rciful/topupbot/internal/topup"
)

type fakeConversation struct {
	mu       sync.Mutex
	calls    []string
	failures []error
	err      error
}

func (f *fakeConversation) add(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeConversation) HandleStart(_ context.Context, chatID int64) error {
	f.add(fmt.Sprintf("start:%d", chatID))
	return f.err
}

func (f *fakeConversation) HandleContact(_ context.Context, chatID int64, phone string) error {
	f.add(fmt.Sprintf("contact:%d:%s", chatID, phone))
	return f.err
}

func (f *fakeConversation) HandleText(_ context.Context, chatID int64, text string) error {
	f.add(fmt.Sprintf("text:%d:%s", chatID, text))
	return f.err
}

func (f *fakeConversation) HandleDeliveryError(_ context.Context, chatID int64, cause error) {
	f.add(fmt.Sprintf("delivery:%d", chatID))
	f.mu.Lock()
	f.failures = append(f.failures, cause)
	f.mu.Unlock()
}

func newTestApp(conv conversation) *App {
	cfg := &config.Config{Config: coreconfig.Config{Telegram: coreconfig.TelegramConfig{Token: "t", RunMode: coreconfig.RunModeLongpoll}}}
	return &App{cfg: cfg, engine: conv, messenger: &messenger{}}
}

func newContext(t *testing.T, msg *tele.Message) tele.Context {
	t.Helper()
	bot, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return bot.NewContext(tele.Update{ID: 7, Message: msg})
}

func TestHandlersForwardToEngine(t *testing.T) {
	conv := &fakeConversation{}
	a := newTestApp(conv)
	chat := &tele.Chat{ID: 42}

	require.NoError(t, a.onStart(newContext(t, &tele.Message{Chat: chat, Text: "/start"})))
	require.NoError(t, a.onContact(newContext(t, &tele.Message{Chat: chat, Contact: &tele.Contact{PhoneNumber: "+998901234567"}})))
	require.NoError(t, a.onText(newContext(t, &tele.Message{Chat: chat, Text: "50000"})))
	require.NoError(t, a.onContact(newContext(t, &tele.Message{Chat: chat, Text: "no contact"})))

	assert.Equal(t, []string{"start:42", "contact:42:+998901234567", "text:42:50000"}, conv.calls)
}

func TestOnErrorSkipsFaultsAlreadyReported(t *testing.T) {
	conv := &fakeConversation{}
	a := newTestApp(conv)
	c := newContext(t, &tele.Message{Chat: &tele.Chat{ID: 42}, Text: "x"})

	a.onError(fmt.Errorf("%w: boom", topup.ErrUserNotified), c)
	assert.Empty(t, conv.calls)

	a.onError(errors.New("panic: nil map"), c)
	assert.Equal(t, []string{"delivery:42"}, conv.calls)
}

func TestDeliveryFailureNotifiesOnce(t *testing.T) {
	conv := &fakeConversation{}
	a := newTestApp(conv)
	ctx := logger.WithUpdateMeta(context.Background(), 1, 2, 42)

	a.onDeliveryFailure(ctx, actionReply, errors.New("telegram: Forbidden"))
	a.onDeliveryFailure(ctx, actionNotice, errors.New("telegram: Forbidden"))
	a.onDeliveryFailure(context.Background(), actionReply, errors.New("no chat"))

	assert.Equal(t, []string{"delivery:42"}, conv.calls)
}

func TestReplyMarkup(t *testing.T) {
	assert.Nil(t, replyMarkup(topup.Message{Text: "hi"}))
	assert.Nil(t, replyMarkup(topup.Message{Keyboard: topup.KeyboardMenu}))

	contact := replyMarkup(topup.Message{Keyboard: topup.KeyboardContact, Buttons: []string{topup.LabelRequestContact}})
	require.NotNil(t, contact)
	assert.True(t, contact.ReplyKeyboard[0][0].Contact)

	menu := replyMarkup(topup.Message{Keyboard: topup.KeyboardMenu, Buttons: []string{topup.LabelTopUp, topup.LabelWithdraw}})
	require.NotNil(t, menu)
	require.Len(t, menu.ReplyKeyboard, 1)
	assert.Equal(t, topup.LabelTopUp, menu.ReplyKeyboard[0][0].Text)
	assert.Equal(t, topup.LabelWithdraw, menu.ReplyKeyboard[0][1].Text)
}

func TestMessengerRequiresRunningBot(t *testing.T) {
	m := &messenger{}
	err := m.Send(context.Background(), 42, topup.Message{Text: "hi"})
	assert.Error(t, err)
}

func TestTelegramRunOptions(t *testing.T) {
	a := newTestApp(&fakeConversation{})
	opts, err := a.TelegramRunOptions()
	require.NoError(t, err)

	assert.NotNil(t, opts.Registry)
	_, _, ok := opts.Registry.LookupCommand("/start")
	assert.True(t, ok)
	// /start plus the text and contact routes.
	assert.Len(t, opts.Routes, 3)
	assert.NotNil(t, opts.DispatcherOptions.OnFailure)
	assert.NotNil(t, opts.OnError)
	require.NotEmpty(t, opts.Middlewares)
	assert.Equal(t, "recover", opts.Middlewares[0].Name)
}

func TestBootstrapRejectsForeignConfig(t *testing.T) {
	_, err := Bootstrap(context.Background(), &coreOnly{})
	assert.Error(t, err)
}

type coreOnly struct{ cfg coreconfig.Config }

func (c *coreOnly) CoreConfig() *coreconfig.Config { return &c.cfg }
