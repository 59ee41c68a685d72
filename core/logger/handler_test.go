package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// emit writes a single record through a fresh handler and returns the rendered line.
func emit(t *testing.T, format logFormat, ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) string {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:  slog.LevelDebug,
		writer: aw,
		format: format,
	})
	LogEvent(ctx, slog.New(handler).With("component", component), level, event, attrs...)
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log line")
	}
	return line
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	ctx := WithUpdateMeta(WithRID(context.Background(), "42:9:7"), 42, 7, 9)
	line := emit(t, formatKV, ctx, "topup", slog.LevelInfo, "topup.reply",
		slog.String("status", "ok"),
		slog.String("state", "awaiting_amount"),
	)

	tokens := strings.Split(line, " ")
	expected := []string{"ts=", "level=INFO", "component=topup", "event=topup.reply", "status=ok", "rid=42:9:7", "update_id=42", "user_id=7", "chat_id=9"}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), line)
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	ctx := WithUpdateMeta(WithRID(context.Background(), "11:33:22"), 11, 22, 33)
	line := emit(t, formatJSON, ctx, "click", slog.LevelError, "click.call",
		slog.String("status", "fail"),
		slog.String("err", "boom"),
		slog.String("op", "card_token.payment"),
	)

	if !strings.HasPrefix(line, "{") {
		t.Fatalf("expected JSON, got %s", line)
	}
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"click"`, `"event":"click.call"`, `"status":"fail"`, `"rid":"11:33:22"`, `"ts_unix_nano"`, `"op":"card_token.payment"`, `"err":"boom"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
}

func TestStructuredHandlerRedactsSecrets(t *testing.T) {
	line := emit(t, formatKV, context.Background(), "topup", slog.LevelInfo, "topup.debug",
		slog.String("card", "8600 1234 5678 9012"),
		slog.String("sms_code", "123456"),
		slog.String("card_token", "tok-abc"),
		slog.Group("click", slog.String("secret_key", "s3cret")),
	)

	for _, leaked := range []string{"123456", "tok-abc", "s3cret", "5678"} {
		if strings.Contains(line, leaked) {
			t.Fatalf("secret %q leaked into %s", leaked, line)
		}
	}
	for _, want := range []string{"card=860012******9012", "sms_code=[redacted]", "card_token=[redacted]", "click.secret_key=[redacted]"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %s", want, line)
		}
	}
}

func TestStructuredHandlerDurationKeys(t *testing.T) {
	line := emit(t, formatKV, context.Background(), "app", slog.LevelInfo, "ready",
		slog.Duration("duration", 1500*time.Microsecond),
		slog.Duration("startup_duration", 2*time.Second),
		slog.Duration("elapsed_ms", 3*time.Millisecond),
	)

	for _, want := range []string{"duration_ms=2", "startup_duration_ms=2000", "elapsed_ms=3"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %s", want, line)
		}
	}
}

func TestStructuredHandlerDefaultsAndEnums(t *testing.T) {
	line := emit(t, formatKV, context.Background(), "", slog.LevelWarn, "",
		slog.String("status", "OK"),
		slog.String("outcome", "bogus"),
		slog.String("reason", ""),
	)

	for _, want := range []string{"level=WARN", "component=app", "event=unknown", "status=ok"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %s", want, line)
		}
	}
	for _, absent := range []string{"outcome=", "reason="} {
		if strings.Contains(line, absent) {
			t.Fatalf("unexpected %q in %s", absent, line)
		}
	}
}
