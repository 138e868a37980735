package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("decode %q: %v", lines[len(lines)-1], err)
	}
	return m
}

func TestSlogBridge_CarriesContextAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Driver: "memory", Component: "test"}, &buf)
	log := NewSlog(&zl).With("epoch", 7)

	ctx := WithSession(WithRequestID(context.Background(), "req-1"), "sess-1")
	ctx = WithCacheOutcome(ctx, "hit")
	log.InfoContext(ctx, "fetch applied", "total", 24, "took", 15*time.Millisecond, "ok", true)

	m := lastLine(t, &buf)
	want := map[string]any{
		"msg":        "fetch applied",
		"level":      "info",
		"request_id": "req-1",
		"session":    "sess-1",
		"cache":      "hit",
		"driver":     "memory",
		"component":  "test",
		"epoch":      float64(7),
		"total":      float64(24),
		"ok":         true,
	}
	for k, v := range want {
		if m[k] != v {
			t.Fatalf("field %s=%v want %v (line=%v)", k, m[k], v, m)
		}
	}
	if _, ok := m["took"]; !ok {
		t.Fatalf("duration attr missing: %v", m)
	}
}

func TestWithAttrs_DoesNotLeakBetweenChildren(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info"}, &buf)
	base := NewSlog(&zl).With("a", 1)
	left := base.With("side", "left")
	right := base.With("side", "right")

	left.Info("l")
	if m := lastLine(t, &buf); m["side"] != "left" {
		t.Fatalf("left=%v", m)
	}
	right.Info("r")
	if m := lastLine(t, &buf); m["side"] != "right" {
		t.Fatalf("right=%v", m)
	}
}

func TestWithRequestID_GeneratesWhenEmpty(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	if v, _ := ctx.Value(ctxReqIDKey).(string); len(v) != 16 {
		t.Fatalf("generated id=%q", v)
	}
}

func TestSlogBridge_GroupsErrorsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info"}, &buf)
	log := NewSlog(&zl)

	if log.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug enabled at info level")
	}
	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line written: %s", buf.String())
	}

	log.WithGroup("fetch").With("epoch", 3).Warn("cycle failed",
		"err", errors.New("backend down"),
		slog.Group("query", "table", "properties"))

	m := lastLine(t, &buf)
	want := map[string]any{
		"level":             "warn",
		"fetch.epoch":       float64(3),
		"fetch.err":         "backend down",
		"fetch.query.table": "properties",
	}
	for k, v := range want {
		if m[k] != v {
			t.Fatalf("field %s=%v want %v (line=%v)", k, m[k], v, m)
		}
	}
}
