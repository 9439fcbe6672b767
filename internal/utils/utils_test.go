package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerMethods(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := NewLoggerFrom(zap.New(core))

	logger.Info("hi", "k", "v")
	logger.Warn("warn", "k2", "v2")
	logger.Error("err", "k3", "v3")

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	want := []zapcore.Level{zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, e := range entries {
		if e.Level != want[i] {
			t.Fatalf("entry %d: expected level %s, got %s", i, want[i], e.Level)
		}
	}
	if got := entries[0].ContextMap()["k"]; got != "v" {
		t.Fatalf("expected field k=v, got %v", got)
	}
}

func TestLoggerWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := NewLoggerFrom(zap.New(core)).With("room", "r1")

	logger.Info("joined")

	if got := logs.FilterField(zap.String("room", "r1")).Len(); got != 1 {
		t.Fatalf("expected entry carrying room field, got %d", got)
	}
}

func TestNopLoggerDoesNotPanic(t *testing.T) {
	Nop().Error("ignored", "k", 1)
}

func TestJSONHelpers(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, map[string]int{"n": 1})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	rec = httptest.NewRecorder()
	JSONError(rec, http.StatusNotFound, "missing")
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "missing" {
		t.Fatalf("unexpected body %#v", body)
	}
}
