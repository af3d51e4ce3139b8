package stagegraph

import (
	"bytes"
	"log/slog"
	"testing"
)

func TestDefaultLoggerIsSilent(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(nil)
	Logger().Info("should not appear")
	if buf.Len() != 0 {
		t.Fatalf("expected no output from default logger, got %q", buf.String())
	}
}

func TestSetLoggerRoutesOutput(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	defer SetLogger(nil)

	Logger().Warn("texture miss", "id", 42)
	if buf.Len() == 0 {
		t.Fatal("expected output after SetLogger, got none")
	}
}

func TestSetLoggerNilRestoresSilence(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	SetLogger(nil)

	Logger().Error("should not appear")
	if buf.Len() != 0 {
		t.Fatalf("expected silence after SetLogger(nil), got %q", buf.String())
	}
}
