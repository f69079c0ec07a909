package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewWithFormat(t *testing.T) {
	var buf bytes.Buffer
	NewWithFormat("debug", "json", &buf).Debug("hello", "k", "v")
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"k":"v"`) {
		t.Fatalf("expected json output, got %q", buf.String())
	}

	buf.Reset()
	NewWithFormat("info", "TEXT", &buf).Info("hello", "k", "v")
	if !strings.Contains(buf.String(), "k=v") {
		t.Fatalf("expected text output, got %q", buf.String())
	}

	buf.Reset()
	NewWithFormat("nonsense", "json", &buf).Debug("dropped")
	if buf.Len() != 0 {
		t.Fatalf("invalid level should default to info, got %q", buf.String())
	}
}
