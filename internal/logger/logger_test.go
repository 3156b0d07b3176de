package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T, c Config, f func()) string {
	t.Helper()
	var buf bytes.Buffer
	c.Output = &buf
	Init(&c)
	t.Cleanup(func() { Init(&Config{Level: "info", Format: FormatText}) })
	f()
	return buf.String()
}

func TestLogger_TextFormat(t *testing.T) {
	out := capture(t, Config{Level: "debug", Format: FormatText, Component: "test"}, func() {
		Info("queue entered", "participant", "guest:1")
	})

	assert.Contains(t, out, "queue entered")
	assert.Contains(t, out, "component=test")
	assert.Contains(t, out, "participant=guest:1")
}

func TestLogger_JSONFormat(t *testing.T) {
	out := capture(t, Config{Level: "info", Format: FormatJSON, Component: "json_test"}, func() {
		Info("room closed", "room", "r1")
	})

	assert.Contains(t, out, `"msg":"room closed"`)
	assert.Contains(t, out, `"component":"json_test"`)
	assert.Contains(t, out, `"room":"r1"`)
}

func TestLogger_LevelFilter(t *testing.T) {
	out := capture(t, Config{Level: "error", Format: FormatText}, func() {
		Info("should not appear")
		Error("should appear")
	})

	assert.False(t, strings.Contains(out, "should not appear"))
	assert.Contains(t, out, "should appear")
}

func TestLogger_WithAddsFields(t *testing.T) {
	out := capture(t, Config{Level: "debug", Format: FormatText}, func() {
		With("service", "matcher").Info("attempt")
	})

	assert.Contains(t, out, "service=matcher")
}
