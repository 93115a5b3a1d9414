package logger

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"
)

func TestStandardLoggerPrefixes(t *testing.T) {
	var buf bytes.Buffer
	l := NewStandardLogger(log.New(&buf, "", 0))

	l.Info("transfer %s", "finished")
	l.Warning("retry %d", 2)
	l.Error("connection %s", "refused")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		"[INFO] transfer finished",
		"[WARNING] retry 2",
		"[ERROR] connection refused",
	}
	if len(lines) != len(want) {
		t.Fatalf("output = %q", buf.String())
	}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("line %d = %q, want %q", i, lines[i], w)
		}
	}
	if err := l.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestMockLoggerRecords(t *testing.T) {
	m := NewMockLogger()
	m.Info("a %d", 1)
	m.Warning("b")
	m.Error("c %s", "x")
	m.Close()

	if len(m.InfoCalls) != 1 || m.InfoCalls[0] != "a 1" {
		t.Errorf("InfoCalls = %v", m.InfoCalls)
	}
	if len(m.WarningCalls) != 1 || m.WarningCalls[0] != "b" {
		t.Errorf("WarningCalls = %v", m.WarningCalls)
	}
	if len(m.ErrorCalls) != 1 || m.ErrorCalls[0] != "c x" {
		t.Errorf("ErrorCalls = %v", m.ErrorCalls)
	}
	if !m.CloseCalled {
		t.Error("CloseCalled not set")
	}
}

func TestMultiLoggerBroadcasts(t *testing.T) {
	a, b := NewMockLogger(), NewMockLogger()
	m := NewMultiLogger(a, b)

	m.Info("hello %s", "world")
	m.Error("boom")

	for i, backend := range []*MockLogger{a, b} {
		if len(backend.InfoCalls) != 1 || backend.InfoCalls[0] != "hello world" {
			t.Errorf("backend %d InfoCalls = %v", i, backend.InfoCalls)
		}
		if len(backend.ErrorCalls) != 1 {
			t.Errorf("backend %d ErrorCalls = %v", i, backend.ErrorCalls)
		}
	}
}

// failingCloser is a Logger whose Close always fails.
type failingCloser struct {
	NopLogger
	err error
}

func (f *failingCloser) Close() error { return f.err }

func TestMultiLoggerCloseReturnsFirstError(t *testing.T) {
	first := errors.New("first")
	a := &failingCloser{err: first}
	b := &failingCloser{err: errors.New("second")}
	c := NewMockLogger()

	m := NewMultiLogger(a, b, c)
	if err := m.Close(); err != first {
		t.Errorf("Close = %v, want %v", err, first)
	}
	if !c.CloseCalled {
		t.Error("later backends not closed after an error")
	}
}

func TestNopLogger(t *testing.T) {
	n := NewNopLogger()
	n.Info("ignored")
	n.Warning("ignored")
	n.Error("ignored")
	if err := n.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}
