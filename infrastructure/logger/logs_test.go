package logger

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

type bufferCloser struct {
	sync.Mutex
	bytes.Buffer
}

func (b *bufferCloser) Write(p []byte) (int, error) {
	b.Lock()
	defer b.Unlock()
	return b.Buffer.Write(p)
}

func (b *bufferCloser) Close() error { return nil }

func (b *bufferCloser) String() string {
	b.Lock()
	defer b.Unlock()
	return b.Buffer.String()
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		ok       bool
	}{
		{"trace", LevelTrace, true},
		{"DBG", LevelDebug, true},
		{"Warn", LevelWarn, true},
		{"crt", LevelCritical, true},
		{"off", LevelOff, true},
		{"verbose", LevelInfo, false},
	}
	for _, test := range tests {
		level, ok := LevelFromString(test.input)
		if level != test.expected || ok != test.ok {
			t.Fatalf("TestLevelFromString: %q: expected (%s, %t) but got (%s, %t)",
				test.input, test.expected, test.ok, level, ok)
		}
	}
}

func TestBackendFiltersByLevel(t *testing.T) {
	backend := NewBackendWithFlags(0)
	verbose := &bufferCloser{}
	quiet := &bufferCloser{}
	if err := backend.AddLogWriter(verbose, LevelDebug); err != nil {
		t.Fatalf("TestBackendFiltersByLevel: AddLogWriter: %+v", err)
	}
	if err := backend.AddLogWriter(quiet, LevelWarn); err != nil {
		t.Fatalf("TestBackendFiltersByLevel: AddLogWriter: %+v", err)
	}
	if err := backend.Run(); err != nil {
		t.Fatalf("TestBackendFiltersByLevel: Run: %+v", err)
	}
	if err := backend.AddLogWriter(&bufferCloser{}, LevelInfo); err == nil {
		t.Fatalf("TestBackendFiltersByLevel: adding a writer to a running backend unexpectedly succeeded")
	}

	log := backend.Logger("TEST")
	log.SetLevel(LevelDebug)
	log.Tracef("dropped by the logger")
	log.Debugf("debug %d", 1)
	log.Errorf("error %d", 2)
	backend.Close()
	backend.Close()

	if strings.Contains(verbose.String(), "dropped") {
		t.Fatalf("TestBackendFiltersByLevel: trace entry passed a debug logger")
	}
	if !strings.Contains(verbose.String(), "[DBG] TEST: debug 1") ||
		!strings.Contains(verbose.String(), "[ERR] TEST: error 2") {
		t.Fatalf("TestBackendFiltersByLevel: unexpected verbose output %q", verbose.String())
	}
	if strings.Contains(quiet.String(), "debug 1") || !strings.Contains(quiet.String(), "error 2") {
		t.Fatalf("TestBackendFiltersByLevel: unexpected quiet output %q", quiet.String())
	}
}

func TestParseAndSetLogLevels(t *testing.T) {
	first := RegisterSubSystem("TST1")
	second := RegisterSubSystem("TST2")

	if err := ParseAndSetLogLevels("TST1=trace,TST2=error"); err != nil {
		t.Fatalf("TestParseAndSetLogLevels: %+v", err)
	}
	if first.Level() != LevelTrace || second.Level() != LevelError {
		t.Fatalf("TestParseAndSetLogLevels: unexpected levels %s and %s", first.Level(), second.Level())
	}

	for _, invalid := range []string{"loud", "TST1=loud", "NOPE=debug", "TST1"} {
		if err := ParseAndSetLogLevels(invalid); err == nil {
			t.Fatalf("TestParseAndSetLogLevels: %q unexpectedly parsed", invalid)
		}
	}

	if err := ParseAndSetLogLevels("warn"); err != nil {
		t.Fatalf("TestParseAndSetLogLevels: %+v", err)
	}
	if first.Level() != LevelWarn || second.Level() != LevelWarn {
		t.Fatalf("TestParseAndSetLogLevels: global level was not applied")
	}
}
