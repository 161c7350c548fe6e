package control

import (
	"bytes"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestDebugProbes(t *testing.T) {
	dp := NewDebugProbes()
	n := 0
	dp.RegisterProbe("b.counter", func() any { n++; return n })
	dp.RegisterProbe("a.name", func() any { return "npl" })
	RegisterPlatformProbes(dp)

	names := dp.Names()
	if names[0] != "a.name" || names[1] != "b.counter" {
		t.Errorf("Expected sorted names, got %v", names)
	}
	state := dp.DumpState()
	if state["a.name"] != "npl" || state["b.counter"] != 1 {
		t.Errorf("Expected probe values, got %v", state)
	}
	if _, ok := state["platform.cpus"]; !ok {
		t.Error("Expected platform probes")
	}

	dp.Unregister("b.counter")
	if _, ok := dp.DumpState()["b.counter"]; ok {
		t.Error("Expected the probe to be gone")
	}
}

func TestLoggerFromConfig(t *testing.T) {
	l, closeFn, err := NewLogger(LogConfig{Level: "debug", Format: "json"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer closeFn()
	var buf bytes.Buffer
	l.SetOutput(&buf)

	dp := NewDebugProbes()
	dp.RegisterProbe("dispatcher.devices", func() any { return 2 })
	dp.LogState(l)
	if !strings.Contains(buf.String(), `"dispatcher.devices":2`) {
		t.Errorf("Expected the probe in the log line, got %s", buf.String())
	}
	if l.GetLevel() != log.DebugLevel {
		t.Errorf("Expected debug level, got %s", l.GetLevel())
	}

	if _, _, err := NewLogger(LogConfig{Level: "loud"}); err == nil {
		t.Error("Expected an error for an unknown level")
	}
	if _, _, err := NewLogger(LogConfig{Format: "xml"}); err == nil {
		t.Error("Expected an error for an unknown format")
	}
}
