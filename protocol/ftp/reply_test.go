package ftp

import (
	"errors"
	"testing"
)

func TestParsePASV(t *testing.T) {
	host, port, err := ParsePASV("227 Entering Passive Mode (127,0,0,1,200,13).")
	if err != nil {
		t.Fatalf("ParsePASV: %v", err)
	}
	if host != "127.0.0.1" || port != 51213 {
		t.Errorf("Expected 127.0.0.1:51213, got %s:%d", host, port)
	}
}

func TestParsePASVRejectsMalformed(t *testing.T) {
	for _, reply := range []string{
		"227 Entering Passive Mode",
		"227 Entering Passive Mode (127,0,0,1,200).",
		"227 Entering Passive Mode (300,0,0,1,200,13).",
		"227 Entering Passive Mode (127,0,0,1,256,13).",
		"227 (a,b,c,d,e,f)",
	} {
		if _, _, err := ParsePASV(reply); err == nil {
			t.Errorf("Expected an error for %q", reply)
		}
	}
}

func TestIsReplyComplete(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"220 ready\r\n", true},
		{"220 ready", false},
		{"220 ready\r", false},
		{"220-welcome\r\n", false},
		{"220-welcome\r\nmore text\r\n", false},
		{"220-welcome\r\n220-still\r\n", false},
		{"220-welcome\r\nmore text\r\n220 ready\r\n", true},
		{"220-welcome\r\n230 other\r\n", false},
		{"garbage\r\n", true},
	}
	for _, tt := range tests {
		if got := IsReplyComplete([]byte(tt.in)); got != tt.want {
			t.Errorf("IsReplyComplete(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestReplyCode(t *testing.T) {
	tests := map[string]int{
		"226 done":  226,
		"550":       550,
		"5x0 bad":   0,
		"":          0,
		"421-multi": 421,
	}
	for in, want := range tests {
		if got := ReplyCode(in); got != want {
			t.Errorf("ReplyCode(%q): expected %d, got %d", in, want, got)
		}
	}
}

func TestProtocolError(t *testing.T) {
	var err error = newProtocolError("login", "530 login incorrect\r\n")
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected *ProtocolError, got %T", err)
	}
	if pe.Code != 530 || !pe.IsPermanent() || pe.IsTemporary() {
		t.Errorf("Expected permanent 530, got %d", pe.Code)
	}
	if pe.Response != "530 login incorrect" {
		t.Errorf("Expected trimmed response, got %q", pe.Response)
	}
}
