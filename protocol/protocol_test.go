package protocol_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/momentics/hioload-npl/api"
	"github.com/momentics/hioload-npl/fake"
	"github.com/momentics/hioload-npl/protocol"
	"github.com/momentics/hioload-npl/subject"
)

type lineHandler struct {
	frames []string
}

func (h *lineHandler) IsMessageComplete(buf []byte) bool { return protocol.LineComplete(buf) }
func (h *lineHandler) StateMachine(m protocol.Message) { h.frames = append(h.frames, m.Line()) }

func TestFramingIsChunkingInvariant(t *testing.T) {
	stream := "220 ready\r\n331 need password\r\n230-welcome\r\n230 logged in\r\n"
	want := []string{"220 ready", "331 need password", "230-welcome", "230 logged in"}

	chunkings := []struct {
		name  string
		sizes []int
	}{
		{"whole", []int{len(stream)}},
		{"bytewise", nil},
		{"split-crlf", []int{10, 1, 20, 5}},
		{"uneven", []int{3, 7, 2, 13, 1, 1, 40}},
	}

	for _, tc := range chunkings {
		t.Run(tc.name, func(t *testing.T) {
			h := &lineHandler{}
			p := protocol.New(h)
			rec := fake.NewRecorder("app", 0)
			p.AddEventListener(rec)

			rest := []byte(stream)
			i := 0
			for len(rest) > 0 {
				n := 1
				if tc.sizes != nil && i < len(tc.sizes) {
					n = tc.sizes[i]
				} else if tc.sizes != nil {
					n = len(rest)
				}
				if n > len(rest) {
					n = len(rest)
				}
				p.OnRead(rest[:n])
				rest = rest[n:]
				i++
			}

			if !reflect.DeepEqual(h.frames, want) {
				t.Errorf("Expected frames %q, got %q", want, h.frames)
			}
			if string(rec.Data()) != stream {
				t.Errorf("Expected observers to get the full stream, got %q", rec.Data())
			}
			if got := len(rec.Log()); got != len(want) {
				t.Errorf("Expected %d frame notifications, got %d", len(want), got)
			}
			if p.MessageCount() != uint64(len(want)) {
				t.Errorf("Expected %d messages, got %d", len(want), p.MessageCount())
			}
		})
	}
}

func TestHistoryIsBounded(t *testing.T) {
	p := protocol.New(&lineHandler{}, protocol.WithHistory(2))
	p.OnRead([]byte("a\r\nb\r\nc\r\n"))

	hist := p.History()
	if len(hist) != 2 || hist[0].Line() != "b" || hist[1].Line() != "c" {
		t.Errorf("Expected history [b c], got %q", hist)
	}
	last, ok := p.LastMessage()
	if !ok || last.Line() != "c" {
		t.Errorf("Expected last message c, got %q", last)
	}
	if p.MessageCount() != 3 {
		t.Errorf("Expected 3 messages counted, got %d", p.MessageCount())
	}
}

func TestMaxFrameDropsOverlongInput(t *testing.T) {
	h := &lineHandler{}
	p := protocol.New(h, protocol.WithMaxFrame(4))
	p.OnRead([]byte("abcdefgh\r\nok\r\n"))
	if len(h.frames) != 1 || h.frames[0] != "ok" {
		t.Errorf("Expected only the short frame, got %q", h.frames)
	}
}

type fakeTransport struct {
	subject.Subject
	started, served, stopped int
}

func newFakeTransport() *fakeTransport {
	f := &fakeTransport{}
	f.Bind(f)
	return f
}

func (f *fakeTransport) StartSocketClient() error { f.started++; return nil }
func (f *fakeTransport) StartSocketServer() error { f.served++; return nil }
func (f *fakeTransport) StopSocket() { f.stopped++ }

func TestStartStopDelegateToTransport(t *testing.T) {
	tr := newFakeTransport()
	p := protocol.New(&lineHandler{})
	tr.AddEventListener(p)

	connected := 0
	if err := p.StartClient(func() { connected++ }); err != nil {
		t.Fatalf("StartClient: %v", err)
	}
	if err := p.StartServer(); err != nil {
		t.Fatalf("StartServer: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if tr.started != 1 || tr.served != 1 || tr.stopped != 1 {
		t.Errorf("Expected one call each, got %d %d %d", tr.started, tr.served, tr.stopped)
	}

	tr.OnConnect()
	if connected != 1 || !p.IsConnected() {
		t.Errorf("Expected connect callback once and connected protocol, got %d %v", connected, p.IsConnected())
	}
}

func TestStartWithoutTransport(t *testing.T) {
	p := protocol.New(&lineHandler{})
	if err := p.StartClient(nil); !errors.Is(err, api.ErrNoTarget) {
		t.Errorf("Expected ErrNoTarget, got %v", err)
	}
	s := subject.New()
	s.AddEventListener(p)
	if err := p.Stop(); !errors.Is(err, api.ErrNotSupported) {
		t.Errorf("Expected ErrNotSupported, got %v", err)
	}
}

func TestStateCallbackAndCredentials(t *testing.T) {
	p := protocol.New(&lineHandler{})
	var seen []string
	p.SetStateCallback(func(s string) { seen = append(seen, s) })
	p.SetState("READY")
	p.SetCredentials("anonymous", "guest")

	if p.State() != "READY" || len(seen) != 1 || seen[0] != "READY" {
		t.Errorf("Expected READY notification, got state %q seen %v", p.State(), seen)
	}
	if u, pw := p.Credentials(); u != "anonymous" || pw != "guest" {
		t.Errorf("Expected credentials anonymous/guest, got %s/%s", u, pw)
	}
}
