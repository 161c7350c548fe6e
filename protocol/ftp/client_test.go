//go:build linux || darwin || freebsd

package ftp_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/momentics/hioload-npl/api"
	"github.com/momentics/hioload-npl/dispatcher"
	"github.com/momentics/hioload-npl/fake"
	"github.com/momentics/hioload-npl/protocol/ftp"
)

func newServer(t *testing.T) *fake.FTPServer {
	t.Helper()
	srv, err := fake.NewFTPServer()
	if err != nil {
		t.Fatalf("NewFTPServer: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv
}

func dial(t *testing.T, srv *fake.FTPServer, opts ...ftp.Option) *ftp.Client {
	t.Helper()
	d, err := dispatcher.New()
	if err != nil {
		t.Fatalf("dispatcher.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	c, err := ftp.Dial(d, srv.Host(), srv.Port(), opts...)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return c
}

func receive[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func replies() (func(string), <-chan string) {
	ch := make(chan string, 1)
	return func(r string) { ch <- r }, ch
}

// chunks collects transfer data and reports the end marker.
type chunks struct {
	mu   sync.Mutex
	data []byte
	n    int
	end  chan struct{}
	stop int
}

func newChunks(stopAfter int) *chunks {
	return &chunks{end: make(chan struct{}, 1), stop: stopAfter}
}

func (c *chunks) on(b []byte) bool {
	if b == nil {
		c.end <- struct{}{}
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	c.data = append(c.data, b...)
	return c.stop == 0 || c.n < c.stop
}

func (c *chunks) snapshot() ([]byte, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.data...), c.n
}

func TestLoginSendsUserAndPassword(t *testing.T) {
	srv := newServer(t)
	srv.SetLogin("bob", "secret")

	login := make(chan error, 1)
	var states []string
	var mu sync.Mutex
	c := dial(t, srv,
		ftp.WithCredentials("bob", "secret"),
		ftp.WithLoginHandler(func(err error) { login <- err }),
		ftp.WithStateHandler(func(s string) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		}),
	)

	if err := receive(t, login, "login"); err != nil {
		t.Fatalf("Expected login to succeed, got %v", err)
	}
	cmds := srv.Commands()
	if len(cmds) != 2 || cmds[0] != "USER bob" || cmds[1] != "PASS secret" {
		t.Errorf("Expected USER and PASS, got %v", cmds)
	}
	if !c.LoggedIn() || c.ControlState() != ftp.StateReady {
		t.Errorf("Expected READY, got %s", c.ControlState())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(states) == 0 || states[len(states)-1] != "READY" {
		t.Errorf("Expected the state callback to end with READY, got %v", states)
	}
}

func TestLoginFailureIsReported(t *testing.T) {
	srv := newServer(t)
	srv.SetLogin("bob", "secret")

	login := make(chan error, 1)
	c := dial(t, srv,
		ftp.WithCredentials("bob", "wrong"),
		ftp.WithLoginHandler(func(err error) { login <- err }),
	)
	err := receive(t, login, "login")
	var pe *ftp.ProtocolError
	if !errors.As(err, &pe) || pe.Code != 530 {
		t.Fatalf("Expected a 530 protocol error, got %v", err)
	}
	if c.LoggedIn() {
		t.Error("Expected the client not to be logged in")
	}
}

func TestMultiLineGreeting(t *testing.T) {
	srv := newServer(t)
	srv.SetGreeting("220-welcome\r\n220-to the fake\r\n220 server")

	login := make(chan error, 1)
	dial(t, srv, ftp.WithLoginHandler(func(err error) { login <- err }))
	if err := receive(t, login, "login"); err != nil {
		t.Fatalf("Expected login to succeed, got %v", err)
	}
	if cmds := srv.Commands(); len(cmds) != 1 || cmds[0] != "USER anonymous" {
		t.Errorf("Expected a single USER command, got %v", cmds)
	}
}

func TestTransfersRunInQueueOrder(t *testing.T) {
	srv := newServer(t)
	srv.SetFile("remote.bin", bytes.Repeat([]byte("0123456789"), 1000))

	dir := t.TempDir()
	src := filepath.Join(dir, "upload.txt")
	payload := bytes.Repeat([]byte("hello world\n"), 500)
	if err := os.WriteFile(src, payload, 0o644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "download.bin")

	c := dial(t, srv)
	upDone, upCh := replies()
	downDone, downCh := replies()
	got := newChunks(0)

	if err := c.Upload("up.txt", src, nil, ftp.WithResponse(upDone)); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := c.Download("remote.bin", dst, got.on, ftp.WithResponse(downDone)); err != nil {
		t.Fatalf("Download: %v", err)
	}

	if r := receive(t, upCh, "upload reply"); !strings.HasPrefix(r, "226") {
		t.Errorf("Expected 226 for the upload, got %q", r)
	}
	if r := receive(t, downCh, "download reply"); !strings.HasPrefix(r, "226") {
		t.Errorf("Expected 226 for the download, got %q", r)
	}
	receive(t, got.end, "end of download")

	want := []string{"USER", "PASV", "STOR", "PASV", "RETR"}
	if verbs := srv.Verbs(); strings.Join(verbs, " ") != strings.Join(want, " ") {
		t.Errorf("Expected %v, got %v", want, verbs)
	}
	stored, _ := srv.File("up.txt")
	if !bytes.Equal(stored, payload) {
		t.Errorf("Expected %d uploaded bytes, got %d", len(payload), len(stored))
	}
	remote, _ := srv.File("remote.bin")
	local, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(local, remote) {
		t.Errorf("Expected the local copy to match, got %d of %d bytes", len(local), len(remote))
	}
	if data, _ := got.snapshot(); !bytes.Equal(data, remote) {
		t.Errorf("Expected the callback to see every byte, got %d", len(data))
	}
}

func TestCallbackCancelsTransfer(t *testing.T) {
	srv := newServer(t)
	srv.SetFile("big.bin", bytes.Repeat([]byte{0xAB}, 256*1024))

	c := dial(t, srv)
	done, doneCh := replies()
	got := newChunks(1)
	if err := c.Download("big.bin", "", got.on, ftp.WithResponse(done)); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if r := receive(t, doneCh, "final reply"); !strings.HasPrefix(r, "2") {
		t.Errorf("Expected a final 2xx reply, got %q", r)
	}
	if _, n := got.snapshot(); n != 1 {
		t.Errorf("Expected one chunk before cancellation, got %d", n)
	}
	select {
	case <-got.end:
		t.Error("Expected no end marker for a cancelled transfer")
	default:
	}

	noop, noopCh := replies()
	if err := c.Noop(noop); err != nil {
		t.Fatal(err)
	}
	if r := receive(t, noopCh, "NOOP reply"); !strings.HasPrefix(r, "200") {
		t.Errorf("Expected the queue to move on, got %q", r)
	}
}

func TestPasvFailureSkipsTransfer(t *testing.T) {
	srv := newServer(t)
	srv.SetReply("PASV", "425 no passive mode")

	c := dial(t, srv)
	done, doneCh := replies()
	got := newChunks(0)
	if err := c.Download("any", "", got.on, ftp.WithResponse(done)); err != nil {
		t.Fatal(err)
	}
	if r := receive(t, doneCh, "reply"); r != "425 no passive mode" {
		t.Errorf("Expected the PASV failure, got %q", r)
	}
	receive(t, got.end, "end marker")

	noop, noopCh := replies()
	c.Noop(noop)
	receive(t, noopCh, "NOOP reply")
	for _, v := range srv.Verbs() {
		if v == "RETR" {
			t.Errorf("Expected RETR to be skipped, got %v", srv.Verbs())
		}
	}
}

func TestMissingFileFailsTransfer(t *testing.T) {
	srv := newServer(t)
	c := dial(t, srv)
	done, doneCh := replies()
	got := newChunks(0)
	if err := c.Download("missing", "", got.on, ftp.WithResponse(done)); err != nil {
		t.Fatal(err)
	}
	if r := receive(t, doneCh, "reply"); !strings.HasPrefix(r, "550") {
		t.Errorf("Expected 550, got %q", r)
	}
	if _, n := got.snapshot(); n != 0 {
		t.Errorf("Expected no data, got %d chunks", n)
	}
}

func TestListDirectory(t *testing.T) {
	srv := newServer(t)
	srv.SetFile("a.txt", []byte("a"))
	srv.SetFile("b.txt", []byte("bb"))

	c := dial(t, srv)
	got := newChunks(0)
	if err := c.NameList("", got.on); err != nil {
		t.Fatal(err)
	}
	receive(t, got.end, "listing")
	if data, _ := got.snapshot(); string(data) != "a.txt\r\nb.txt\r\n" {
		t.Errorf("Expected both names, got %q", data)
	}
}

func TestGeneralCommands(t *testing.T) {
	srv := newServer(t)
	srv.SetFile("old", []byte("x"))
	c := dial(t, srv)

	tests := []struct {
		name string
		run  func(func(string)) error
		want string
	}{
		{"pwd", c.GetCurrentDir, "257"},
		{"cwd", func(cb func(string)) error { return c.SetCurrentDir("/pub", cb) }, "250"},
		{"mkd", func(cb func(string)) error { return c.CreateDir("new", cb) }, "257"},
		{"rmd", func(cb func(string)) error { return c.RemoveDir("new", cb) }, "250"},
		{"rename", func(cb func(string)) error { return c.Rename("old", "renamed", cb) }, "250"},
		{"delete missing", func(cb func(string)) error { return c.Delete("old", cb) }, "550"},
		{"delete", func(cb func(string)) error { return c.Delete("renamed", cb) }, "250"},
		{"raw", func(cb func(string)) error { return c.Raw("site", "help", cb) }, "502"},
	}
	for _, tt := range tests {
		cb, ch := replies()
		if err := tt.run(cb); err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if r := receive(t, ch, tt.name); !strings.HasPrefix(r, tt.want) {
			t.Errorf("%s: expected %s, got %q", tt.name, tt.want, r)
		}
	}
}

func TestQuitFailsQueuedJobs(t *testing.T) {
	srv := newServer(t)
	c := dial(t, srv)

	quit, quitCh := replies()
	noop, noopCh := replies()
	c.Quit(quit)
	c.Noop(noop)

	if r := receive(t, quitCh, "QUIT reply"); !strings.HasPrefix(r, "221") {
		t.Errorf("Expected 221, got %q", r)
	}
	if r := receive(t, noopCh, "NOOP reply"); !strings.HasPrefix(r, "421") {
		t.Errorf("Expected the queued job to fail with 421, got %q", r)
	}
}

func TestInvalidArguments(t *testing.T) {
	c, err := ftp.NewClient()
	if err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(t.TempDir(), "nope")
	tests := []struct {
		name    string
		err     error
		invalid bool
	}{
		{"upload without remote", c.Upload("", "x", nil), true},
		{"upload missing file", c.Upload("r", missing, nil), false},
		{"download without sink", c.Download("r", "", nil), true},
		{"list without callback", c.ListDirectory("", nil), true},
		{"cwd without dir", c.SetCurrentDir("", nil), true},
		{"rename without target", c.Rename("a", "", nil), true},
		{"raw transfer verb", c.Raw("RETR", "x", nil), true},
		{"raw with newline", c.Raw("NOOP\r\nQUIT", "", nil), true},
	}
	for _, tt := range tests {
		if tt.err == nil {
			t.Errorf("%s: expected an error", tt.name)
			continue
		}
		if got := errors.Is(tt.err, api.ErrInvalidArgument); got != tt.invalid {
			t.Errorf("%s: expected invalid=%v, got %v", tt.name, tt.invalid, tt.err)
		}
	}
	if c.Pending() != 0 {
		t.Errorf("Expected nothing queued, got %d", c.Pending())
	}
}
