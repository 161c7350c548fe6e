//go:build linux || darwin || freebsd

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/momentics/hioload-npl/control"
	"github.com/momentics/hioload-npl/fake"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand("test", "none", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func serverArgs(t *testing.T) (*fake.FTPServer, []string) {
	t.Helper()
	srv, err := fake.NewFTPServer()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv, []string{"--host", srv.Host(), "--port", strconv.Itoa(srv.Port())}
}

func TestPwdCommand(t *testing.T) {
	_, args := serverArgs(t)
	out, err := execute(t, append([]string{"pwd"}, args...)...)
	if err != nil {
		t.Fatalf("pwd: %v", err)
	}
	if !strings.HasPrefix(out, `257 "/"`) {
		t.Errorf("Expected the PWD reply, got %q", out)
	}
}

func TestPutGetAndList(t *testing.T) {
	srv, args := serverArgs(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(src, []byte("some notes\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, append([]string{"put", src}, args...)...); err != nil {
		t.Fatalf("put: %v", err)
	}
	if b, _ := srv.File("notes.txt"); string(b) != "some notes\n" {
		t.Errorf("Expected the upload on the server, got %q", b)
	}

	dst := filepath.Join(dir, "copy.txt")
	if _, err := execute(t, append([]string{"get", "notes.txt", dst}, args...)...); err != nil {
		t.Fatalf("get: %v", err)
	}
	if b, _ := os.ReadFile(dst); string(b) != "some notes\n" {
		t.Errorf("Expected the download, got %q", b)
	}

	out, err := execute(t, append([]string{"ls", "--names"}, args...)...)
	if err != nil {
		t.Fatalf("ls: %v", err)
	}
	if out != "notes.txt\r\n" {
		t.Errorf("Expected the listing, got %q", out)
	}
}

func TestNegativeReplyFails(t *testing.T) {
	_, args := serverArgs(t)
	if _, err := execute(t, append([]string{"rm", "nothing"}, args...)...); err == nil {
		t.Error("Expected rm of a missing file to fail")
	}
}

func TestLoginFailureFails(t *testing.T) {
	srv, args := serverArgs(t)
	srv.SetLogin("bob", "secret")
	args = append(args, "--user", "bob", "--password", "nope")
	if _, err := execute(t, append([]string{"pwd"}, args...)...); err == nil {
		t.Error("Expected a login failure")
	}
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	srv, args := serverArgs(t)
	srv.SetLogin("bob", "secret")
	path := filepath.Join(t.TempDir(), "nplftp.toml")
	data := "[ftp]\nuser = \"alice\"\npassword = \"secret\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	args = append(args, "--config", path, "--user", "bob")
	if _, err := execute(t, append([]string{"pwd"}, args...)...); err != nil {
		t.Fatalf("Expected the user flag to win over the file, got %v", err)
	}
	if cmds := srv.Commands(); len(cmds) == 0 || cmds[0] != "USER bob" {
		t.Errorf("Expected USER bob, got %v", cmds)
	}
}

func TestClientOptions(t *testing.T) {
	if _, err := clientOptions(control.FTPConfig{TLS: "explicit", Protection: "clear"}); err != nil {
		t.Errorf("Expected valid options, got %v", err)
	}
	if _, err := clientOptions(control.FTPConfig{TLS: "sometimes"}); err == nil {
		t.Error("Expected an unknown TLS mode to fail")
	}
}
