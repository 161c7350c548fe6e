// File: protocol/ftp/ops.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build linux || darwin || freebsd

package ftp

import (
	"fmt"
	"os"
	"strings"

	"github.com/momentics/hioload-npl/api"
)

func invalid(op, msg string) error {
	return fmt.Errorf("ftp: %s: %s: %w", op, msg, api.ErrInvalidArgument)
}

// Upload stores the local file under remote. onData, when set, sees every
// chunk before it is sent and may cancel by returning false.
func (c *Client) Upload(remote, local string, onData func([]byte) bool, opts ...JobOption) error {
	if remote == "" || local == "" {
		return invalid("upload", "remote and local paths are required")
	}
	st, err := os.Stat(local)
	if err != nil {
		return fmt.Errorf("ftp: upload %s: %w", local, err)
	}
	if st.IsDir() {
		return invalid("upload", local+" is a directory")
	}
	job := newJob(VerbStor, remote)
	job.Local = local
	job.OnData = onData
	for _, opt := range opts {
		opt(job)
	}
	c.enqueueTransfer(job)
	return nil
}

// Download retrieves remote into local, onData or both. A nil chunk passed
// to onData marks the end of the transfer.
func (c *Client) Download(remote, local string, onData func([]byte) bool, opts ...JobOption) error {
	if remote == "" {
		return invalid("download", "remote path is required")
	}
	if local == "" && onData == nil {
		return invalid("download", "a local path or a data callback is required")
	}
	job := newJob(VerbRetr, remote)
	job.Local = local
	job.OnData = onData
	for _, opt := range opts {
		opt(job)
	}
	c.enqueueTransfer(job)
	return nil
}

// ListDirectory runs LIST on remote, which may be empty for the current
// directory.
func (c *Client) ListDirectory(remote string, onData func([]byte) bool, opts ...JobOption) error {
	return c.list(VerbList, remote, onData, opts)
}

// NameList runs NLST on remote.
func (c *Client) NameList(remote string, onData func([]byte) bool, opts ...JobOption) error {
	return c.list(VerbNlst, remote, onData, opts)
}

func (c *Client) list(verb, remote string, onData func([]byte) bool, opts []JobOption) error {
	if onData == nil {
		return invalid(strings.ToLower(verb), "data callback is required")
	}
	job := newJob(verb, remote)
	job.OnData = onData
	for _, opt := range opts {
		opt(job)
	}
	c.enqueueTransfer(job)
	return nil
}

func (c *Client) command(verb, arg string, onResponse func(string)) {
	job := newJob(verb, arg)
	job.OnResponse = onResponse
	c.enqueue(job)
}

// SetCurrentDir changes the remote working directory.
func (c *Client) SetCurrentDir(dir string, onResponse func(string)) error {
	if dir == "" {
		return invalid("cwd", "directory is required")
	}
	c.command(VerbCwd, dir, onResponse)
	return nil
}

// GetCurrentDir queries the remote working directory.
func (c *Client) GetCurrentDir(onResponse func(string)) error {
	c.command(VerbPwd, "", onResponse)
	return nil
}

func (c *Client) CreateDir(dir string, onResponse func(string)) error {
	if dir == "" {
		return invalid("mkd", "directory is required")
	}
	c.command(VerbMkd, dir, onResponse)
	return nil
}

func (c *Client) RemoveDir(dir string, onResponse func(string)) error {
	if dir == "" {
		return invalid("rmd", "directory is required")
	}
	c.command(VerbRmd, dir, onResponse)
	return nil
}

// Delete removes a remote file.
func (c *Client) Delete(path string, onResponse func(string)) error {
	if path == "" {
		return invalid("dele", "path is required")
	}
	c.command(VerbDele, path, onResponse)
	return nil
}

// Rename queues RNFR and RNTO back to back; onResponse gets the RNTO reply,
// or the RNFR reply when the server refused the source.
func (c *Client) Rename(from, to string, onResponse func(string)) error {
	if from == "" || to == "" {
		return invalid("rename", "source and target are required")
	}
	rnfr := newJob(VerbRnfr, from)
	rnto := newJob(VerbRnto, to)
	rnto.OnResponse = onResponse
	rnfr.OnResponse = func(reply string) {
		if ReplyCode(reply) != 350 && onResponse != nil {
			onResponse(reply)
			rnto.OnResponse = nil
		}
	}
	c.enqueue(rnfr, rnto)
	return nil
}

func (c *Client) Noop(onResponse func(string)) error {
	c.command(VerbNoop, "", onResponse)
	return nil
}

// Quit asks the server to close the session.
func (c *Client) Quit(onResponse func(string)) error {
	c.command(VerbQuit, "", onResponse)
	return nil
}

// Raw queues an arbitrary command that does not use a data channel.
func (c *Client) Raw(verb, arg string, onResponse func(string)) error {
	verb = strings.ToUpper(strings.TrimSpace(verb))
	if verb == "" || strings.ContainsAny(verb+arg, "\r\n") {
		return invalid("raw", "malformed command")
	}
	if verb == VerbPasv || isTransfer(verb) {
		return invalid("raw", verb+" needs a data channel")
	}
	c.command(verb, arg, onResponse)
	return nil
}
