// File: protocol/ftp/job.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ftp

import (
	"github.com/google/uuid"
)

// Protection is the data channel protection level (PROT).
type Protection uint8

const (
	// ProtectionDefault follows the client setting.
	ProtectionDefault Protection = iota
	ProtectionClear
	ProtectionPrivate
)

func (p Protection) String() string {
	switch p {
	case ProtectionClear:
		return "C"
	case ProtectionPrivate:
		return "P"
	}
	return "default"
}

// Command verbs queued as jobs.
const (
	VerbPasv = "PASV"
	VerbStor = "STOR"
	VerbRetr = "RETR"
	VerbList = "LIST"
	VerbNlst = "NLST"
	VerbProt = "PROT"
	VerbPwd  = "PWD"
	VerbCwd  = "CWD"
	VerbMkd  = "MKD"
	VerbRmd  = "RMD"
	VerbDele = "DELE"
	VerbRnfr = "RNFR"
	VerbRnto = "RNTO"
	VerbNoop = "NOOP"
	VerbQuit = "QUIT"
)

// Job is one queued command.
type Job struct {
	ID     uuid.UUID
	Verb   string
	Remote string
	Local  string

	// OnResponse receives the final reply text.
	OnResponse func(reply string)
	// OnData receives transfer chunks; returning false cancels the
	// transfer. A nil chunk marks the end of the transfer.
	OnData func(chunk []byte) bool

	Protection Protection
}

func newJob(verb, remote string) *Job {
	return &Job{ID: uuid.New(), Verb: verb, Remote: remote}
}

func isTransfer(verb string) bool {
	switch verb {
	case VerbStor, VerbRetr, VerbList, VerbNlst:
		return true
	}
	return false
}

// JobOption customizes a queued job.
type JobOption func(*Job)

// WithProtection overrides the data channel protection for one transfer.
func WithProtection(p Protection) JobOption {
	return func(j *Job) { j.Protection = p }
}

// WithResponse sets the callback receiving the final reply of a transfer.
func WithResponse(fn func(reply string)) JobOption {
	return func(j *Job) { j.OnResponse = fn }
}
