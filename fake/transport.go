// Package fake
// Author: momentics <momentics@gmail.com>
//
// Scripted FTP server for client tests.

package fake

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"
	"sync"
	"time"
)

// FTPServer is a minimal passive-mode FTP server on 127.0.0.1 keeping its
// files in memory. It records every command it receives.
type FTPServer struct {
	ln net.Listener

	mu       sync.Mutex
	files    map[string][]byte
	commands []string
	replies  map[string]string
	conns    map[net.Conn]struct{}
	user     string
	password string
	greeting string
	wg       sync.WaitGroup
}

// NewFTPServer starts a server on an ephemeral port.
func NewFTPServer() (*FTPServer, error) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("fake ftp: %w", err)
	}
	s := &FTPServer{
		ln:       ln,
		files:    make(map[string][]byte),
		replies:  make(map[string]string),
		conns:    make(map[net.Conn]struct{}),
		greeting: "220 fake ftp ready",
	}
	s.wg.Add(1)
	go s.serve()
	return s, nil
}

// Port returns the control port.
func (s *FTPServer) Port() int { return s.ln.Addr().(*net.TCPAddr).Port }

// Host returns the control address.
func (s *FTPServer) Host() string { return "127.0.0.1" }

// SetLogin makes the server require user and password.
func (s *FTPServer) SetLogin(user, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user, s.password = user, password
}

// SetGreeting replaces the greeting; it may span several lines.
func (s *FTPServer) SetGreeting(g string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.greeting = g
}

// SetReply forces the reply to verb.
func (s *FTPServer) SetReply(verb, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[verb] = reply
}

func (s *FTPServer) SetFile(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = append([]byte(nil), data...)
}

func (s *FTPServer) File(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[name]
	return b, ok
}

// Commands returns the received command lines.
func (s *FTPServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Verbs returns the verbs of the received commands.
func (s *FTPServer) Verbs() []string {
	var out []string
	for _, c := range s.Commands() {
		verb, _, _ := strings.Cut(c, " ")
		out = append(out, verb)
	}
	return out
}

// Close stops the server and drops open sessions.
func (s *FTPServer) Close() error {
	err := s.ln.Close()
	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

func (s *FTPServer) serve() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.session(c)
			s.mu.Lock()
			delete(s.conns, c)
			s.mu.Unlock()
			c.Close()
		}()
	}
}

type session struct {
	s    *FTPServer
	c    net.Conn
	r    *bufio.Reader
	user string
	data net.Listener
	from string
}

func (ss *session) reply(line string) bool {
	_, err := io.WriteString(ss.c, line+"\r\n")
	return err == nil
}

func (s *FTPServer) session(c net.Conn) {
	ss := &session{s: s, c: c, r: bufio.NewReader(c)}
	defer func() {
		if ss.data != nil {
			ss.data.Close()
		}
	}()
	s.mu.Lock()
	greeting := s.greeting
	s.mu.Unlock()
	if !ss.reply(greeting) {
		return
	}
	for {
		line, err := ss.r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		verb, arg, _ := strings.Cut(line, " ")
		verb = strings.ToUpper(verb)

		s.mu.Lock()
		s.commands = append(s.commands, line)
		forced, ok := s.replies[verb]
		s.mu.Unlock()
		if ok {
			if verb == "PASV" || verb == "RETR" || verb == "STOR" || verb == "LIST" || verb == "NLST" {
				ss.closeData()
			}
			if !ss.reply(forced) {
				return
			}
			continue
		}
		if !ss.handle(verb, arg) {
			return
		}
	}
}

func (ss *session) closeData() {
	if ss.data != nil {
		ss.data.Close()
		ss.data = nil
	}
}

func (ss *session) handle(verb, arg string) bool {
	s := ss.s
	switch verb {
	case "USER":
		ss.user = arg
		s.mu.Lock()
		need := s.password != ""
		s.mu.Unlock()
		if need {
			return ss.reply("331 password required")
		}
		return ss.reply("230 logged in")
	case "PASS":
		s.mu.Lock()
		ok := (s.user == "" || s.user == ss.user) && (s.password == "" || s.password == arg)
		s.mu.Unlock()
		if !ok {
			return ss.reply("530 login incorrect")
		}
		return ss.reply("230 logged in")
	case "PWD":
		return ss.reply(`257 "/" is the current directory`)
	case "CWD", "RMD":
		return ss.reply("250 ok")
	case "MKD":
		return ss.reply(fmt.Sprintf("257 %q created", arg))
	case "NOOP", "PBSZ", "PROT", "TYPE":
		return ss.reply("200 ok")
	case "DELE":
		s.mu.Lock()
		_, ok := s.files[arg]
		delete(s.files, arg)
		s.mu.Unlock()
		if !ok {
			return ss.reply("550 no such file")
		}
		return ss.reply("250 deleted")
	case "RNFR":
		ss.from = arg
		return ss.reply("350 ready for RNTO")
	case "RNTO":
		s.mu.Lock()
		b, ok := s.files[ss.from]
		if ok {
			delete(s.files, ss.from)
			s.files[arg] = b
		}
		s.mu.Unlock()
		if !ok {
			return ss.reply("550 no such file")
		}
		return ss.reply("250 renamed")
	case "QUIT":
		ss.reply("221 bye")
		return false
	case "PASV":
		ss.closeData()
		ln, err := net.Listen("tcp4", "127.0.0.1:0")
		if err != nil {
			return ss.reply("425 cannot open passive port")
		}
		ss.data = ln
		p := ln.Addr().(*net.TCPAddr).Port
		return ss.reply(fmt.Sprintf("227 Entering Passive Mode (127,0,0,1,%d,%d).", p/256, p%256))
	case "RETR", "LIST", "NLST", "STOR":
		return ss.transfer(verb, arg)
	}
	return ss.reply("502 command not implemented")
}

func (ss *session) transfer(verb, arg string) bool {
	s := ss.s
	if ss.data == nil {
		return ss.reply("425 use PASV first")
	}
	var payload []byte
	switch verb {
	case "RETR":
		s.mu.Lock()
		b, ok := s.files[arg]
		s.mu.Unlock()
		if !ok {
			ss.closeData()
			return ss.reply("550 no such file")
		}
		payload = b
	case "LIST", "NLST":
		s.mu.Lock()
		names := make([]string, 0, len(s.files))
		for name := range s.files {
			names = append(names, name)
		}
		sizes := make(map[string]int, len(names))
		for _, name := range names {
			sizes[name] = len(s.files[name])
		}
		s.mu.Unlock()
		sort.Strings(names)
		var sb strings.Builder
		for _, name := range names {
			if verb == "LIST" {
				fmt.Fprintf(&sb, "-rw-r--r-- 1 ftp ftp %d Jan 01 00:00 %s\r\n", sizes[name], name)
			} else {
				sb.WriteString(name + "\r\n")
			}
		}
		payload = []byte(sb.String())
	}

	if !ss.reply("150 opening data connection") {
		return false
	}
	ln := ss.data
	ss.data = nil
	defer ln.Close()
	if tl, ok := ln.(*net.TCPListener); ok {
		tl.SetDeadline(time.Now().Add(5 * time.Second))
	}
	dc, err := ln.Accept()
	if err != nil {
		return ss.reply("425 data connection failed")
	}
	if verb == "STOR" {
		b, err := io.ReadAll(dc)
		dc.Close()
		if err != nil {
			return ss.reply("426 transfer aborted")
		}
		s.mu.Lock()
		s.files[arg] = b
		s.mu.Unlock()
		return ss.reply("226 transfer complete")
	}
	_, err = dc.Write(payload)
	dc.Close()
	if err != nil {
		return ss.reply("426 transfer aborted")
	}
	return ss.reply("226 transfer complete")
}
