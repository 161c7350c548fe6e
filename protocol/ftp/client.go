// File: protocol/ftp/client.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build linux || darwin || freebsd

package ftp

import (
	"crypto/tls"
	"strings"
	"sync"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-npl/api"
	"github.com/momentics/hioload-npl/device"
	"github.com/momentics/hioload-npl/protocol"
	"github.com/momentics/hioload-npl/subject"
	log "github.com/sirupsen/logrus"
)

// DefaultPort is the FTP control port.
const DefaultPort = 21

// closedReply is handed to jobs still queued when the control connection
// goes away.
const closedReply = "421 control connection closed"

// Client is an FTP client driven by the reply state machine. Commands are
// queued as jobs and sent one at a time; a transfer is always preceded by
// its PASV job. All callbacks run on the dispatcher worker.
type Client struct {
	protocol.Protocol

	optLogger   log.FieldLogger
	optUser     string
	optPassword string
	account     string
	metrics     Metrics
	onLogin     func(err error)
	onState     func(state string)

	tlsMode  TLSMode
	tlsCfg   *tls.Config
	dataProt Protection

	jobMu      sync.Mutex
	jobs       *queue.Queue
	inProgress bool
	state      State
	notified   State
	secure     bool
	loggedIn   bool
	queuedProt Protection
	xfer       *transfer
	deferred   []func()
}

// NewClient returns a client ready to be attached to a control socket.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		jobs:       queue.New(),
		inProgress: true,
		metrics:    nopMetrics{},
		queuedProt: ProtectionClear,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.optLogger == nil {
		c.optLogger = log.StandardLogger()
	}
	c.Init(c, c, protocol.WithLogger(c.optLogger))
	c.SetProperty(subject.NameKey, "ftp")
	c.SetCredentials(c.optUser, c.optPassword)
	if c.onState != nil {
		c.SetStateCallback(c.onState)
	}
	if c.dataProt == ProtectionDefault {
		c.dataProt = ProtectionClear
		if c.tlsMode != TLSNone {
			c.dataProt = ProtectionPrivate
		}
	}
	return c, nil
}

// Dial builds a control socket for host:port under root, attaches a new
// client to it and starts connecting. root is usually the dispatcher.
func Dial(root api.Node, host string, port int, opts ...Option) (*Client, error) {
	c, err := NewClient(opts...)
	if err != nil {
		return nil, err
	}
	if port == 0 {
		port = DefaultPort
		if c.tlsMode == TLSImplicit {
			port = 990
		}
	}
	sock := device.NewSocket(host, port, device.WithLogger(c.Logger()), device.WithName("ftp-control"))
	root.AddEventListener(sock).AddEventListener(c)
	if err := c.StartClient(nil); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) log() *log.Entry {
	return c.Logger().WithField("protocol", "ftp")
}

// IsMessageComplete frames replies, including multi-line ones.
func (c *Client) IsMessageComplete(buf []byte) bool { return IsReplyComplete(buf) }

// ControlState returns the current state of the reply machine.
func (c *Client) ControlState() State {
	c.jobMu.Lock()
	defer c.jobMu.Unlock()
	return c.state
}

// LoggedIn reports whether the login sequence succeeded.
func (c *Client) LoggedIn() bool {
	c.jobMu.Lock()
	defer c.jobMu.Unlock()
	return c.loggedIn
}

// Secure reports whether the control channel runs over TLS.
func (c *Client) Secure() bool {
	c.jobMu.Lock()
	defer c.jobMu.Unlock()
	return c.secure
}

// Pending returns the number of queued jobs, including the running one.
func (c *Client) Pending() int {
	c.jobMu.Lock()
	defer c.jobMu.Unlock()
	return c.jobs.Length()
}

// later schedules fn to run once jobMu is released.
func (c *Client) later(fn func()) { c.deferred = append(c.deferred, fn) }

// unlock releases jobMu, then publishes a state change and runs the
// deferred callbacks.
func (c *Client) unlock() {
	fns := c.deferred
	c.deferred = nil
	if c.state != c.notified {
		st := c.state
		c.notified = st
		fns = append([]func(){func() { c.SetState(st.String()) }}, fns...)
	}
	c.jobMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *Client) control() *device.Socket {
	s, _ := c.Target().(*device.Socket)
	return s
}

func (c *Client) controlHost() string {
	if s := c.control(); s != nil {
		return s.Host()
	}
	return ""
}

// dataTLSConfig derives the data channel config from the control one. The
// shared session cache lets the data channel resume the control session.
func (c *Client) dataTLSConfig() *tls.Config {
	cfg := c.tlsCfg.Clone()
	if cfg.ServerName == "" && !cfg.InsecureSkipVerify {
		cfg.ServerName = c.controlHost()
	}
	return cfg
}

// send writes one command line. jobMu must be held.
func (c *Client) send(verb, arg string) {
	line := verb
	if arg != "" {
		line += " " + arg
	}
	shown := line
	if verb == "PASS" || verb == "ACCT" {
		shown = verb + " ****"
	}
	c.log().WithField("command", shown).Debug(">")
	if _, err := c.Write([]byte(line+"\r\n"), 0); err != nil {
		c.log().WithField("command", verb).WithError(err).Warn("send failed")
	}
}

// OnConnect runs when the control channel is up. Implicit TLS starts the
// handshake right away; the greeting is only seen once it completes.
func (c *Client) OnConnect() {
	c.jobMu.Lock()
	c.state = StateConnected
	c.secure = false
	c.loggedIn = false
	c.unlock()
	if c.tlsMode == TLSImplicit {
		if err := c.startControlTLS(func() {
			c.jobMu.Lock()
			c.secure = true
			c.unlock()
		}); err != nil {
			c.log().WithError(err).Error("implicit TLS failed")
			_ = c.Stop()
		}
	}
	c.Protocol.OnConnect()
}

func (c *Client) startControlTLS(onHandshake func()) error {
	s := c.control()
	if s == nil {
		return api.ErrNoTarget
	}
	return s.InitializeSSL(c.tlsCfg, onHandshake)
}

// OnDisconnect fails every queued job and tears the client down.
func (c *Client) OnDisconnect() {
	c.jobMu.Lock()
	c.state = StateDisconnected
	c.inProgress = true
	c.loggedIn = false
	if x := c.xfer; x != nil {
		c.xfer = nil
		c.abortData(x)
		c.closeFile(x)
	}
	for c.jobs.Length() > 0 {
		job := c.jobs.Remove().(*Job)
		c.metrics.ObserveJob(job.Verb, "aborted")
		c.later(func() { c.finish(job, closedReply, true) })
	}
	c.unlock()
	c.Protocol.OnDisconnect()
}

// finish runs the callbacks of a completed job.
func (c *Client) finish(job *Job, reply string, end bool) {
	if end && job.OnData != nil && isTransfer(job.Verb) {
		job.OnData(nil)
	}
	if job.OnResponse != nil {
		job.OnResponse(reply)
	}
}

// StateMachine advances the reply machine with one reply and executes the
// resulting action.
func (c *Client) StateMachine(m protocol.Message) {
	reply := m.Line()
	if len(reply) == 0 || reply[0] < '1' || reply[0] > '5' {
		c.log().WithField("reply", reply).Warn("malformed reply")
		return
	}
	c.jobMu.Lock()
	from := c.state
	to, act, ok := Next(from, reply[0])
	if !ok {
		c.log().WithField("reply", firstLine(reply)).Info("unexpected reply ignored")
		c.unlock()
		return
	}
	c.log().WithFields(log.Fields{"reply": firstLine(reply), "from": from.String(), "action": act.String()}).Debug("<")
	c.state = to
	c.execute(act, reply)
	c.unlock()
}

func firstLine(s string) string {
	if i := strings.Index(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// execute performs act. jobMu must be held.
func (c *Client) execute(act Action, reply string) {
	switch act {
	case ActGreeting:
		if c.tlsMode == TLSExplicit && !c.secure {
			c.state = StateAuth
			c.send("AUTH", "TLS")
			return
		}
		c.sendUser()

	case ActStartTLS:
		c.later(func() {
			if err := c.startControlTLS(c.controlSecured); err != nil {
				c.log().WithError(err).Error("AUTH TLS failed")
				c.loginFailed(newProtocolError("AUTH TLS", err.Error()))
			}
		})

	case ActAuthFailed:
		c.loginDone(newProtocolError("AUTH TLS", reply))
		c.later(func() { _ = c.Stop() })

	case ActSendPass:
		_, password := c.Credentials()
		c.send("PASS", password)

	case ActSendAcct:
		c.send("ACCT", c.account)

	case ActLoggedIn:
		if c.secure {
			c.state = StateCheck
			c.send("PBSZ", "0")
			return
		}
		c.loginDone(nil)

	case ActProtectionSet:
		if reply[0] != '2' {
			c.log().WithField("reply", firstLine(reply)).Warn("PBSZ refused")
		}
		c.loginDone(nil)

	case ActLoginFailed:
		c.loginDone(newProtocolError("login", reply))

	case ActOpenData:
		c.openData(reply)

	case ActSkipPair:
		c.skipPair(reply)

	case ActTransferStart:
		if x := c.xfer; x != nil {
			x.preliminary = true
			c.startUpload(x)
		}

	case ActTransferFinal, ActTransferFailed:
		x := c.xfer
		if x == nil {
			return
		}
		x.finalSeen = true
		x.reply = reply
		if act == ActTransferFailed || (x.job.Verb == VerbStor && !x.uploadStarted) {
			x.failed = act == ActTransferFailed
			c.abortData(x)
		}
		c.complete()

	case ActGenResponse:
		if c.jobs.Length() == 0 {
			return
		}
		job := c.jobs.Remove().(*Job)
		result := "ok"
		if reply[0] != '2' && reply[0] != '3' {
			result = "failed"
		}
		c.metrics.ObserveJob(job.Verb, result)
		c.later(func() { c.finish(job, reply, false) })
		c.inProgress = false
		c.processNext()
	}
}

// controlSecured runs once the AUTH TLS handshake completes.
func (c *Client) controlSecured() {
	c.jobMu.Lock()
	c.secure = true
	c.state = StateUser
	c.sendUser()
	c.unlock()
}

func (c *Client) sendUser() {
	user, _ := c.Credentials()
	if user == "" {
		user = "anonymous"
	}
	c.send("USER", user)
}

func (c *Client) loginFailed(err error) {
	c.jobMu.Lock()
	c.loginDone(err)
	c.unlock()
	_ = c.Stop()
}

// loginDone ends the login sequence and releases the job queue. jobMu must
// be held.
func (c *Client) loginDone(err error) {
	c.loggedIn = err == nil
	if err != nil {
		c.log().WithError(err).Warn("login failed")
	} else {
		c.state = StateReady
		c.log().Info("logged in")
	}
	if fn := c.onLogin; fn != nil {
		c.later(func() { fn(err) })
	}
	c.inProgress = false
	c.processNext()
}

// enqueue appends jobs and starts the head job when idle.
func (c *Client) enqueue(jobs ...*Job) {
	c.jobMu.Lock()
	for _, j := range jobs {
		c.jobs.Add(j)
	}
	c.processNext()
	c.unlock()
}

// enqueueTransfer queues a transfer behind its PASV job, preceded by a PROT
// job when the protection level changes.
func (c *Client) enqueueTransfer(job *Job) {
	if job.Protection == ProtectionDefault {
		job.Protection = c.dataProt
	}
	if c.tlsMode == TLSNone {
		job.Protection = ProtectionClear
	}
	c.jobMu.Lock()
	if c.tlsMode != TLSNone && job.Protection != c.queuedProt {
		c.queuedProt = job.Protection
		c.jobs.Add(newJob(VerbProt, job.Protection.String()))
	}
	c.jobs.Add(newJob(VerbPasv, ""))
	c.jobs.Add(job)
	c.processNext()
	c.unlock()
}

// processNext sends the head job when nothing is in flight. jobMu must be
// held.
func (c *Client) processNext() {
	if c.inProgress || c.jobs.Length() == 0 || c.state == StateDisconnected {
		return
	}
	job := c.jobs.Peek().(*Job)
	switch {
	case job.Verb == VerbPasv:
		c.state = StatePasv
	case isTransfer(job.Verb):
		if c.xfer == nil || c.xfer.job != job {
			// A transfer only runs behind a successful PASV.
			c.jobs.Remove()
			c.metrics.ObserveJob(job.Verb, "failed")
			c.later(func() { c.finish(job, "", true) })
			c.processNext()
			return
		}
		c.state = StateData
	default:
		c.state = StateGen
	}
	c.inProgress = true
	c.send(job.Verb, job.Remote)
}

// skipPair drops a failed PASV job and the transfer behind it.
func (c *Client) skipPair(reply string) {
	if c.jobs.Length() > 0 {
		pasv := c.jobs.Remove().(*Job)
		c.metrics.ObserveJob(pasv.Verb, "failed")
	}
	if c.jobs.Length() > 0 {
		if next := c.jobs.Peek().(*Job); isTransfer(next.Verb) {
			c.jobs.Remove()
			c.metrics.ObserveJob(next.Verb, "failed")
			c.later(func() { c.finish(next, reply, true) })
		}
	}
	c.inProgress = false
	c.processNext()
}
