// File: protocol/ftp/state.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ftp

// State is a control channel state.
type State uint8

// Login states are named after the command awaiting its reply; CHECK waits
// for PBSZ after a protected login. DATA waits for the preliminary reply of
// a transfer command, 1YZ for its final reply and XYZ for the data channel
// to close. GEN covers every other command.
const (
	StateDisconnected State = iota
	StateConnected
	StateAuth
	StateTLS
	StateUser
	StatePass
	StateAcct
	StateCheck
	StateReady
	StatePasv
	StateData
	State1yz
	StateXyz
	StateGen
)

var stateNames = [...]string{
	StateDisconnected: "DISCONNECTED",
	StateConnected:    "CONNECTED",
	StateAuth:         "AUTH",
	StateTLS:          "TLS",
	StateUser:         "USER",
	StatePass:         "PASS",
	StateAcct:         "ACCT",
	StateCheck:        "CHECK",
	StateReady:        "READY",
	StatePasv:         "PASV",
	StateData:         "DATA",
	State1yz:          "1YZ",
	StateXyz:          "XYZ",
	StateGen:          "GEN",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// Action is the work attached to a transition.
type Action uint8

const (
	ActNone Action = iota
	ActGreeting
	ActStartTLS
	ActAuthFailed
	ActSendPass
	ActSendAcct
	ActLoggedIn
	ActLoginFailed
	ActProtectionSet
	ActOpenData
	ActSkipPair
	ActTransferStart
	ActTransferFinal
	ActTransferFailed
	ActGenResponse
)

var actionNames = [...]string{
	"none", "greeting", "start-tls", "auth-failed", "send-pass", "send-acct",
	"logged-in", "login-failed", "protection-set", "open-data", "skip-pair",
	"transfer-start", "transfer-final", "transfer-failed", "gen-response",
}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "unknown"
}

// Transition is one row of the state table.
type Transition struct {
	From   State
	Digit  byte
	To     State
	Action Action
}

var table = []Transition{
	{StateConnected, '1', StateConnected, ActNone},
	{StateConnected, '2', StateUser, ActGreeting},
	{StateConnected, '4', StateConnected, ActNone},

	{StateAuth, '2', StateTLS, ActStartTLS},
	{StateAuth, '4', StateConnected, ActAuthFailed},
	{StateAuth, '5', StateConnected, ActAuthFailed},

	{StateUser, '1', StateUser, ActNone},
	{StateUser, '2', StateReady, ActLoggedIn},
	{StateUser, '3', StatePass, ActSendPass},
	{StateUser, '4', StateUser, ActLoginFailed},
	{StateUser, '5', StateUser, ActLoginFailed},

	{StatePass, '1', StateUser, ActLoginFailed},
	{StatePass, '2', StateReady, ActLoggedIn},
	{StatePass, '3', StateAcct, ActSendAcct},
	{StatePass, '4', StateUser, ActLoginFailed},
	{StatePass, '5', StateUser, ActLoginFailed},

	{StateAcct, '1', StateUser, ActLoginFailed},
	{StateAcct, '2', StateReady, ActLoggedIn},
	{StateAcct, '4', StateUser, ActLoginFailed},
	{StateAcct, '5', StateUser, ActLoginFailed},

	{StateCheck, '2', StateReady, ActProtectionSet},
	{StateCheck, '4', StateReady, ActProtectionSet},
	{StateCheck, '5', StateReady, ActProtectionSet},

	{StatePasv, '1', StateReady, ActSkipPair},
	{StatePasv, '2', StateData, ActOpenData},
	{StatePasv, '4', StateReady, ActSkipPair},
	{StatePasv, '5', StateReady, ActSkipPair},

	{StateData, '1', State1yz, ActTransferStart},
	{StateData, '2', StateXyz, ActTransferFinal},
	{StateData, '4', StateXyz, ActTransferFailed},
	{StateData, '5', StateXyz, ActTransferFailed},

	{State1yz, '1', State1yz, ActNone},
	{State1yz, '2', StateXyz, ActTransferFinal},
	{State1yz, '4', StateXyz, ActTransferFailed},
	{State1yz, '5', StateXyz, ActTransferFailed},

	{StateGen, '1', StateGen, ActNone},
	{StateGen, '2', StateReady, ActGenResponse},
	{StateGen, '3', StateReady, ActGenResponse},
	{StateGen, '4', StateReady, ActGenResponse},
	{StateGen, '5', StateReady, ActGenResponse},
}

// Next looks up the transition for a reply whose code starts with digit.
// ok is false when the table has no row for the pair.
func Next(s State, digit byte) (to State, act Action, ok bool) {
	for _, t := range table {
		if t.From == s && t.Digit == digit {
			return t.To, t.Action, true
		}
	}
	return s, ActNone, false
}

// Table returns a copy of the transition table.
func Table() []Transition {
	return append([]Transition(nil), table...)
}
