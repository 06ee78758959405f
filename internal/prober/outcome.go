package prober

import (
	"errors"
	"fmt"

	"github.com/autopeer-io/carprober/internal/core"
)

// OutcomeKind classifies what a single port probe found.
type OutcomeKind int

const (
	OutcomePortClosed OutcomeKind = iota
	OutcomeNotReady
	OutcomeHandshakeFailed
	OutcomeConnected
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomePortClosed:
		return "port_closed"
	case OutcomeNotReady:
		return "not_ready"
	case OutcomeHandshakeFailed:
		return "handshake_failed"
	case OutcomeConnected:
		return "connected"
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

// Outcome is the result of probing one port. Brand and Session are set for
// OutcomeConnected; Message and Cause for OutcomeHandshakeFailed.
type Outcome struct {
	Kind OutcomeKind
	Port int

	Brand   core.Brand
	Session core.Session

	Message string
	Cause   error
}

// Handshake steps, in the order they run.
const (
	StepCertFragment  = "brand_cert_fragment"
	StepDial          = "connect"
	StepCertificate   = "sas_certificate"
	StepSignChallenge = "sign_challenge"
	StepLogin         = "sas_login"
	StepCapabilities  = "rhmi_get_capabilities"
	StepClassify      = "classify"
)

var (
	// ErrIllegalState reports a keepalive with no session to ping.
	ErrIllegalState = errors.New("illegal state: no head-unit session")

	// ErrUnknownHMI reports an hmi.type that matches no brand.
	ErrUnknownHMI = errors.New("unrecognized hmi.type")
)

// HandshakeError records where a login attempt under one brand failed.
type HandshakeError struct {
	Brand core.Brand
	Step  string
	Err   error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("%s handshake failed at %s: %v", e.Brand, e.Step, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }
