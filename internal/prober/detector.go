package prober

import (
	"context"
	"fmt"

	"github.com/autopeer-io/carprober/internal/core"
	"github.com/autopeer-io/carprober/internal/latency"
	"github.com/autopeer-io/carprober/pkg/log"
)

// BrandDetector logs in to a head-unit proxy and classifies it.
type BrandDetector interface {
	// Detect returns OutcomeNotReady, OutcomeHandshakeFailed or
	// OutcomeConnected. A connected outcome hands its session to the caller.
	Detect(ctx context.Context, port int) Outcome
}

// DetectorConfig wires a Detector to its collaborators.
type DetectorConfig struct {
	Oracle core.SecurityOracle
	Dialer core.Dialer
	Mangle core.MangleFunc

	// Certs holds the brand certificates; a missing brand presents an empty cert.
	Certs map[core.Brand][]byte

	Sampler *latency.Sampler
	Events  core.EventSink
}

// Detector tries every brand in core.Brands against a port.
type Detector struct {
	oracle  core.SecurityOracle
	dialer  core.Dialer
	mangle  core.MangleFunc
	certs   map[core.Brand][]byte
	sampler *latency.Sampler
	events  core.EventSink
}

var _ BrandDetector = (*Detector)(nil)

// NewDetector builds a Detector. Events may be nil.
func NewDetector(cfg DetectorConfig) *Detector {
	events := cfg.Events
	if events == nil {
		events = core.Sinks{}
	}
	sampler := cfg.Sampler
	if sampler == nil {
		sampler = latency.NewSampler()
	}
	return &Detector{
		oracle:  cfg.Oracle,
		dialer:  cfg.Dialer,
		mangle:  cfg.Mangle,
		certs:   cfg.Certs,
		sampler: sampler,
		events:  events,
	}
}

func (d *Detector) Detect(ctx context.Context, port int) Outcome {
	if !d.oracle.Ready() {
		return Outcome{Kind: OutcomeNotReady, Port: port}
	}

	var lastErr *HandshakeError
	for _, brand := range core.Brands {
		sess, caps, herr := d.handshake(ctx, brand, port)
		if herr != nil {
			lastErr = herr
			log.Warn("Head unit rejected handshake", "port", port, "brand", brand, "step", herr.Step, "error", herr.Err)
			continue
		}

		vehicleType, hmiType := caps.String(core.CapVehicleType), caps.String(core.CapHMIType)
		d.events.ProbeDiscovered(port, vehicleType, hmiType)
		log.Info("Probing detected a HMI type", "port", port, "hmiType", hmiType, "vehicleType", vehicleType)

		if classified, ok := core.ClassifyHMI(hmiType); ok {
			return Outcome{Kind: OutcomeConnected, Port: port, Brand: classified, Session: sess}
		}

		closeSession(sess, port)
		lastErr = &HandshakeError{Brand: brand, Step: StepClassify, Err: fmt.Errorf("%w %q", ErrUnknownHMI, hmiType)}
	}

	msg := lastErr.Err.Error()
	d.events.ProbeFailure(port, msg, lastErr)
	return Outcome{Kind: OutcomeHandshakeFailed, Port: port, Message: msg, Cause: lastErr}
}

// handshake runs certificate exchange, login and the capability query under
// one brand. The session is closed on every failure path.
func (d *Detector) handshake(ctx context.Context, brand core.Brand, port int) (core.Session, core.Capabilities, *HandshakeError) {
	fail := func(step string, err error) *HandshakeError {
		return &HandshakeError{Brand: brand, Step: step, Err: err}
	}

	fragment, err := d.oracle.BrandCertFragment(brand)
	if err != nil {
		return nil, nil, fail(StepCertFragment, err)
	}
	signedCert := d.mangle(d.certs[brand], fragment)

	sess, err := d.dialer.Dial(ctx, core.LoopbackHost, port)
	if err != nil {
		return nil, nil, fail(StepDial, err)
	}

	challenge, err := sess.SASCertificate(ctx, signedCert)
	if err != nil {
		closeSession(sess, port)
		return nil, nil, fail(StepCertificate, err)
	}

	signed, err := d.oracle.SignChallenge(challenge)
	if err != nil {
		closeSession(sess, port)
		return nil, nil, fail(StepSignChallenge, err)
	}

	if err := sess.SASLogin(ctx, signed); err != nil {
		closeSession(sess, port)
		return nil, nil, fail(StepLogin, err)
	}

	caps, err := latency.Time(d.sampler, func() (core.Capabilities, error) {
		return sess.RHMIGetCapabilities(ctx, "", 255)
	})
	if err != nil {
		closeSession(sess, port)
		return nil, nil, fail(StepCapabilities, err)
	}

	return sess, caps, nil
}

func closeSession(sess core.Session, port int) {
	if err := sess.Close(); err != nil {
		log.Debug("Closing head-unit session failed", "port", port, "error", err)
	}
}
