package prober

import (
	"context"
	"errors"
	"sync"

	"github.com/autopeer-io/carprober/internal/core"
)

var (
	bmwCert   = []byte("bmw-cert")
	miniCert  = []byte("mini-cert")
	testCerts = map[core.Brand][]byte{core.BrandBMW: bmwCert, core.BrandMini: miniCert}
)

func appendMangle(cert, fragment []byte) []byte {
	return append(append([]byte{}, cert...), fragment...)
}

// fakeSession fails at the first step with a configured error.
type fakeSession struct {
	mu sync.Mutex

	certErr  error
	loginErr error
	capsErr  error
	pingErr  error
	caps     core.Capabilities

	presented []byte
	pings     int
	closed    int
}

func (s *fakeSession) SASCertificate(_ context.Context, cert []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presented = cert
	if s.certErr != nil {
		return nil, s.certErr
	}
	return []byte("challenge"), nil
}

func (s *fakeSession) SASLogin(context.Context, []byte) error { return s.loginErr }

func (s *fakeSession) RHMIGetCapabilities(context.Context, string, int) (core.Capabilities, error) {
	if s.capsErr != nil {
		return nil, s.capsErr
	}
	return s.caps, nil
}

func (s *fakeSession) VerGetVersion(context.Context) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pings++
	if s.pingErr != nil {
		return nil, s.pingErr
	}
	return "1.0", nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeDialer hands out queued sessions in order and records each dial.
type fakeDialer struct {
	mu       sync.Mutex
	sessions []*fakeSession
	dials    []int
}

func (d *fakeDialer) queue(sessions ...*fakeSession) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions = append(d.sessions, sessions...)
}

func (d *fakeDialer) Dial(_ context.Context, _ string, port int) (core.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, port)
	if len(d.sessions) == 0 {
		return nil, errors.New("connection refused")
	}
	s := d.sessions[0]
	d.sessions = d.sessions[1:]
	return s, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

type fakeOracle struct {
	mu      sync.Mutex
	ready   bool
	signErr error
}

func (o *fakeOracle) setReady(ready bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ready = ready
}

func (o *fakeOracle) Ready() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ready
}

func (o *fakeOracle) BrandCertFragment(b core.Brand) ([]byte, error) {
	return []byte("+" + string(b)), nil
}

func (o *fakeOracle) SignChallenge(c []byte) ([]byte, error) {
	if o.signErr != nil {
		return nil, o.signErr
	}
	return append([]byte("signed:"), c...), nil
}

type discovered struct {
	port        int
	vehicleType string
	hmiType     string
}

type failure struct {
	port    int
	message string
	cause   error
}

type recordingSink struct {
	mu         sync.Mutex
	discovered []discovered
	failures   []failure
}

func (r *recordingSink) ProbeDiscovered(port int, vehicleType, hmiType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discovered = append(r.discovered, discovered{port, vehicleType, hmiType})
}

func (r *recordingSink) ProbeFailure(port int, message string, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, failure{port, message, cause})
}

// fakePorts reports the listed ports as open and records probes.
type fakePorts struct {
	mu     sync.Mutex
	open   map[int]bool
	probed []int
}

func openPorts(ports ...int) *fakePorts {
	f := &fakePorts{open: map[int]bool{}}
	for _, p := range ports {
		f.open[p] = true
	}
	return f
}

func (f *fakePorts) IsOpen(_ context.Context, port int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probed = append(f.probed, port)
	return f.open[port]
}

func bmwCaps() core.Capabilities {
	return core.Capabilities{core.CapHMIType: "BMW_ID5", core.CapVehicleType: "F22"}
}
