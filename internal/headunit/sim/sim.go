// Package sim is a stand-in for the head-unit proxy and its security
// service, for development machines without a car attached.
//
// The simulator listens on a loopback port so the real port probe finds it,
// but sessions are served in process: the RPC transport is not modelled.
package sim

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/carprober/internal/core"
	"github.com/autopeer-io/carprober/pkg/log"
	"github.com/autopeer-io/carprober/pkg/options"
)

var (
	ErrRefused       = errors.New("connection refused")
	ErrClosed        = errors.New("session closed")
	ErrOffline       = errors.New("head unit went offline")
	ErrCertRejected  = errors.New("certificate rejected")
	ErrLoginRejected = errors.New("challenge response rejected")
	ErrNotLoggedIn   = errors.New("not logged in")
)

var signingKey = []byte("carprober-simulator")

// DefaultCerts are presented when no certificate file is configured.
var DefaultCerts = map[core.Brand][]byte{
	core.BrandBMW:  []byte("sim-bmw-cert"),
	core.BrandMini: []byte("sim-mini-cert"),
}

// Mangle appends the fragment to the brand certificate.
func Mangle(brandCert, fragment []byte) []byte {
	out := make([]byte, 0, len(brandCert)+len(fragment))
	out = append(out, brandCert...)
	return append(out, fragment...)
}

// Simulator plays both the head-unit proxy and the security oracle.
type Simulator struct {
	brand       core.Brand
	hmiType     string
	vehicleType string
	readyAfter  time.Duration
	certs       map[core.Brand][]byte
	clock       clock.PassiveClock

	addr string

	mu        sync.Mutex
	listener  net.Listener
	startedAt time.Time

	online     atomic.Bool
	challenges atomic.Int64
}

var (
	_ core.SecurityOracle = (*Simulator)(nil)
	_ core.Dialer         = (*Simulator)(nil)
)

// Option customizes a Simulator.
type Option func(*Simulator)

// WithClock sets the clock used for the warm-up delay.
func WithClock(c clock.PassiveClock) Option {
	return func(s *Simulator) { s.clock = c }
}

// WithCerts overrides the accepted brand certificates.
func WithCerts(certs map[core.Brand][]byte) Option {
	return func(s *Simulator) {
		for b, c := range certs {
			if len(c) > 0 {
				s.certs[b] = c
			}
		}
	}
}

func New(opts *options.SimulatorOptions, opt ...Option) (*Simulator, error) {
	brand, err := core.ParseBrand(opts.Brand)
	if err != nil {
		return nil, err
	}

	s := &Simulator{
		brand:       brand,
		hmiType:     opts.HMIType,
		vehicleType: opts.VehicleType,
		readyAfter:  opts.ReadyAfter,
		certs:       make(map[core.Brand][]byte, len(DefaultCerts)),
		clock:       clock.RealClock{},
		addr:        net.JoinHostPort(core.LoopbackHost, strconv.Itoa(opts.Port)),
	}
	for b, c := range DefaultCerts {
		s.certs[b] = c
	}
	for _, o := range opt {
		o(s)
	}
	return s, nil
}

// Certs returns the brand certificates the simulator accepts.
func (s *Simulator) Certs() map[core.Brand][]byte {
	out := make(map[core.Brand][]byte, len(s.certs))
	for b, c := range s.certs {
		out[b] = c
	}
	return out
}

// Listen binds the loopback port. The security service warm-up starts here.
func (s *Simulator) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("simulator listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.startedAt = s.clock.Now()
	s.mu.Unlock()
	s.online.Store(true)

	log.Info("Head-unit simulator listening", "addr", ln.Addr().String(), "brand", s.brand, "hmiType", s.hmiType)
	return nil
}

// Port returns the bound port, or 0 before Listen.
func (s *Simulator) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Serve accepts and immediately closes probe connections until ctx is done.
// Live sessions fail their next call afterwards.
func (s *Simulator) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("simulator is not listening")
	}

	go func() {
		<-ctx.Done()
		s.online.Store(false)
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Head-unit simulator stopped")
				return nil
			}
			return err
		}
		_ = conn.Close()
	}
}

// Ready reports true once the warm-up delay has passed since Listen.
func (s *Simulator) Ready() bool {
	if !s.online.Load() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Since(s.startedAt) >= s.readyAfter
}

func (s *Simulator) BrandCertFragment(brand core.Brand) ([]byte, error) {
	return []byte("+fragment/" + brand.String()), nil
}

func (s *Simulator) SignChallenge(challenge []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, signingKey)
	mac.Write(challenge)
	return mac.Sum(nil), nil
}

// Dial opens an in-process session if the simulator is listening on port.
func (s *Simulator) Dial(_ context.Context, host string, port int) (core.Session, error) {
	if !s.online.Load() || host != core.LoopbackHost || port != s.Port() {
		return nil, ErrRefused
	}
	return &session{sim: s}, nil
}

func (s *Simulator) expectedCert() []byte {
	fragment, _ := s.BrandCertFragment(s.brand)
	return Mangle(s.certs[s.brand], fragment)
}
