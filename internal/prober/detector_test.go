package prober

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/carprober/internal/core"
	"github.com/autopeer-io/carprober/internal/latency"
)

func newTestDetector(oracle *fakeOracle, dialer *fakeDialer, sink core.EventSink) (*Detector, *latency.Sampler) {
	sampler := latency.NewSampler()
	return NewDetector(DetectorConfig{
		Oracle:  oracle,
		Dialer:  dialer,
		Mangle:  appendMangle,
		Certs:   testCerts,
		Sampler: sampler,
		Events:  sink,
	}), sampler
}

func TestDetectBMW(t *testing.T) {
	sess := &fakeSession{caps: bmwCaps()}
	dialer := &fakeDialer{}
	dialer.queue(sess)
	sink := &recordingSink{}
	d, sampler := newTestDetector(&fakeOracle{ready: true}, dialer, sink)

	out := d.Detect(context.Background(), 4005)

	require.Equal(t, OutcomeConnected, out.Kind)
	assert.Equal(t, core.BrandBMW, out.Brand)
	assert.Equal(t, 4005, out.Port)
	assert.Same(t, sess, out.Session)
	assert.Equal(t, []byte("bmw-cert+bmw"), sess.presented)
	assert.Zero(t, sess.closeCount())
	assert.Equal(t, []discovered{{4005, "F22", "BMW_ID5"}}, sink.discovered)
	assert.Empty(t, sink.failures)
	assert.Equal(t, int64(1), sampler.Samples())
}

func TestDetectWrongBrandFallback(t *testing.T) {
	bmw := &fakeSession{certErr: errors.New("bad cert")}
	mini := &fakeSession{caps: core.Capabilities{core.CapHMIType: "MINI_ID4", core.CapVehicleType: "F56"}}
	dialer := &fakeDialer{}
	dialer.queue(bmw, mini)
	sink := &recordingSink{}
	d, _ := newTestDetector(&fakeOracle{ready: true}, dialer, sink)

	out := d.Detect(context.Background(), 4007)

	require.Equal(t, OutcomeConnected, out.Kind)
	assert.Equal(t, core.BrandMini, out.Brand)
	assert.Equal(t, []byte("mini-cert+mini"), mini.presented)
	assert.Equal(t, 1, bmw.closeCount())
	assert.Equal(t, []discovered{{4007, "F56", "MINI_ID4"}}, sink.discovered)
	assert.Empty(t, sink.failures)
}

func TestDetectAllBrandsFail(t *testing.T) {
	badSig := errors.New("bad sig")
	bmw := &fakeSession{certErr: errors.New("bad cert")}
	mini := &fakeSession{loginErr: badSig}
	dialer := &fakeDialer{}
	dialer.queue(bmw, mini)
	sink := &recordingSink{}
	d, _ := newTestDetector(&fakeOracle{ready: true}, dialer, sink)

	out := d.Detect(context.Background(), 4004)

	require.Equal(t, OutcomeHandshakeFailed, out.Kind)
	assert.Equal(t, "bad sig", out.Message)
	assert.ErrorIs(t, out.Cause, badSig)

	var herr *HandshakeError
	require.ErrorAs(t, out.Cause, &herr)
	assert.Equal(t, core.BrandMini, herr.Brand)
	assert.Equal(t, StepLogin, herr.Step)

	require.Len(t, sink.failures, 1)
	assert.Equal(t, 4004, sink.failures[0].port)
	assert.Equal(t, "bad sig", sink.failures[0].message)
	assert.ErrorIs(t, sink.failures[0].cause, badSig)
	assert.Empty(t, sink.discovered)

	assert.Equal(t, 1, bmw.closeCount())
	assert.Equal(t, 1, mini.closeCount())
}

func TestDetectUnknownHMI(t *testing.T) {
	caps := core.Capabilities{core.CapHMIType: "AUDI_MIB3", core.CapVehicleType: "A4"}
	first, second := &fakeSession{caps: caps}, &fakeSession{caps: caps}
	dialer := &fakeDialer{}
	dialer.queue(first, second)
	sink := &recordingSink{}
	d, _ := newTestDetector(&fakeOracle{ready: true}, dialer, sink)

	out := d.Detect(context.Background(), 4006)

	require.Equal(t, OutcomeHandshakeFailed, out.Kind)
	assert.ErrorIs(t, out.Cause, ErrUnknownHMI)
	assert.Len(t, sink.discovered, 2)
	assert.Len(t, sink.failures, 1)
	assert.Equal(t, 1, first.closeCount())
	assert.Equal(t, 1, second.closeCount())
}

func TestDetectNotReady(t *testing.T) {
	dialer := &fakeDialer{}
	sink := &recordingSink{}
	d, _ := newTestDetector(&fakeOracle{ready: false}, dialer, sink)

	out := d.Detect(context.Background(), 4004)

	assert.Equal(t, OutcomeNotReady, out.Kind)
	assert.Zero(t, dialer.dialCount())
	assert.Empty(t, sink.discovered)
	assert.Empty(t, sink.failures)
}

func TestDetectFailedCapabilitiesNotSampled(t *testing.T) {
	dialer := &fakeDialer{}
	dialer.queue(
		&fakeSession{capsErr: errors.New("timeout")},
		&fakeSession{capsErr: errors.New("timeout")},
	)
	d, sampler := newTestDetector(&fakeOracle{ready: true}, dialer, &recordingSink{})

	out := d.Detect(context.Background(), 4004)

	assert.Equal(t, OutcomeHandshakeFailed, out.Kind)
	assert.Zero(t, sampler.Samples())
}

func TestDetectDialFailure(t *testing.T) {
	sink := &recordingSink{}
	d, _ := newTestDetector(&fakeOracle{ready: true}, &fakeDialer{}, sink)

	out := d.Detect(context.Background(), 4008)

	require.Equal(t, OutcomeHandshakeFailed, out.Kind)
	assert.Equal(t, "connection refused", out.Message)
	var herr *HandshakeError
	require.ErrorAs(t, out.Cause, &herr)
	assert.Equal(t, StepDial, herr.Step)
}
