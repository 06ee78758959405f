package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/carprober/internal/core"
)

func TestSetThenResetRestoresStartupState(t *testing.T) {
	r := New()
	startup := r.Snapshot()

	r.SetConnection(core.BrandBMW, core.LoopbackHost, 4005)
	require.True(t, r.IsConnected())
	assert.Equal(t, core.ConnectionState{Connected: true, Brand: core.BrandBMW, Host: "127.0.0.1", Port: 4005}, r.Snapshot())

	r.Reset()
	assert.False(t, r.IsConnected())
	assert.Equal(t, startup, r.Snapshot())
}

func TestRepeatedSetIsNoop(t *testing.T) {
	r := New()
	var got []core.ConnectionState
	r.Subscribe(func(s core.ConnectionState) { got = append(got, s) })

	r.SetConnection(core.BrandMini, core.LoopbackHost, 4007)
	r.SetConnection(core.BrandMini, core.LoopbackHost, 4007)
	r.Reset()
	r.Reset()

	require.Len(t, got, 2)
	assert.True(t, got[0].Connected)
	assert.False(t, got[1].Connected)
}

func TestSetWithDifferentPortNotifies(t *testing.T) {
	r := New()
	var ports []int
	r.Subscribe(func(s core.ConnectionState) { ports = append(ports, s.Port) })

	r.SetConnection(core.BrandBMW, core.LoopbackHost, 4004)
	r.SetConnection(core.BrandBMW, core.LoopbackHost, 4005)

	assert.Equal(t, []int{4004, 4005}, ports)
}

func TestUnsubscribe(t *testing.T) {
	r := New()
	calls := 0
	unsubscribe := r.Subscribe(func(core.ConnectionState) { calls++ })

	r.SetConnection(core.BrandBMW, core.LoopbackHost, 4004)
	unsubscribe()
	r.Reset()

	assert.Equal(t, 1, calls)
}

func TestListenersRunInSubscriptionOrderAndMayRead(t *testing.T) {
	r := New()
	var order []string
	r.Subscribe(func(s core.ConnectionState) {
		order = append(order, "first")
		assert.Equal(t, s.Connected, r.IsConnected())
	})
	r.Subscribe(func(core.ConnectionState) { order = append(order, "second") })

	r.SetConnection(core.BrandBMW, core.LoopbackHost, 4004)

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestConcurrentReadersSeeConsistentSnapshots(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s := r.Snapshot()
				if s.Connected {
					assert.Equal(t, core.LoopbackHost, s.Host)
					assert.NotZero(t, s.Port)
				} else {
					assert.Equal(t, core.ConnectionState{}, s)
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		r.SetConnection(core.BrandBMW, core.LoopbackHost, 4004+i%5)
		r.Reset()
	}
	close(stop)
	wg.Wait()
}

func TestStdIsShared(t *testing.T) {
	assert.Same(t, Std(), Std())
}
