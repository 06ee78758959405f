package prober

import (
	"time"

	"k8s.io/utils/clock"
)

type taskKind int

const (
	taskSearch taskKind = iota
	taskKeepalive
)

func (k taskKind) String() string {
	if k == taskKeepalive {
		return "keepalive"
	}
	return "search"
}

// scheduler holds at most one pending task. Arming a new one cancels the old.
type scheduler struct {
	clock clock.Clock
	timer clock.Timer

	task  taskKind
	delay time.Duration
}

func newScheduler(c clock.Clock) *scheduler {
	return &scheduler{clock: c}
}

func (s *scheduler) arm(task taskKind, d time.Duration) {
	s.cancel()
	s.timer = s.clock.NewTimer(d)
	s.task = task
	s.delay = d
}

func (s *scheduler) cancel() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// C returns the pending task's channel, or nil when nothing is armed.
// Receiving from a nil channel blocks forever, which keeps select loops simple.
func (s *scheduler) C() <-chan time.Time {
	if s.timer == nil {
		return nil
	}
	return s.timer.C()
}

// fire consumes the pending task after its channel delivered.
func (s *scheduler) fire() taskKind {
	s.timer = nil
	return s.task
}

func (s *scheduler) pending() (taskKind, time.Duration, bool) {
	return s.task, s.delay, s.timer != nil
}
