package dsserver

import (
	"errors"
	"sync"
	"time"
)

// Admission denial labels, also used as metric label values.
const (
	denyCapacity = "capacity"
	denyClosed   = "closed"
	denyRate     = "rate"
)

var errCounterUnderflow = errors.New("client counter already at zero")

// clientCounter is the number of running workers. It only moves by +1 on
// admission and -1 on worker completion, always under mu. Once closed it
// admits nobody, which is how shutdown and idle exit stop new work.
//
// While an idle exit is being decided the counter is held: admissions wait
// for the decision instead of being denied.
type clientCounter struct {
	mu     sync.Mutex
	n      int
	closed bool
	held   chan struct{}
}

// tryAdmit increments the counter unless the server is closed or, with a
// positive ceiling, already full. On refusal it returns a denial label.
// It blocks while the counter is held.
func (c *clientCounter) tryAdmit(ceiling int) (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.held != nil && !c.closed {
		held := c.held
		c.mu.Unlock()
		<-held
		c.mu.Lock()
	}

	if c.closed {
		return c.n, denyClosed
	}
	if ceiling > 0 && c.n >= ceiling {
		return c.n, denyCapacity
	}
	c.n++
	return c.n, ""
}

func (c *clientCounter) release() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.n == 0 {
		return 0, errCounterUnderflow
	}
	c.n--
	return c.n, nil
}

func (c *clientCounter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// holdIfIdle holds admissions only if nobody is being served. The caller
// must follow with unhold or close.
func (c *clientCounter) holdIfIdle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.held != nil || c.n != 0 {
		return false
	}
	c.held = make(chan struct{})
	return true
}

// unhold lets waiting admissions proceed.
func (c *clientCounter) unhold() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseHold()
}

// close denies every later admission, including those waiting on a hold.
func (c *clientCounter) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.releaseHold()
}

func (c *clientCounter) releaseHold() {
	if c.held != nil {
		close(c.held)
		c.held = nil
	}
}

// serverState is the shared runtime state of one Server. Each field has its
// own lock; the only nesting is actMu -> clients.mu.
type serverState struct {
	clients  clientCounter
	registry threadRegistry

	actMu      sync.Mutex
	lastAction time.Time

	now func() time.Time
}

func newServerState() *serverState {
	return &serverState{now: time.Now, lastAction: time.Now()}
}

func (s *serverState) touch() {
	s.actMu.Lock()
	s.lastAction = s.now()
	s.actMu.Unlock()
}

func (s *serverState) quietFor() time.Duration {
	s.actMu.Lock()
	defer s.actMu.Unlock()
	return s.now().Sub(s.lastAction)
}

// clientDone records worker completion. The activity stamp and the decrement
// happen under actMu so the monitor never sees a fresh count with a stale
// stamp.
func (s *serverState) clientDone() (int, error) {
	s.actMu.Lock()
	defer s.actMu.Unlock()

	s.lastAction = s.now()
	return s.clients.release()
}

// idleExitCandidate checks idle time first and only then, under its own
// lock, the client count. When it returns true admissions are held until
// the caller unholds or closes the counter.
func (s *serverState) idleExitCandidate(maxQuiet time.Duration) bool {
	s.actMu.Lock()
	defer s.actMu.Unlock()

	if s.now().Sub(s.lastAction) < maxQuiet {
		return false
	}
	return s.clients.holdIfIdle()
}
