package dsserver

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientCounter(t *testing.T) {
	t.Run("CeilingDeniesAtLimit", func(t *testing.T) {
		var c clientCounter
		n, reason := c.tryAdmit(2)
		assert.Equal(t, 1, n)
		assert.Empty(t, reason)

		_, reason = c.tryAdmit(2)
		assert.Empty(t, reason)

		n, reason = c.tryAdmit(2)
		assert.Equal(t, denyCapacity, reason)
		assert.Equal(t, 2, n, "denial must not change the count")
	})

	t.Run("NonPositiveCeilingIsUnbounded", func(t *testing.T) {
		var c clientCounter
		for range 100 {
			_, reason := c.tryAdmit(0)
			require.Empty(t, reason)
		}
		assert.Equal(t, 100, c.get())
	})

	t.Run("ClosedDeniesEveryone", func(t *testing.T) {
		var c clientCounter
		c.close()
		_, reason := c.tryAdmit(10)
		assert.Equal(t, denyClosed, reason)

		assert.False(t, c.holdIfIdle(), "closed counter cannot be held")
	})

	t.Run("ReleaseUnderflow", func(t *testing.T) {
		var c clientCounter
		_, err := c.release()
		assert.ErrorIs(t, err, errCounterUnderflow)
		assert.Equal(t, 0, c.get())
	})

	t.Run("HoldIfIdle", func(t *testing.T) {
		var c clientCounter
		c.tryAdmit(0)
		assert.False(t, c.holdIfIdle(), "busy counter must not be held")

		_, err := c.release()
		require.NoError(t, err)
		assert.True(t, c.holdIfIdle())
		assert.False(t, c.holdIfIdle(), "already held")
		c.unhold()
	})

	t.Run("HeldAdmissionWaitsForUnhold", func(t *testing.T) {
		var c clientCounter
		require.True(t, c.holdIfIdle())

		admitted := make(chan string, 1)
		go func() {
			_, reason := c.tryAdmit(0)
			admitted <- reason
		}()

		select {
		case reason := <-admitted:
			t.Fatalf("admission returned %q while held", reason)
		case <-time.After(50 * time.Millisecond):
		}

		c.unhold()
		select {
		case reason := <-admitted:
			assert.Empty(t, reason)
		case <-time.After(2 * time.Second):
			t.Fatal("admission still blocked after unhold")
		}
		assert.Equal(t, 1, c.get())
	})

	t.Run("HeldAdmissionDeniedOnClose", func(t *testing.T) {
		var c clientCounter
		require.True(t, c.holdIfIdle())

		admitted := make(chan string, 1)
		go func() {
			_, reason := c.tryAdmit(0)
			admitted <- reason
		}()

		c.close()
		select {
		case reason := <-admitted:
			assert.Equal(t, denyClosed, reason)
		case <-time.After(2 * time.Second):
			t.Fatal("admission still blocked after close")
		}
		assert.Equal(t, 0, c.get())
	})
}

func TestServerState(t *testing.T) {
	now := time.Unix(1_000, 0)
	s := newServerState()
	s.now = func() time.Time { return now }
	s.touch()

	t.Run("NotQuietEnough", func(t *testing.T) {
		now = now.Add(time.Second)
		assert.False(t, s.idleExitCandidate(5*time.Second))
	})

	t.Run("QuietButBusy", func(t *testing.T) {
		s.clients.tryAdmit(0)
		now = now.Add(10 * time.Second)
		assert.False(t, s.idleExitCandidate(5*time.Second))
	})

	t.Run("ClientDoneResetsQuietTime", func(t *testing.T) {
		n, err := s.clientDone()
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, time.Duration(0), s.quietFor())
		assert.False(t, s.idleExitCandidate(5*time.Second))
	})

	t.Run("QuietAndEmptyHoldsAdmissions", func(t *testing.T) {
		now = now.Add(5 * time.Second)
		assert.True(t, s.idleExitCandidate(5*time.Second))
		assert.False(t, s.idleExitCandidate(5*time.Second), "decision already pending")

		s.clients.close()
		_, reason := s.clients.tryAdmit(0)
		assert.Equal(t, denyClosed, reason)
	})
}

func TestThreadRegistryPurge(t *testing.T) {
	var r threadRegistry
	cfg := &Config{}

	newEntry := func() *workerEntry {
		a, b := net.Pipe()
		t.Cleanup(func() { _ = b.Close() })
		return r.add(newClientConnection(uint64(r.size()+1), a, cfg))
	}

	running := newEntry()
	unwinding := newEntry()
	finished := newEntry()

	r.markDone(unwinding)
	r.markDone(finished)
	close(finished.finished)

	assert.Equal(t, 3, r.size())
	assert.Equal(t, 1, r.pending())

	assert.Equal(t, 1, r.purgeCompleted())
	assert.Equal(t, 2, r.size())

	// A done entry is only removed once its goroutine has returned.
	close(unwinding.finished)
	assert.Equal(t, 1, r.purgeCompleted())
	assert.Equal(t, 1, r.size())

	r.markDone(running)
	r.markDone(running)
	close(running.finished)
	assert.Equal(t, 1, r.purgeCompleted())
	assert.Equal(t, 0, r.size())
	assert.Equal(t, 0, r.purgeCompleted())
}

func TestNextBackoff(t *testing.T) {
	d := time.Duration(0)
	d = nextBackoff(d)
	assert.Equal(t, minAcceptBackoff, d)

	for range 20 {
		d = nextBackoff(d)
	}
	assert.Equal(t, maxAcceptBackoff, d)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 0, ExitCode(&ExitError{Reason: ExitShutdown}))
	assert.Equal(t, 0, ExitCode(&ExitError{Reason: ExitIdle}))
	assert.Equal(t, 1, ExitCode(&ExitError{Reason: ExitFatal}))
	assert.Equal(t, 1, ExitCode(&ExitError{Reason: ExitHandlerFailure}))
	assert.Equal(t, 1, ExitCode(assert.AnError))
	assert.True(t, IsShutdown(&ExitError{Reason: ExitShutdown}))
	assert.False(t, IsShutdown(assert.AnError))
}

func TestParseClientMode(t *testing.T) {
	m, err := ParseClientMode("")
	require.NoError(t, err)
	assert.Equal(t, PerConnectionTask, m)

	m, err = ParseClientMode("Inline")
	require.NoError(t, err)
	assert.Equal(t, Inline, m)

	_, err = ParseClientMode("forked")
	assert.Error(t, err)
}
