package signals

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/common"
	"github.com/ternarybob/uiflow/internal/models"
)

// DefaultWaitTimeout is used when a wait is requested without a positive timeout
const DefaultWaitTimeout = 5 * time.Second

// DefaultReserveGrace is how long an unfilled reservation holds back later signals of
// its kind. A response whose body never arrives stops blocking waits after this.
const DefaultReserveGrace = 5 * time.Second

// Bus is a per-session append-only signal log.
// Listeners append concurrently; the executor waits on and reads from it.
type Bus struct {
	mu       sync.Mutex
	log      []models.Signal
	consumed map[int64]bool
	pending  map[int64]bool
	nextSeq  int64
	notify   chan struct{}
	closed   bool

	reserveGrace time.Duration

	defaultTimeout time.Duration
	observers      []func(models.Signal)
	logger         arbor.ILogger
	now            func() time.Time
}

// NewBus creates an empty bus. defaultTimeout bounds waits that pass no timeout.
func NewBus(logger arbor.ILogger, defaultTimeout time.Duration) *Bus {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultWaitTimeout
	}
	return &Bus{
		consumed:       make(map[int64]bool),
		pending:        make(map[int64]bool),
		reserveGrace:   DefaultReserveGrace,
		notify:         make(chan struct{}),
		defaultTimeout: defaultTimeout,
		logger:         logger,
		now:            time.Now,
	}
}

// Observe registers fn to be called after every append. Observers run on the appending goroutine.
func (b *Bus) Observe(fn func(models.Signal)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, fn)
}

// Append assigns the next sequence number and a timestamp (when unset) and records sig.
// Signals appended after Close are dropped.
func (b *Bus) Append(sig models.Signal) models.Signal {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Debug().Str("kind", string(sig.Kind)).Msg("Signal dropped, bus closed")
		return sig
	}

	b.nextSeq++
	sig.Seq = b.nextSeq
	if sig.Timestamp.IsZero() {
		sig.Timestamp = b.now()
	}
	b.log = append(b.log, sig)
	return b.publishLocked(sig)
}

// Reserve takes the next sequence number for a signal of kind whose payload is not known
// yet, stamping the arrival time. The slot is invisible to readers and holds back waits on
// kind until Fill. It returns 0 once the bus is closed.
func (b *Bus) Reserve(kind models.SignalKind) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0
	}
	b.nextSeq++
	b.log = append(b.log, models.Signal{Seq: b.nextSeq, Kind: kind, Timestamp: b.now()})
	b.pending[b.nextSeq] = true
	return b.nextSeq
}

// Fill completes reservation seq with sig, keeping the reserved kind, sequence number
// and arrival time. Unknown or already filled reservations are ignored.
func (b *Bus) Fill(seq int64, sig models.Signal) models.Signal {
	b.mu.Lock()
	if !b.pending[seq] {
		b.mu.Unlock()
		return sig
	}
	delete(b.pending, seq)
	i := b.indexLocked(seq)
	reserved := b.log[i]
	sig.Seq = reserved.Seq
	sig.Kind = reserved.Kind
	sig.Timestamp = reserved.Timestamp
	b.log[i] = sig
	if b.closed {
		b.mu.Unlock()
		return sig
	}
	return b.publishLocked(sig)
}

// publishLocked wakes waiters and runs observers for sig. It releases b.mu.
func (b *Bus) publishLocked(sig models.Signal) models.Signal {
	close(b.notify)
	b.notify = make(chan struct{})
	observers := b.observers
	b.mu.Unlock()

	b.logger.Debug().
		Int64("seq", sig.Seq).
		Str("kind", string(sig.Kind)).
		Str("text", common.Truncate(sig.Text(), 120)).
		Msg("Signal appended")

	for _, fn := range observers {
		fn(sig)
	}
	return sig
}

// indexLocked returns the log index of seq. Every sequence number is a log entry.
func (b *Bus) indexLocked(seq int64) int {
	return int(seq - 1)
}

// Snapshot returns a copy of the log in arrival order, without unfilled reservations
func (b *Bus) Snapshot() []models.Signal {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Signal, 0, len(b.log))
	for _, s := range b.log {
		if !b.pending[s.Seq] {
			out = append(out, s)
		}
	}
	return out
}

// Since returns signals with a sequence number greater than seq
func (b *Bus) Since(seq int64) []models.Signal {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.Signal
	for _, s := range b.log {
		if s.Seq > seq && !b.pending[s.Seq] {
			out = append(out, s)
		}
	}
	return out
}

// LastSeq returns the sequence number of the most recent signal, or 0
func (b *Bus) LastSeq() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextSeq
}

// Last returns the most recently appended signal of kind
func (b *Bus) Last(kind models.SignalKind) (models.Signal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.log) - 1; i >= 0; i-- {
		if b.log[i].Kind == kind && !b.pending[b.log[i].Seq] {
			return b.log[i], true
		}
	}
	return models.Signal{}, false
}

// Find returns every signal matching m, consumed or not, in append order
func (b *Bus) Find(m models.SignalMatch) []models.Signal {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.Signal
	for _, s := range b.log {
		if !b.pending[s.Seq] && m.Matches(s) {
			out = append(out, s)
		}
	}
	return out
}

// WaitFor binds the earliest unconsumed signal matching m, including signals that
// arrived before the call, and marks it consumed. An unfilled reservation of m's kind
// blocks binding anything after it until it is filled or its grace expires. It returns a
// SignalTimeout error when nothing matches within timeout and an Aborted error when ctx
// ends or the bus closes.
func (b *Bus) WaitFor(ctx context.Context, m models.SignalMatch, timeout time.Duration) (models.Signal, error) {
	if timeout <= 0 {
		timeout = b.defaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	op := fmt.Sprintf("waitFor(%s)", m.Kind)
	for {
		b.mu.Lock()
		sig, ok, blockedUntil := b.claimLocked(m)
		if ok {
			b.mu.Unlock()
			b.logger.Debug().Int64("seq", sig.Seq).Str("kind", string(sig.Kind)).Msg("Signal bound")
			return sig, nil
		}
		if b.closed {
			b.mu.Unlock()
			return models.Signal{}, models.WrapEngineError(models.ErrorKindAborted, op, "", models.ErrSessionClosed)
		}
		ch := b.notify
		b.mu.Unlock()

		var grace *time.Timer
		var graceC <-chan time.Time
		if !blockedUntil.IsZero() {
			grace = time.NewTimer(time.Until(blockedUntil))
			graceC = grace.C
		}

		select {
		case <-ch:
		case <-graceC:
		case <-timer.C:
			return models.Signal{}, models.NewEngineError(models.ErrorKindSignalTimeout, op,
				fmt.Sprintf("no matching signal within %s", timeout))
		case <-ctx.Done():
			return models.Signal{}, models.WrapEngineError(models.ErrorKindAborted, op, "", ctx.Err())
		}
		if grace != nil {
			grace.Stop()
		}
	}
}

// claimLocked scans in arrival order. When it stops at a live reservation of m's kind it
// returns the time that reservation's grace ends.
func (b *Bus) claimLocked(m models.SignalMatch) (models.Signal, bool, time.Time) {
	now := b.now()
	for _, s := range b.log {
		if b.pending[s.Seq] {
			if s.Kind != m.Kind {
				continue
			}
			if expires := s.Timestamp.Add(b.reserveGrace); now.Before(expires) {
				return models.Signal{}, false, expires
			}
			continue
		}
		if b.consumed[s.Seq] {
			continue
		}
		if m.Matches(s) {
			b.consumed[s.Seq] = true
			return s, true, time.Time{}
		}
	}
	return models.Signal{}, false, time.Time{}
}

// Close releases all waiters. The log stays readable.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.notify)
}
