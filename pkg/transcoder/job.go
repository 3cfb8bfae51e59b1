package transcoder

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heyjunin/hlsvault/pkg/rendition"
)

// State is the lifecycle position of a Job.
type State int

const (
	Pending State = iota
	Running
	Completed
	Failed
	Cancelled
)

var stateNames = [...]string{"pending", "running", "completed", "failed", "cancelled"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s >= Completed
}

// Job is one running or finished encode. Jobs live only in memory.
type Job struct {
	ID      string
	Spec    Spec
	Created time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	state      State
	err        error
	started    time.Time
	finished   time.Time
	holders    int
	lastActive time.Time
}

func newJob(parent context.Context, spec Spec) *Job {
	ctx, cancel := context.WithCancel(parent)
	now := time.Now()
	return &Job{
		ID:         uuid.NewString(),
		Spec:       spec,
		Created:    now,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		state:      Pending,
		lastActive: now,
	}
}

// Key returns the rendition the job writes.
func (j *Job) Key() rendition.Key {
	return j.Spec.Key
}

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Err returns the failure of a Failed job. Cancelled and Completed jobs have none.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Done is closed once the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes or ctx ends.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops the job. The encoder is killed and the job ends Cancelled.
func (j *Job) Cancel() {
	j.cancel()
}

// Hold marks a client as waiting on the job.
func (j *Job) Hold() {
	j.mu.Lock()
	j.holders++
	j.lastActive = time.Now()
	j.mu.Unlock()
}

// Release drops a hold and returns how many remain.
func (j *Job) Release() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.holders > 0 {
		j.holders--
	}
	j.lastActive = time.Now()
	return j.holders
}

// Touch records playback activity for the idle reaper.
func (j *Job) Touch() {
	j.mu.Lock()
	j.lastActive = time.Now()
	j.mu.Unlock()
}

// IdleSince returns how long the job has had no holder and no activity at now.
func (j *Job) IdleSince(now time.Time) time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.holders > 0 {
		return 0
	}
	return now.Sub(j.lastActive)
}

// Elapsed is the encoding time so far, or of the whole run once finished.
func (j *Job) Elapsed() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started.IsZero() {
		return 0
	}
	if !j.finished.IsZero() {
		return j.finished.Sub(j.started)
	}
	return time.Since(j.started)
}

func (j *Job) setRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != Pending {
		return false
	}
	j.state = Running
	j.started = time.Now()
	return true
}

func (j *Job) finish(state State, err error) {
	j.mu.Lock()
	if j.state.Terminal() {
		j.mu.Unlock()
		return
	}
	j.state = state
	j.finished = time.Now()
	if state == Failed {
		j.err = err
	}
	j.mu.Unlock()

	close(j.done)
	j.cancel()
}
