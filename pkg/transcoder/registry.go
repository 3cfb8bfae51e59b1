package transcoder

import (
	"sort"
	"sync"
	"time"

	"github.com/heyjunin/hlsvault/pkg/rendition"
)

// Registry tracks jobs that have not finished, keyed by rendition folder, so
// concurrent requests for one rendition share a single encode.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// GetOrStart returns the live job for key, or calls start and registers the
// job it returns. The boolean is true when start was called. start runs under
// the registry lock and must not block.
func (r *Registry) GetOrStart(key rendition.Key, start func() *Job) (*Job, bool) {
	k := key.String()

	r.mu.Lock()
	if j, ok := r.jobs[k]; ok && !j.State().Terminal() {
		r.mu.Unlock()
		return j, false
	}
	j := start()
	r.jobs[k] = j
	r.mu.Unlock()

	go func() {
		<-j.Done()
		r.remove(k, j)
	}()
	return j, true
}

// Get returns the live job for key.
func (r *Registry) Get(key rendition.Key) (*Job, bool) {
	return r.GetFolder(key.String())
}

// GetFolder returns the live job writing folder.
func (r *Registry) GetFolder(folder string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[folder]
	if !ok || j.State().Terminal() {
		return nil, false
	}
	return j, true
}

// Jobs returns the registered jobs ordered by creation time.
func (r *Registry) Jobs() []*Job {
	r.mu.Lock()
	out := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j)
	}
	r.mu.Unlock()

	sort.Slice(out, func(a, b int) bool { return out[a].Created.Before(out[b].Created) })
	return out
}

// Reap cancels every job that has had no holder or activity for longer than
// idle. It returns the number of jobs cancelled.
func (r *Registry) Reap(now time.Time, idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	n := 0
	for _, j := range r.Jobs() {
		if j.State().Terminal() {
			continue
		}
		if j.IdleSince(now) > idle {
			j.Cancel()
			n++
		}
	}
	return n
}

// CancelAll cancels every registered job.
func (r *Registry) CancelAll() {
	for _, j := range r.Jobs() {
		j.Cancel()
	}
}

func (r *Registry) remove(k string, j *Job) {
	r.mu.Lock()
	if r.jobs[k] == j {
		delete(r.jobs, k)
	}
	r.mu.Unlock()
}
