package transcoder

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heyjunin/hlsvault/pkg/rendition"
)

func TestConcurrentRequestsShareOneJob(t *testing.T) {
	f := newFixture(t, "popular.mp4")
	r := f.runner(writeScript(t, delayedScript), Options{})
	reg := NewRegistry()

	var starts int32
	jobs := make([]*Job, 10)
	var wg sync.WaitGroup
	for i := range jobs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			jobs[i], _ = reg.GetOrStart(f.key, func() *Job {
				atomic.AddInt32(&starts, 1)
				return r.Start(context.Background(), f.spec())
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&starts))
	for _, j := range jobs {
		assert.Same(t, jobs[0], j)
	}

	require.NoError(t, jobs[0].Wait(context.Background()))
	assert.Equal(t, 1, invocations(t, f.cache, f.key))
	assert.True(t, f.cache.Lookup(f.key))

	waitFor(t, func() bool {
		_, ok := reg.Get(f.key)
		return !ok
	})
}

func TestRegistryRestartsAfterFinish(t *testing.T) {
	reg := NewRegistry()
	key := rendition.NewKey("a.mp4", true, rendition.R1080p)

	first, started := reg.GetOrStart(key, func() *Job { return newJob(context.Background(), Spec{Key: key}) })
	require.True(t, started)
	first.finish(Failed, assert.AnError)

	second, started := reg.GetOrStart(key, func() *Job { return newJob(context.Background(), Spec{Key: key}) })
	assert.True(t, started)
	assert.NotSame(t, first, second)
	second.finish(Completed, nil)
}

func TestRegistryReap(t *testing.T) {
	reg := NewRegistry()
	idleKey := rendition.NewKey("idle.mp4", true, rendition.R1080p)
	heldKey := rendition.NewKey("held.mp4", true, rendition.R1080p)

	idle, _ := reg.GetOrStart(idleKey, func() *Job { return newJob(context.Background(), Spec{Key: idleKey}) })
	held, _ := reg.GetOrStart(heldKey, func() *Job { return newJob(context.Background(), Spec{Key: heldKey}) })
	held.Hold()

	later := time.Now().Add(time.Minute)
	assert.Equal(t, 0, reg.Reap(later, 0))
	assert.Equal(t, 1, reg.Reap(later, 30*time.Second))

	assert.Error(t, idle.ctx.Err())
	assert.NoError(t, held.ctx.Err())

	held.Release()
	assert.Greater(t, held.IdleSince(later), 30*time.Second)

	held.Touch()
	assert.Equal(t, 0, reg.Reap(time.Now(), 30*time.Second))

	reg.CancelAll()
	assert.Error(t, held.ctx.Err())
}

func TestJobWaitHonoursContext(t *testing.T) {
	j := newJob(context.Background(), Spec{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, j.Wait(ctx), context.DeadlineExceeded)

	j.finish(Completed, nil)
	j.finish(Failed, assert.AnError)
	assert.Equal(t, Completed, j.State())
	assert.NoError(t, j.Wait(context.Background()))
}
