package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func Test_Limiter_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	limiter := NewLimiter(5)

	returnCh := make(chan struct{})

	count := 3
	for i := 0; i < count; i++ {
		err := limiter.Dispatch(func() {
			returnCh <- struct{}{}
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < count; i++ {
		<-returnCh
	}

	limiter.StopWait()
}

func Test_Limiter_Run_limits(t *testing.T) {
	defer goleak.VerifyNone(t)

	limiter := NewLimiter(3)

	returnCh := make(chan struct{})

	count := 3
	for i := 0; i < count; i++ {
		err := limiter.Dispatch(func() {
			<-returnCh
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	// add another func exceeding concurrency limit of 3
	err := limiter.Dispatch(func() {
		t.Error("expected limiter to limit concurrency")
	})

	assert.ErrorIs(t, err, ErrLimiterConcurrency)

	// unblock routines
	for i := 0; i < count; i++ {
		returnCh <- struct{}{}
	}

	limiter.StopWait()
}

func Test_Limiter_Active(t *testing.T) {
	defer goleak.VerifyNone(t)

	limiter := NewLimiter(5)

	// release causes the job to return
	releaseCh := make(chan struct{})

	count := 3
	for i := 0; i < count; i++ {
		err := limiter.Dispatch(func() {
			<-releaseCh
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	// test active jobs are as expected
	assert.Equal(t, count, limiter.ActiveCount())

	for i := 0; i < count; i++ {
		// cause job to return
		releaseCh <- struct{}{}
	}

	limiter.StopWait()

	assert.Equal(t, 0, limiter.ActiveCount())
}

func Test_Limiter_DispatchWait(t *testing.T) {
	defer goleak.VerifyNone(t)

	limiter := NewLimiter(2)

	var (
		running int32
		peak    int32
		done    int32
	)

	for i := 0; i < 10; i++ {
		err := limiter.DispatchWait(context.Background(), func() {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}

			time.Sleep(5 * time.Millisecond)

			atomic.AddInt32(&running, -1)
			atomic.AddInt32(&done, 1)
		})
		require.NoError(t, err)
	}

	limiter.StopWait()

	assert.Equal(t, int32(10), atomic.LoadInt32(&done))
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func Test_Limiter_DispatchWait_cancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	limiter := NewLimiter(1)

	releaseCh := make(chan struct{})

	require.NoError(t, limiter.Dispatch(func() { <-releaseCh }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := limiter.DispatchWait(ctx, func() {
		t.Error("expected the dispatch to be cancelled")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(releaseCh)
	limiter.StopWait()
}

func Test_Limiter_StopWait(t *testing.T) {
	defer goleak.VerifyNone(t)

	limiter := NewLimiter(5)

	returnCh := make(chan struct{})

	count := 3
	for i := 0; i < count; i++ {
		err := limiter.Dispatch(func() {
			returnCh <- struct{}{}
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	stopped := make(chan struct{})

	go func() {
		limiter.StopWait()
		close(stopped)
	}()

	assert.Eventually(t, limiter.Draining, time.Second, time.Millisecond)

	err := limiter.Dispatch(func() {
		t.Error("expected limiter to not accept funcs after StopWait()")
	})
	assert.ErrorIs(t, err, ErrLimiterDrain)

	err = limiter.DispatchWait(context.Background(), func() {
		t.Error("expected limiter to not accept funcs after StopWait()")
	})
	assert.ErrorIs(t, err, ErrLimiterDrain)

	for i := 0; i < count; i++ {
		<-returnCh
	}

	<-stopped
}
