package worker

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type job struct {
	id int
}

func TestWorkerManager_TypedDispatch(t *testing.T) {
	wm := NewWorkerManager[job](8, 2, nil)

	var mu sync.Mutex
	var got []int
	done := make(chan struct{}, 3)
	wm.SetWorker(func(workerIndex int, j job) {
		mu.Lock()
		got = append(got, j.id)
		mu.Unlock()
		done <- struct{}{}
	})
	go wm.Start() //nolint:errcheck
	defer wm.Exit()

	wm.Enqueue(job{id: 1})
	wm.Enqueue(job{id: 2})
	wm.Enqueue(job{id: 3})

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("job was not dispatched")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	sort.Ints(got)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestWorkerManager_ExternalChannel(t *testing.T) {
	ch := make(chan job, 4)
	wm := NewWorkerManager[job](4, 1, ch)

	require.Equal(t, ch, wm.JobEvents())

	wm.Enqueue(job{id: 7})
	assert.Equal(t, int64(1), wm.GetUnreadCount())
}
