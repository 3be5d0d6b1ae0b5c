package epoch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RoundsSlotsToPowerOfTwo(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want int
	}{
		{"below minimum", 3, minSlots},
		{"exact power", 128, 128},
		{"rounded up", 129, 256},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.n).Slots())
		})
	}
}

func TestEnterExit_TracksActiveSections(t *testing.T) {
	c := New(0)
	require.Equal(t, 0, c.Active())

	s1 := c.Enter()
	s2 := c.Enter()
	assert.Equal(t, 2, c.Active())

	s1.Exit()
	assert.Equal(t, 1, c.Active())
	s2.Exit()
	assert.Equal(t, 0, c.Active())
}

func TestSynchronize_NoSectionsReturnsImmediately(t *testing.T) {
	c := New(0)
	before := c.Global()
	c.Synchronize()
	assert.Equal(t, before+increment, c.Global())
}

func TestSynchronize_WaitsForOpenSection(t *testing.T) {
	c := New(0)
	s := c.Enter()

	var done atomic.Bool
	go func() {
		c.Synchronize()
		done.Store(true)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, done.Load(), "Synchronize must wait for the open section")

	s.Exit()
	require.Eventually(t, done.Load, time.Second, time.Millisecond)
}

func TestSynchronize_IgnoresLaterSections(t *testing.T) {
	c := New(0)

	// Advance once so the global counter is known.
	c.Synchronize()

	late := make(chan Section)
	release := make(chan struct{})
	go func() {
		// Wait until the synchronizer below has bumped the counter, then
		// open a section that must not hold it up.
		for c.Global() < 3*increment {
		}
		late <- c.Enter()
		<-release
	}()

	blocker := c.Enter()
	var done atomic.Bool
	go func() {
		c.Synchronize()
		done.Store(true)
	}()

	s := <-late
	blocker.Exit()
	require.Eventually(t, done.Load, time.Second, time.Millisecond)
	s.Exit()
	close(release)
}

func TestSynchronize_ConcurrentReaders(t *testing.T) {
	c := New(0)
	var shared atomic.Pointer[int]
	v := 1
	shared.Store(&v)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	var violations atomic.Int64

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s := c.Enter()
				p := shared.Load()
				if *p < 0 {
					violations.Add(1)
				}
				s.Exit()
			}
		}()
	}

	for i := range 200 {
		next := i + 2
		old := shared.Swap(&next)
		c.Synchronize()
		// No section that could have observed old is still open.
		*old = -1
	}
	close(stop)
	wg.Wait()
	assert.Zero(t, violations.Load())
}
