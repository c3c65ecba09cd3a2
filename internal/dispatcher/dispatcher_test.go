package dispatcher

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/apache/celix-go/pkg/celixerr"
)

func newRunning(t *testing.T) *Dispatcher {
	t.Helper()
	d := New()
	d.Start()
	t.Cleanup(d.Stop)
	return d
}

// S5 (single firer): reserve an id, enqueue later, wait for it.
func TestWaitForEventIDBlocksUntilProcessed(t *testing.T) {
	d := newRunning(t)
	id := d.NextEventID()

	var ran int32
	_, err := d.Enqueue(&Event{
		ID:       id,
		BundleID: 3,
		Kind:     KindGeneric,
		Process: func(ev *Event) error {
			time.Sleep(10 * time.Millisecond)
			atomic.StoreInt32(&ran, 1)
			return nil
		},
	})
	require.NoError(t, err)

	d.WaitForEventID(id)
	assert.EqualValues(t, 1, atomic.LoadInt32(&ran))
}

// S5: firing from 50 goroutines concurrently with distinct ids and waiting
// on each completes without deadlock.
func TestConcurrentFireAndWait(t *testing.T) {
	d := newRunning(t)

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		i := i
		g.Go(func() error {
			var ran int32
			id, err := d.Enqueue(&Event{
				BundleID: int64(i % 5),
				Kind:     KindGeneric,
				Process: func(ev *Event) error {
					atomic.StoreInt32(&ran, 1)
					return nil
				},
			})
			if err != nil {
				return err
			}
			d.WaitForEventID(id)
			if atomic.LoadInt32(&ran) != 1 {
				t.Errorf("event %d did not run before wait returned", id)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

// Invariant #3: events for the same bundle id are processed in enqueue
// order, even when interleaved with other bundles' events.
func TestPerBundleOrdering(t *testing.T) {
	d := newRunning(t)

	var seq Sequence
	for i := 0; i < 20; i++ {
		bundleID := int64(i % 3)
		n := i
		_, err := d.Enqueue(&Event{
			BundleID: bundleID,
			Kind:     KindGeneric,
			Process: func(ev *Event) error {
				seq.append(bundleID, n)
				return nil
			},
		})
		require.NoError(t, err)
	}
	d.WaitForEmptyQueue()

	for bundleID := int64(0); bundleID < 3; bundleID++ {
		ordered := seq.forBundle(bundleID)
		for i := 1; i < len(ordered); i++ {
			assert.Less(t, ordered[i-1], ordered[i], "bundle %d events out of order: %v", bundleID, ordered)
		}
	}
}

// Sequence records (bundleID, value) pairs from concurrent Process callbacks
// under a mutex, for the ordering assertion above.
type Sequence struct {
	mu      sync.Mutex
	entries []sequenceEntry
}

type sequenceEntry struct {
	bundleID int64
	value    int
}

func (s *Sequence) append(bundleID int64, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, sequenceEntry{bundleID, value})
}

func (s *Sequence) forBundle(bundleID int64) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for _, e := range s.entries {
		if e.bundleID == bundleID {
			out = append(out, e.value)
		}
	}
	return out
}

func TestEnqueueAfterStopFails(t *testing.T) {
	d := New()
	d.Start()
	d.Stop()

	_, err := d.Enqueue(&Event{Kind: KindGeneric})
	require.Error(t, err)
	kind, ok := celixerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, celixerr.FrameworkShutdown, kind)
}

func TestWaitUntilNoEventsForBundle(t *testing.T) {
	d := newRunning(t)
	release := make(chan struct{})

	_, err := d.Enqueue(&Event{
		BundleID: 7,
		Process: func(ev *Event) error {
			<-release
			return nil
		},
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		d.WaitUntilNoEventsForBundle(7)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("wait returned before the event completed")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-done
}
