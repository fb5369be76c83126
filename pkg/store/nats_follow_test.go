package store

import (
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEntry struct {
	jetstream.KeyValueEntry
	value []byte
	op    jetstream.KeyValueOp
}

func (e fakeEntry) Value() []byte { return e.value }
func (e fakeEntry) Operation() jetstream.KeyValueOp { return e.op }

type fakeWatcher struct {
	jetstream.KeyWatcher
	updates chan jetstream.KeyValueEntry
}

func (w *fakeWatcher) Updates() <-chan jetstream.KeyValueEntry { return w.updates }

type collected struct {
	mu        sync.Mutex
	snapshots []Snapshot
	errs      []error
}

func (c *collected) OnDataChange(s Snapshot) {
	c.mu.Lock()
	c.snapshots = append(c.snapshots, s)
	c.mu.Unlock()
}

func (c *collected) OnCancelled(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}

func runFollow(w *fakeWatcher, l Listener, done chan struct{}) <-chan struct{} {
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		follow("femilocation", w, l, done)
	}()
	return finished
}

func TestFollow_EmptyKeyYieldsAbsentSnapshot(t *testing.T) {
	w := &fakeWatcher{updates: make(chan jetstream.KeyValueEntry, 4)}
	w.updates <- nil
	w.updates <- fakeEntry{value: []byte(`{"latitude":1,"longitude":2}`), op: jetstream.KeyValuePut}
	close(w.updates)

	l := &collected{}
	<-runFollow(w, l, make(chan struct{}))

	require.Len(t, l.snapshots, 2)
	assert.Equal(t, Snapshot{Slot: "femilocation"}, l.snapshots[0])
	assert.True(t, l.snapshots[1].Exists)
	assert.JSONEq(t, `{"latitude":1,"longitude":2}`, string(l.snapshots[1].Value))
	require.Len(t, l.errs, 1)
	assert.ErrorContains(t, l.errs[0], "femilocation")
}

func TestFollow_InitialValueIsNotFollowedByAbsent(t *testing.T) {
	w := &fakeWatcher{updates: make(chan jetstream.KeyValueEntry, 4)}
	w.updates <- fakeEntry{value: []byte(`{}`), op: jetstream.KeyValuePut}
	w.updates <- nil
	close(w.updates)

	l := &collected{}
	<-runFollow(w, l, make(chan struct{}))

	require.Len(t, l.snapshots, 1)
	assert.True(t, l.snapshots[0].Exists)
}

func TestFollow_DeleteAndPurgeClearTheSlot(t *testing.T) {
	w := &fakeWatcher{updates: make(chan jetstream.KeyValueEntry, 4)}
	w.updates <- fakeEntry{value: []byte(`{}`), op: jetstream.KeyValuePut}
	w.updates <- nil
	w.updates <- fakeEntry{op: jetstream.KeyValueDelete}
	w.updates <- fakeEntry{op: jetstream.KeyValuePurge}

	l := &collected{}
	done := make(chan struct{})
	finished := runFollow(w, l, done)

	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return len(l.snapshots) == 3
	}, time.Second, 5*time.Millisecond)
	close(done)
	<-finished

	assert.False(t, l.snapshots[1].Exists)
	assert.False(t, l.snapshots[2].Exists)
	assert.Empty(t, l.errs)
}

func TestFollow_StoppedWatchIsNotCancelled(t *testing.T) {
	w := &fakeWatcher{updates: make(chan jetstream.KeyValueEntry)}
	l := &collected{}
	done := make(chan struct{})
	finished := runFollow(w, l, done)

	close(done)
	close(w.updates)
	<-finished

	assert.Empty(t, l.errs)
	assert.Empty(t, l.snapshots)
}
