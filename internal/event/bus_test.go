package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case e, ok := <-s.C():
		require.True(t, ok, "subscription closed")
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestBus_OrderPreserved(t *testing.T) {
	b := NewBus()
	defer b.Close()
	s := b.Subscribe()

	for i := 0; i < 200; i++ {
		b.Publish(Event{Kind: Running, Index: i})
	}
	for i := 0; i < 200; i++ {
		assert.Equal(t, i, recv(t, s).Index)
	}
}

func TestBus_KindFilter(t *testing.T) {
	b := NewBus()
	defer b.Close()
	stops := b.Subscribe(Stopped, Error)

	b.Publish(Event{Kind: Starting, ID: "a"})
	b.Publish(Event{Kind: Stopped, ID: "a"})
	b.Publish(Event{Kind: Running, ID: "a"})
	b.Publish(Event{Kind: Error, ID: "a"})

	assert.Equal(t, Stopped, recv(t, stops).Kind)
	assert.Equal(t, Error, recv(t, stops).Kind)
}

func TestBus_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBus()
	defer b.Close()
	_ = b.Subscribe() // never read

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish(Event{Kind: Running})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on an idle subscriber")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus()
	defer b.Close()
	s := b.Subscribe()
	b.Publish(Event{Kind: Running})
	s.Unsubscribe()
	s.Unsubscribe()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-s.C():
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestBus_CloseEndsSubscriptions(t *testing.T) {
	b := NewBus()
	s := b.Subscribe()
	b.Close()
	b.Close()

	select {
	case _, ok := <-s.C():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}

	late := b.Subscribe()
	_, ok := <-late.C()
	assert.False(t, ok)
	b.Publish(Event{Kind: Running})
}

func TestBus_CloseDeliversQueued(t *testing.T) {
	b := NewBus()
	s := b.Subscribe()
	for i := 0; i < 3; i++ {
		b.Publish(Event{Kind: Stopped, Index: i})
	}
	b.Close()
	b.Publish(Event{Kind: Stopped, Index: 99})

	var got []int
	for e := range s.C() {
		got = append(got, e.Index)
	}
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestBus_UnsubscribeAfterClose(t *testing.T) {
	b := NewBus()
	s := b.Subscribe()
	b.Publish(Event{Kind: Running})
	b.Close()
	s.Unsubscribe()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-s.C():
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestKindStrings(t *testing.T) {
	names := make([]string, 0, len(Kinds()))
	for _, k := range Kinds() {
		names = append(names, k.String())
	}
	assert.Equal(t, []string{"starting", "running", "restarting", "stopping", "stopped", "error"}, names)
	assert.Equal(t, "unknown", Kind(0).String())
}
