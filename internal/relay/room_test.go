package relay

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"log/slog"

	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu     sync.Mutex
	got    []Message
	fail   bool
	closed bool
}

func (f *fakeClient) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("write: broken pipe")
	}
	f.got = append(f.got, msg)
	return nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeClient) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBroadcastFanout(t *testing.T) {
	req := require.New(t)
	rm := NewRoom("doc", testLogger())

	sender := &fakeClient{}
	peers := []*fakeClient{{}, {}, {}}
	rm.Admit(sender)
	for _, p := range peers {
		rm.Admit(p)
	}

	rm.Broadcast(context.Background(), Message{Data: []byte("A")}, sender)

	req.Zero(sender.received(), "sender must not receive its own message")
	for _, p := range peers {
		req.Equal(1, p.received())
		req.Equal([]byte("A"), p.got[0].Data)
	}
}

func TestBroadcastEmptyRoom(t *testing.T) {
	rm := NewRoom("doc", testLogger())
	sender := &fakeClient{}
	rm.Admit(sender)

	// No peers: must not panic or error
	rm.Broadcast(context.Background(), Message{Data: []byte("B")}, sender)
	require.Zero(t, sender.received())
}

func TestDuplicateAdmit(t *testing.T) {
	rm := NewRoom("doc", testLogger())
	c := &fakeClient{}
	rm.Admit(c)
	rm.Admit(c)
	require.Equal(t, 1, rm.Len())
}

func TestRemoveIdempotent(t *testing.T) {
	req := require.New(t)
	rm := NewRoom("doc", testLogger())
	member := &fakeClient{}
	stranger := &fakeClient{}
	rm.Admit(member)

	rm.Remove(stranger)
	rm.Remove(stranger)
	req.Equal(1, rm.Len())

	rm.Remove(member)
	rm.Remove(member)
	req.Equal(0, rm.Len())
}

func TestFailedSendEvictsMember(t *testing.T) {
	req := require.New(t)
	rm := NewRoom("doc", testLogger())

	sender := &fakeClient{}
	healthy := &fakeClient{}
	broken := &fakeClient{fail: true}
	rm.Admit(sender)
	rm.Admit(healthy)
	rm.Admit(broken)

	rm.Broadcast(context.Background(), Message{Data: []byte("C")}, sender)

	req.Equal(2, rm.Len(), "broken member should be evicted")
	req.Equal(1, healthy.received(), "delivery must continue past the failure")
	req.True(broken.closed)

	// The evicted member sees nothing on later broadcasts
	rm.Broadcast(context.Background(), Message{Data: []byte("D")}, sender)
	req.Equal(2, healthy.received())
	req.Zero(broken.received())
}

func TestConcurrentMembershipAndBroadcast(t *testing.T) {
	rm := NewRoom("doc", testLogger())
	sender := &fakeClient{}
	rm.Admit(sender)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := &fakeClient{}
			for j := 0; j < 50; j++ {
				rm.Admit(c)
				rm.Broadcast(context.Background(), Message{Data: []byte("E")}, sender)
				rm.Remove(c)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, rm.Len())
}
