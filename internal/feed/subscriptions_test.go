package feed

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// recordingSender captures every frame written to it.
type recordingSender struct {
	mu     sync.Mutex
	frames []request
	errs   []error
}

func (s *recordingSender) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return err
		}
	}
	s.frames = append(s.frames, v.(request))
	return nil
}

func (s *recordingSender) sent() []request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]request, len(s.frames))
	copy(out, s.frames)
	return out
}

func newTestManager(sleeps *[]time.Duration) *Manager {
	return NewManager(ManagerOptions{
		Sleep: func(d time.Duration) {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
		},
	})
}

func TestOnConnectedSubscribesToNewTokens(t *testing.T) {
	m := newTestManager(nil)
	conn := &recordingSender{}

	if err := m.OnConnected(conn); err != nil {
		t.Fatalf("OnConnected: %v", err)
	}

	frames := conn.sent()
	if len(frames) != 1 {
		t.Fatalf("sent %d frames, want 1", len(frames))
	}
	if frames[0].Method != "subscribeNewToken" || len(frames[0].Keys) != 0 {
		t.Errorf("frame = %+v, want bare subscribeNewToken", frames[0])
	}
}

func TestBatcherFlushesPendingSubscriptions(t *testing.T) {
	m := newTestManager(nil)
	conn := &recordingSender{}
	if err := m.OnConnected(conn); err != nil {
		t.Fatalf("OnConnected: %v", err)
	}

	m.EnqueueSubscribe("mintA")
	m.EnqueueSubscribe("mintB")
	m.EnqueueSubscribe("mintA") // idempotent
	m.FlushPending()

	frames := conn.sent()
	if len(frames) != 2 {
		t.Fatalf("sent %d frames, want connect + 1 batch", len(frames))
	}
	batch := frames[1]
	if batch.Method != "subscribeTokenTrade" || len(batch.Keys) != 2 {
		t.Errorf("batch = %+v, want subscribeTokenTrade with 2 keys", batch)
	}
	if !m.IsSubscribed("mintA") || !m.IsSubscribed("mintB") {
		t.Error("mints not moved to confirmed set")
	}
	if sub, pend, _ := m.Counts(); sub != 2 || pend != 0 {
		t.Errorf("counts = %d/%d, want 2 subscribed 0 pending", sub, pend)
	}
}

func TestBatcherRespectsBatchLimit(t *testing.T) {
	m := newTestManager(nil)
	conn := &recordingSender{}
	if err := m.OnConnected(conn); err != nil {
		t.Fatalf("OnConnected: %v", err)
	}

	for i := 0; i < 120; i++ {
		m.EnqueueSubscribe(fmt.Sprintf("mint%03d", i))
	}

	for i := 0; i < 3; i++ {
		m.FlushPending()
	}

	frames := conn.sent()[1:]
	if len(frames) != 3 {
		t.Fatalf("sent %d batches, want 3", len(frames))
	}
	total := 0
	for _, fr := range frames {
		if len(fr.Keys) > 50 {
			t.Errorf("batch carries %d keys, limit is 50", len(fr.Keys))
		}
		total += len(fr.Keys)
	}
	if total != 120 {
		t.Errorf("delivered %d keys total, want 120", total)
	}
}

func TestFailedBatchIsRequeued(t *testing.T) {
	m := newTestManager(nil)
	conn := &recordingSender{}
	if err := m.OnConnected(conn); err != nil {
		t.Fatalf("OnConnected: %v", err)
	}

	m.EnqueueSubscribe("mintA")
	conn.mu.Lock()
	conn.errs = []error{errors.New("broken pipe")}
	conn.mu.Unlock()

	m.FlushPending()
	if m.IsSubscribed("mintA") {
		t.Fatal("failed batch marked subscribed")
	}
	if _, pend, _ := m.Counts(); pend != 1 {
		t.Fatalf("pending = %d, want key back in queue", pend)
	}

	m.FlushPending()
	if !m.IsSubscribed("mintA") {
		t.Error("retry did not subscribe")
	}
}

func TestUnsubscribeCancelsPendingSubscribe(t *testing.T) {
	m := newTestManager(nil)
	conn := &recordingSender{}
	if err := m.OnConnected(conn); err != nil {
		t.Fatalf("OnConnected: %v", err)
	}

	m.EnqueueSubscribe("mintA")
	m.EnqueueUnsubscribe("mintA")
	m.FlushPending()

	if len(conn.sent()) != 1 {
		t.Errorf("cancelled subscribe still produced a batch: %+v", conn.sent()[1:])
	}
}

func TestResubscribeBouncesSubscription(t *testing.T) {
	var sleeps []time.Duration
	m := newTestManager(&sleeps)
	conn := &recordingSender{}
	if err := m.OnConnected(conn); err != nil {
		t.Fatalf("OnConnected: %v", err)
	}

	if err := m.ForceResubscribe("mintA"); err != nil {
		t.Fatalf("ForceResubscribe: %v", err)
	}

	frames := conn.sent()[1:]
	if len(frames) != 2 {
		t.Fatalf("sent %d frames, want unsubscribe then subscribe", len(frames))
	}
	if frames[0].Method != "unsubscribeTokenTrade" || frames[0].Keys[0] != "mintA" {
		t.Errorf("first frame = %+v, want unsubscribe mintA", frames[0])
	}
	if frames[1].Method != "subscribeTokenTrade" || frames[1].Keys[0] != "mintA" {
		t.Errorf("second frame = %+v, want subscribe mintA", frames[1])
	}
	if len(sleeps) != 1 || sleeps[0] < 100*time.Millisecond {
		t.Errorf("gap between frames = %v, want >= 100ms", sleeps)
	}
	if !m.IsSubscribed("mintA") {
		t.Error("bounced mint not in confirmed set")
	}
}

func TestResubscribeWhileDisconnectedIsNoop(t *testing.T) {
	m := newTestManager(nil)

	if err := m.ForceResubscribe("mintA"); err != nil {
		t.Fatalf("ForceResubscribe offline: %v", err)
	}
	if m.IsSubscribed("mintA") {
		t.Error("offline bounce added to confirmed set")
	}
}

func TestReconnectRestoresConfirmedSet(t *testing.T) {
	m := newTestManager(nil)
	first := &recordingSender{}
	if err := m.OnConnected(first); err != nil {
		t.Fatalf("OnConnected: %v", err)
	}

	m.EnqueueSubscribe("mintA")
	m.EnqueueSubscribe("mintB")
	m.FlushPending()

	m.OnDisconnected()
	if got := m.Subscribed(); len(got) != 2 {
		t.Fatalf("confirmed set lost on disconnect: %v", got)
	}

	second := &recordingSender{}
	if err := m.OnConnected(second); err != nil {
		t.Fatalf("reconnect: %v", err)
	}

	frames := second.sent()
	if len(frames) != 2 {
		t.Fatalf("sent %d frames on reconnect, want subscribeNewToken + restore", len(frames))
	}
	restore := frames[1]
	if restore.Method != "subscribeTokenTrade" || len(restore.Keys) != 2 {
		t.Errorf("restore frame = %+v, want both mints", restore)
	}
	if restore.Keys[0] != "mintA" || restore.Keys[1] != "mintB" {
		t.Errorf("restore keys = %v, want sorted [mintA mintB]", restore.Keys)
	}
}

func TestFailedRestoreDemotesToPending(t *testing.T) {
	m := newTestManager(nil)
	first := &recordingSender{}
	if err := m.OnConnected(first); err != nil {
		t.Fatalf("OnConnected: %v", err)
	}
	m.EnqueueSubscribe("mintA")
	m.FlushPending()
	m.OnDisconnected()

	second := &recordingSender{errs: []error{nil, errors.New("broken pipe")}}
	if err := m.OnConnected(second); err != nil {
		t.Fatalf("reconnect: %v", err)
	}

	if m.IsSubscribed("mintA") {
		t.Fatal("failed restore left mint confirmed")
	}
	if _, pend, _ := m.Counts(); pend != 1 {
		t.Fatalf("pending = %d, want demoted mint queued for the batcher", pend)
	}
}
