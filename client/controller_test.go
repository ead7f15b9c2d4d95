package client

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakePush delivers scripted events, then fails its reader when closed.
type fakePush struct {
	events chan Event
	once   sync.Once
	done   chan struct{}
	closed atomic.Bool
}

func newFakePush(events ...Event) *fakePush {
	p := &fakePush{events: make(chan Event, len(events)+1), done: make(chan struct{})}
	for _, e := range events {
		p.events <- e
	}
	return p
}

func (p *fakePush) ReadEvent() (Event, error) {
	select {
	case e := <-p.events:
		return e, nil
	case <-p.done:
		return Event{}, fmt.Errorf("push transport dropped")
	}
}

func (p *fakePush) Close() error {
	p.once.Do(func() { close(p.done) })
	p.closed.Store(true)
	return nil
}

// fakeDialer replays a scripted sequence of dial outcomes; the last entry
// repeats forever.
type fakeDialer struct {
	mu       sync.Mutex
	outcomes []func() (PushConn, error)
	calls    int
}

func (d *fakeDialer) Dial(_ context.Context) (PushConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.calls
	if i >= len(d.outcomes) {
		i = len(d.outcomes) - 1
	}
	d.calls++
	return d.outcomes[i]()
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func failingDial() (PushConn, error) { return nil, fmt.Errorf("connection refused") }

type fakeFetcher struct {
	mu     sync.Mutex
	events []Event
	calls  int
}

func (f *fakeFetcher) FetchLatest(_ context.Context) ([]Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return append([]Event(nil), f.events...), nil
}

func (f *fakeFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func fastOptions() Options {
	return Options{
		PollInterval:   20 * time.Millisecond,
		ReconnectDelay: 20 * time.Millisecond,
		DedupCapacity:  64,
	}
}

func TestController_Falls_Back_To_Polling_When_Push_Fails(t *testing.T) {
	req := require.New(t)
	dialer := &fakeDialer{outcomes: []func() (PushConn, error){failingDial}}
	fetcher := &fakeFetcher{}
	log := &eventLog{}

	controller := NewController(dialer, fetcher, log.record, fastOptions(), slog.Default())
	controller.Start(context.Background())
	defer controller.Stop()

	// Then the controller transitions to polling within one interval
	req.Eventually(func() bool { return fetcher.fetchCount() >= 2 },
		time.Second, 5*time.Millisecond)
	req.Eventually(func() bool { return controller.State() == StateDisconnected },
		time.Second, 5*time.Millisecond)
}

func TestController_Does_Not_Duplicate_Events_Across_Push_And_Pull(t *testing.T) {
	req := require.New(t)
	shared := Event{ID: "m-1", Type: "message", Content: "hello"}
	pullOnly := Event{ID: "m-2", Type: "message", Content: "world"}

	// Given a push connection that delivers one event then drops
	push := newFakePush(shared)
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = push.Close()
	}()

	dialer := &fakeDialer{outcomes: []func() (PushConn, error){
		func() (PushConn, error) { return push, nil },
		failingDial,
	}}
	// And a pull path that still serves the same event plus a newer one
	fetcher := &fakeFetcher{events: []Event{pullOnly, shared}}
	log := &eventLog{}

	controller := NewController(dialer, fetcher, log.record, fastOptions(), slog.Default())
	controller.Start(context.Background())
	defer controller.Stop()

	// Then both messages arrive exactly once
	req.Eventually(func() bool {
		ids := make(map[string]int)
		for _, e := range log.all() {
			ids[e.ID]++
		}
		return ids["m-1"] == 1 && ids["m-2"] == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	counts := make(map[string]int)
	for _, e := range log.all() {
		counts[e.ID]++
	}
	req.Equal(1, counts["m-1"])
	req.Equal(1, counts["m-2"])
}

func TestController_Push_Suspends_Polling(t *testing.T) {
	req := require.New(t)
	push := newFakePush()
	dialer := &fakeDialer{outcomes: []func() (PushConn, error){
		func() (PushConn, error) { return push, nil },
	}}
	fetcher := &fakeFetcher{}

	controller := NewController(dialer, fetcher, func(Event) {}, fastOptions(), slog.Default())
	controller.Start(context.Background())
	defer controller.Stop()

	req.Eventually(func() bool { return controller.State() == StateConnected },
		time.Second, 5*time.Millisecond)

	// Then no further pulls happen while the push path is up
	baseline := fetcher.fetchCount()
	time.Sleep(100 * time.Millisecond)
	req.Equal(baseline, fetcher.fetchCount())
}

func TestController_Reconnects_With_Fixed_Delay(t *testing.T) {
	req := require.New(t)
	push := newFakePush()
	dialer := &fakeDialer{outcomes: []func() (PushConn, error){
		failingDial,
		failingDial,
		func() (PushConn, error) { return push, nil },
	}}
	fetcher := &fakeFetcher{}

	controller := NewController(dialer, fetcher, func(Event) {}, fastOptions(), slog.Default())
	controller.Start(context.Background())
	defer controller.Stop()

	// Then each failed attempt schedules another one until dial succeeds
	req.Eventually(func() bool { return controller.State() == StateConnected },
		2*time.Second, 5*time.Millisecond)
	req.GreaterOrEqual(dialer.dialCount(), 3)
}

func TestController_Stop_Is_Idempotent_And_Closes_Push(t *testing.T) {
	req := require.New(t)
	push := newFakePush()
	dialer := &fakeDialer{outcomes: []func() (PushConn, error){
		func() (PushConn, error) { return push, nil },
	}}

	controller := NewController(dialer, &fakeFetcher{}, func(Event) {}, fastOptions(), slog.Default())
	controller.Start(context.Background())
	req.Eventually(func() bool { return controller.State() == StateConnected },
		time.Second, 5*time.Millisecond)

	controller.Stop()
	controller.Stop()
	controller.Stop()

	req.True(push.closed.Load())
}

func TestController_Assigns_Local_Ids_From_Separate_Namespace(t *testing.T) {
	req := require.New(t)
	// Given a push event without a server-assigned id (e.g. typing)
	push := newFakePush(Event{Type: "typing", Agent: Agent{AgentID: "a1"}})
	dialer := &fakeDialer{outcomes: []func() (PushConn, error){
		func() (PushConn, error) { return push, nil },
	}}
	log := &eventLog{}

	controller := NewController(dialer, &fakeFetcher{}, log.record, fastOptions(), slog.Default())
	controller.Start(context.Background())
	defer controller.Stop()

	req.Eventually(func() bool { return len(log.all()) == 1 },
		time.Second, 5*time.Millisecond)
	req.True(strings.HasPrefix(log.all()[0].ID, "local:"))
}
