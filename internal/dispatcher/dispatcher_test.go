package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/recordflow/recordflow/pkg/recordflow/models"
)

type fakeNotifications struct {
	ch        chan *pq.Notification
	listenErr error
	closed    bool
}

func (f *fakeNotifications) Listen(string) error {
	return f.listenErr
}

func (f *fakeNotifications) Notify() <-chan *pq.Notification { return f.ch }

func (f *fakeNotifications) Close() error {
	f.closed = true
	return nil
}

type fakeStarter struct {
	mu       sync.Mutex
	started  []string
	triggers []*models.TriggerPayload
}

func (f *fakeStarter) StartBySlug(slug string, trigger *models.TriggerPayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, slug)
	f.triggers = append(f.triggers, trigger)
	return "ex-" + slug, nil
}

func (f *fakeStarter) startedSlugs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.started...)
}

func newTestDispatcher(starter Starter, conns ...*fakeNotifications) *Dispatcher {
	d := New(starter, "postgres://ignored")
	d.reconnect = time.Millisecond
	i := 0
	d.connect = func() (notifications, error) {
		if i >= len(conns) {
			// Park further attempts on a never-closing connection.
			return &fakeNotifications{ch: make(chan *pq.Notification)}, nil
		}
		c := conns[i]
		i++
		return c, nil
	}
	return d
}

func notification(payload string) *pq.Notification {
	return &pq.Notification{Channel: "workflow_events", Extra: payload}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestDispatcherStartsConfiguredWorkflow(t *testing.T) {
	starter := &fakeStarter{}
	conn := &fakeNotifications{ch: make(chan *pq.Notification, 1)}
	d := newTestDispatcher(starter, conn)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer d.Stop()

	conn.ch <- notification(`{
		"event_type": "INSERT", "table_name": "contacts", "company_id": "acme",
		"record_id": "rec-1", "new_data": {"email": "ada@example.com"},
		"trigger_config": {"workflow_slug": "contact-validation"}
	}`)

	waitFor(t, func() bool { return len(starter.startedSlugs()) == 1 }, "workflow was never started")
	if got := starter.startedSlugs()[0]; got != "contact-validation" {
		t.Fatalf("started %q, expected contact-validation", got)
	}
	starter.mu.Lock()
	trigger := starter.triggers[0]
	starter.mu.Unlock()
	if trigger.RecordID != "rec-1" || trigger.NewData["email"] != "ada@example.com" {
		t.Fatalf("trigger payload not passed through: %+v", trigger)
	}
}

func TestDispatcherDropsEventWithoutTriggerConfig(t *testing.T) {
	starter := &fakeStarter{}
	conn := &fakeNotifications{ch: make(chan *pq.Notification, 2)}
	d := newTestDispatcher(starter, conn)

	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()

	conn.ch <- notification(`{"event_type": "UPDATE", "table_name": "contacts", "trigger_config": null}`)
	// A follow-up valid event proves the dropped one did not stall the loop.
	conn.ch <- notification(`{"event_type": "INSERT", "table_name": "orders", "trigger_config": {"workflow_slug": "order-intake"}}`)

	waitFor(t, func() bool { return len(starter.startedSlugs()) == 1 }, "valid event was not processed")
	if starter.startedSlugs()[0] != "order-intake" {
		t.Fatalf("unexpected starts: %v", starter.startedSlugs())
	}
}

func TestDispatcherSkipsMalformedPayload(t *testing.T) {
	starter := &fakeStarter{}
	conn := &fakeNotifications{ch: make(chan *pq.Notification, 2)}
	d := newTestDispatcher(starter, conn)

	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()

	conn.ch <- notification(`{not json`)
	conn.ch <- notification(`{"trigger_config": {"workflow_slug": "after-garbage"}}`)

	waitFor(t, func() bool { return len(starter.startedSlugs()) == 1 }, "dispatcher stalled on malformed payload")
	if starter.startedSlugs()[0] != "after-garbage" {
		t.Fatalf("unexpected starts: %v", starter.startedSlugs())
	}
}

func TestDispatcherReconnectsWhenStreamEnds(t *testing.T) {
	starter := &fakeStarter{}
	first := &fakeNotifications{ch: make(chan *pq.Notification)}
	second := &fakeNotifications{ch: make(chan *pq.Notification, 1)}
	d := newTestDispatcher(starter, first, second)

	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()

	waitFor(t, func() bool { return d.State() == StateListening }, "dispatcher never started listening")

	// Severing the stream must move through RECONNECTING to a new
	// connection that keeps delivering events.
	close(first.ch)
	second.ch <- notification(`{"trigger_config": {"workflow_slug": "post-reconnect"}}`)

	waitFor(t, func() bool { return len(starter.startedSlugs()) == 1 }, "no event processed after reconnect")
	if !first.closed {
		t.Fatal("severed connection was not closed")
	}
}

func TestDispatcherIsASingleton(t *testing.T) {
	d := newTestDispatcher(&fakeStarter{}, &fakeNotifications{ch: make(chan *pq.Notification)})

	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail while running")
	}
}

func TestDispatcherStopTransitionsToStopped(t *testing.T) {
	d := newTestDispatcher(&fakeStarter{}, &fakeNotifications{ch: make(chan *pq.Notification)})

	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return d.State() == StateListening }, "dispatcher never started listening")

	d.Stop()
	if d.State() != StateStopped {
		t.Fatalf("expected STOPPED after Stop, got %s", d.State())
	}

	// A stopped dispatcher can be started again.
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	d.Stop()
}
