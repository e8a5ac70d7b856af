// Package dispatcher turns database change events into workflow executions.
// It listens on a Postgres NOTIFY channel; triggers installed on record
// tables publish one JSON payload per mutation.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"

	"github.com/recordflow/recordflow/internal/config"
	"github.com/recordflow/recordflow/pkg/recordflow/models"
)

type State string

const (
	StateStopped      State = "STOPPED"
	StateListening    State = "LISTENING"
	StateReconnecting State = "RECONNECTING"
)

// Starter is the slice of the execution manager the dispatcher drives.
type Starter interface {
	StartBySlug(slug string, trigger *models.TriggerPayload) (string, error)
}

// notifications abstracts *pq.Listener so the supervision loop can be
// tested without a database connection.
type notifications interface {
	Listen(channel string) error
	Notify() <-chan *pq.Notification
	Close() error
}

type pqNotifications struct {
	l *pq.Listener
}

func (p *pqNotifications) Listen(channel string) error     { return p.l.Listen(channel) }
func (p *pqNotifications) Notify() <-chan *pq.Notification { return p.l.NotificationChannel() }
func (p *pqNotifications) Close() error                    { return p.l.Close() }

// Dispatcher is the single listener for one process. Start is a singleton;
// a second call while running is an error.
type Dispatcher struct {
	engine    Starter
	channel   string
	reconnect time.Duration

	// connect is swapped out by tests.
	connect func() (notifications, error)

	mu      sync.Mutex
	state   State
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(engine Starter, connStr string) *Dispatcher {
	reconnect, err := time.ParseDuration(config.GetSystemSettingString(config.EVENT_RECONNECT_INTERVAL))
	if err != nil || reconnect <= 0 {
		reconnect = 5 * time.Second
	}
	d := &Dispatcher{
		engine:    engine,
		channel:   config.GetSystemSettingString(config.EVENT_CHANNEL),
		reconnect: reconnect,
		state:     StateStopped,
	}
	d.connect = func() (notifications, error) {
		l := pq.NewListener(connStr, d.reconnect, time.Minute, func(ev pq.ListenerEventType, err error) {
			if ev == pq.ListenerEventDisconnected || ev == pq.ListenerEventConnectionAttemptFailed {
				slog.Warn("Event listener connection lost", "error", err)
			}
		})
		return &pqNotifications{l: l}, nil
	}
	return d
}

// Start begins listening in a background goroutine. The dispatcher holds
// exactly one connection; starting twice is an error.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return errors.New("dispatcher is already running")
	}
	d.started = true
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.run(runCtx)
	return nil
}

// Stop tears the listener down and waits for the loop to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	cancel, done := d.cancel, d.done
	d.mu.Unlock()

	cancel()
	<-done

	d.mu.Lock()
	d.started = false
	d.mu.Unlock()
}

func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Dispatcher) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	defer d.setState(StateStopped)

	for {
		ln, err := d.establish(ctx)
		if err != nil {
			return
		}
		d.setState(StateListening)
		slog.Info("Listening for change events", "channel", d.channel)

		d.consume(ctx, ln)
		_ = ln.Close()
		if ctx.Err() != nil {
			return
		}
		slog.Warn("Change event stream interrupted, reconnecting", "channel", d.channel)
	}
}

// establish connects and subscribes, retrying on a fixed interval until it
// succeeds or ctx is cancelled.
func (d *Dispatcher) establish(ctx context.Context) (notifications, error) {
	var ln notifications
	op := func() error {
		l, err := d.connect()
		if err == nil {
			if err = l.Listen(d.channel); err != nil {
				_ = l.Close()
			}
		}
		if err != nil {
			d.setState(StateReconnecting)
			slog.Error("Failed to subscribe to change events", "channel", d.channel, "error", err)
			return err
		}
		ln = l
		return nil
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.NewConstantBackOff(d.reconnect), ctx))
	if err != nil {
		return nil, err
	}
	return ln, nil
}

func (d *Dispatcher) consume(ctx context.Context, ln notifications) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ln.Notify():
			if !ok {
				return
			}
			if n == nil {
				// pq signals a re-established connection with a nil
				// notification; events may have been missed meanwhile.
				slog.Warn("Event listener reconnected, events may have been dropped")
				continue
			}
			d.handle(n.Extra)
		}
	}
}

// handle decodes one change event and starts the configured workflow. Bad
// payloads are dropped, never retried: the event stream must keep moving.
func (d *Dispatcher) handle(payload string) {
	var trigger models.TriggerPayload
	if err := json.Unmarshal([]byte(payload), &trigger); err != nil {
		slog.Warn("Dropping malformed change event", "error", err)
		return
	}
	slug := trigger.WorkflowSlug()
	if slug == "" {
		slog.Debug("Dropping change event without workflow trigger",
			"table", trigger.TableName, "event", trigger.EventType)
		return
	}
	id, err := d.engine.StartBySlug(slug, &trigger)
	if err != nil {
		slog.Error("Failed to start workflow from change event",
			"workflow", slug, "table", trigger.TableName, "error", err)
		return
	}
	slog.Info("Started workflow from change event",
		"workflow", slug, "execution_id", id, "table", trigger.TableName, "event", trigger.EventType)
}

// Describe reports the dispatcher state for the health endpoint.
func (d *Dispatcher) Describe() string {
	return fmt.Sprintf("channel=%s state=%s", d.channel, d.State())
}
