package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"workportal/models"

	"github.com/golang/glog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Source is the connection notices arrive on. *pgx.Conn satisfies it.
type Source interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

type Mode int

const (
	// ModeWait blocks on the connection with a bounded timeout.
	ModeWait Mode = iota
	// ModePoll checks for queued notices on a fixed interval.
	ModePoll
)

func ParseMode(s string) Mode {
	if s == "poll" {
		return ModePoll
	}
	return ModeWait
}

type Options struct {
	Mode         Mode
	PollInterval time.Duration
	WaitTimeout  time.Duration
	// TableChannel carries row keys; ConflictChannel carries edit signals.
	TableChannel    string
	ConflictChannel string
}

const drainTimeout = 20 * time.Millisecond

// Listener reads notices from a dedicated connection and publishes them on
// the row and edit buses.
type Listener struct {
	src   Source
	opts  Options
	rows  *Bus[RowsChanged]
	edits *Bus[EditSignal]

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func NewListener(src Source, opts Options, rows *Bus[RowsChanged], edits *Bus[EditSignal]) *Listener {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 5 * time.Second
	}
	if opts.ConflictChannel == "" {
		opts.ConflictChannel = models.ConflictChannel
	}
	return &Listener{src: src, opts: opts, rows: rows, edits: edits}
}

// Start issues LISTEN on both channels and starts the loop. The listener owns
// the source from here on and closes it when the loop exits.
func (l *Listener) Start(ctx context.Context) error {
	for _, ch := range []string{l.opts.TableChannel, l.opts.ConflictChannel} {
		if ch == "" {
			continue
		}
		if _, err := l.src.Exec(ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
			return &models.ConnectionError{Op: "listen " + ch, Err: err}
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.cancel = cancel
	l.done = make(chan struct{})
	l.mu.Unlock()

	go l.run(ctx)
	glog.Infof("listening on %s and %s (mode %d)", l.opts.TableChannel, l.opts.ConflictChannel, l.opts.Mode)
	return nil
}

// Stop ends the loop within one wait or poll cycle and releases the
// connection.
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed once the loop has exited.
func (l *Listener) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Err reports why the loop exited on its own. Nil after Stop.
func (l *Listener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.src.Close(closeCtx); err != nil {
			glog.Warningf("close listen connection: %v", err)
		}
	}()

	var err error
	switch l.opts.Mode {
	case ModePoll:
		err = l.poll(ctx)
	default:
		err = l.wait(ctx)
	}
	if err != nil {
		glog.Errorf("listener stopped: %v", err)
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
	}
}

func (l *Listener) wait(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := l.next(ctx, l.opts.WaitTimeout)
		if err != nil {
			return err
		}
		if n != nil {
			l.dispatch(n)
		}
	}
}

func (l *Listener) poll(ctx context.Context) error {
	ticker := time.NewTicker(l.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		// drain everything already queued
		for {
			n, err := l.next(ctx, drainTimeout)
			if err != nil {
				return err
			}
			if n == nil {
				break
			}
			l.dispatch(n)
		}
	}
}

// next waits up to timeout for one notice. A timeout or a stopped listener
// yields nil without error.
func (l *Listener) next(ctx context.Context, timeout time.Duration) (*pgconn.Notification, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	n, err := l.src.WaitForNotification(waitCtx)
	if err == nil {
		return n, nil
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return nil, nil
	}
	return nil, &models.ConnectionError{Op: "wait for notification", Err: err}
}

func (l *Listener) dispatch(n *pgconn.Notification) {
	if err := l.publish(n.Channel, n.Payload); err != nil {
		glog.Warningf("dropping notice: %v", err)
	}
}

func (l *Listener) publish(channel, payload string) error {
	glog.V(1).Infof("notice on %s: %q", channel, payload)
	switch channel {
	case l.opts.TableChannel:
		ev, err := ParseRowsChanged(channel, payload)
		if err != nil {
			return err
		}
		l.rows.Publish(ev)
	case l.opts.ConflictChannel:
		ev, err := ParseEditSignal(channel, payload)
		if err != nil {
			return err
		}
		l.edits.Publish(ev)
	default:
		return &models.MalformedNoticeError{Channel: channel, Payload: payload, Reason: fmt.Sprintf("not listening on %s", channel)}
	}
	return nil
}
