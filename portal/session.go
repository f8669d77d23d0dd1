// Package portal assembles one logged-in user's editing session: the
// datastore connection, the notice listener, the conflict detector and the
// grid, all driven from a single loop goroutine.
package portal

import (
	"context"
	"fmt"
	"io"
	"sync"

	"workportal/access"
	"workportal/config"
	"workportal/conflict"
	"workportal/database"
	"workportal/editlog"
	"workportal/grid"
	"workportal/importer"
	"workportal/lookup"
	"workportal/models"
	"workportal/notify"

	"github.com/golang/glog"
	"github.com/google/uuid"
)

// Store is the datastore side of a session.
type Store interface {
	grid.Store
	Subcountries(ctx context.Context) ([]string, error)
}

// Backend is what a session runs against. Source and Directory are optional:
// without a Source no notices arrive, without a Directory no names are
// looked up.
type Backend struct {
	Store     Store
	Source    notify.Source
	Directory lookup.Directory
	// Importer is the bulk write side of the table. Nil disables imports.
	Importer importer.Store
	// Release is called last during teardown.
	Release func()
}

type Session struct {
	ID       string
	employee models.Employee
	schema   *models.Schema
	backend  Backend

	rows     *notify.Bus[notify.RowsChanged]
	edits    *notify.Bus[notify.EditSignal]
	alertBus *notify.Bus[conflict.Alert]
	subs     []*notify.Subscription
	listener *notify.Listener
	detector *conflict.Detector
	pool     *lookup.Pool
	grid     *grid.Grid

	ctx      context.Context
	cancel   context.CancelFunc
	tasks    chan func()
	loopDone chan struct{}

	alertMu sync.Mutex
	alerts  []conflict.Alert

	teardown sync.Once
}

// Open connects as the employee and starts a session on the table. confirm is
// asked before stale sessions of a privileged identity are terminated.
func Open(ctx context.Context, cfg *config.Config, emp models.Employee, schema *models.Schema, password string, confirm database.ConfirmFunc) (*Session, error) {
	mgr := database.NewManager(cfg, database.Credentials{User: emp.EmpID, Password: password}, confirm)
	if err := mgr.Connect(ctx); err != nil {
		mgr.Cleanup()
		return nil, err
	}

	repo := database.NewRepository(mgr, schema)
	b := Backend{Store: repo, Importer: database.NewImportStore(repo), Release: mgr.Cleanup}

	if conn, err := mgr.ListenConn(ctx); err != nil {
		glog.Warningf("no change notices for %s: %v", emp.EmpID, err)
	} else {
		b.Source = conn
	}

	if db, err := mgr.OpenDedicated(ctx); err != nil {
		glog.Warningf("no employee lookups for %s: %v", emp.EmpID, err)
	} else {
		dir := database.NewDirectory(db)
		b.Directory = dir
		b.Release = func() {
			dir.Close()
			mgr.Cleanup()
		}
	}

	return New(ctx, cfg, emp, schema, b)
}

// New starts a session over an assembled backend. The first full load runs
// before New returns.
func New(ctx context.Context, cfg *config.Config, emp models.Employee, schema *models.Schema, b Backend) (*Session, error) {
	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:       uuid.NewString(),
		employee: emp,
		schema:   schema,
		backend:  b,
		rows:     notify.NewBus[notify.RowsChanged]("rows"),
		edits:    notify.NewBus[notify.EditSignal]("edits"),
		alertBus: notify.NewBus[conflict.Alert]("alerts"),
		ctx:      sctx,
		cancel:   cancel,
		tasks:    make(chan func()),
		loopDone: make(chan struct{}),
	}

	policy := access.NewPolicy(cfg.StrictRowContext)
	s.detector = conflict.NewDetector(emp, schema.Kind, policy, s.alertBus)

	if b.Directory != nil {
		s.pool = lookup.NewPool(sctx, b.Directory, cfg.LookupWorkers, s.deliverName)
	}

	s.grid = grid.New(grid.Config{
		Employee:     emp,
		Schema:       schema,
		Policy:       policy,
		Store:        b.Store,
		Stack:        editlog.NewStack(cfg.UndoLimit),
		Tracker:      s.detector,
		OnEmployeeID: s.lookupName,
	})

	s.subs = append(s.subs,
		s.rows.Subscribe(s.onRowsChanged),
		s.edits.Subscribe(s.detector.Handle),
		s.alertBus.Subscribe(s.onAlert),
	)

	go s.loop()

	if b.Source != nil {
		s.listener = notify.NewListener(b.Source, notify.Options{
			Mode:            notify.ParseMode(cfg.ListenMode),
			PollInterval:    cfg.PollInterval,
			WaitTimeout:     cfg.WaitTimeout,
			TableChannel:    schema.Channel(),
			ConflictChannel: models.ConflictChannel,
		}, s.rows, s.edits)
		if err := s.listener.Start(sctx); err != nil {
			glog.Warningf("listen for %s failed: %v", emp.EmpID, err)
			_ = b.Source.Close(ctx)
			s.listener = nil
		} else {
			go s.watchListener(s.listener)
		}
	}

	if err := s.Load(ctx, models.Filter{}); err != nil {
		s.Teardown()
		return nil, err
	}
	glog.Infof("session %s opened for %s (%s) on %s", s.ID, emp.EmpID, emp.Role, schema.Table)
	return s, nil
}

func (s *Session) Employee() models.Employee {
	return s.employee
}

func (s *Session) Schema() *models.Schema {
	return s.schema
}

func (s *Session) loop() {
	defer close(s.loopDone)
	for {
		select {
		case <-s.ctx.Done():
			return
		case task := <-s.tasks:
			task()
		}
	}
}

// do runs fn on the session loop and waits for it. The task channel is
// unbuffered, so a task that was handed over always runs to completion.
func (s *Session) do(ctx context.Context, fn func(ctx context.Context) error) error {
	errc := make(chan error, 1)
	task := func() {
		defer func() {
			if r := recover(); r != nil {
				glog.Errorf("session %s task panicked: %v", s.ID, r)
				errc <- fmt.Errorf("internal error: %v", r)
			}
		}()
		errc <- fn(ctx)
	}

	select {
	case s.tasks <- task:
	case <-s.ctx.Done():
		return models.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-errc
}

// post queues fn on the loop without waiting for it to run.
func (s *Session) post(fn func(ctx context.Context)) {
	select {
	case s.tasks <- func() { fn(s.ctx) }:
	case <-s.ctx.Done():
	}
}

func (s *Session) onRowsChanged(ev notify.RowsChanged) {
	s.post(func(ctx context.Context) {
		if err := s.grid.ApplyNotice(ctx, ev.Keys); err != nil {
			glog.Warningf("session %s: refresh of %v failed: %v", s.ID, ev.Keys, err)
		}
	})
}

func (s *Session) onAlert(a conflict.Alert) {
	s.alertMu.Lock()
	defer s.alertMu.Unlock()
	s.alerts = append(s.alerts, a)
}

func (s *Session) lookupName(key, nameField, empID string) {
	if s.pool != nil {
		s.pool.Submit(key, nameField, empID)
	}
}

func (s *Session) deliverName(r lookup.Result) {
	s.post(func(ctx context.Context) {
		if _, err := s.grid.FillDerived(ctx, r.Key, r.Field, r.Name); err != nil {
			glog.Warningf("session %s: fill %s of row %s: %v", s.ID, r.Field, r.Key, err)
		}
	})
}

func (s *Session) watchListener(l *notify.Listener) {
	select {
	case <-l.Done():
		if err := l.Err(); err != nil {
			glog.Errorf("session %s stopped receiving notices: %v", s.ID, err)
		}
	case <-s.ctx.Done():
	}
}

// Listening reports whether change notices are still arriving.
func (s *Session) Listening() bool {
	if s.listener == nil {
		return false
	}
	select {
	case <-s.listener.Done():
		return false
	default:
		return true
	}
}

func (s *Session) Load(ctx context.Context, filter models.Filter) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.grid.Load(ctx, filter)
	})
}

func (s *Session) View(ctx context.Context) (grid.View, error) {
	var v grid.View
	err := s.do(ctx, func(ctx context.Context) error {
		v = s.grid.View()
		return nil
	})
	return v, err
}

func (s *Session) BeginEdit(ctx context.Context, ref models.CellRef) (string, error) {
	var value string
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		value, err = s.grid.BeginEdit(ctx, ref)
		return err
	})
	return value, err
}

func (s *Session) EndEdit(ctx context.Context, ref models.CellRef) error {
	return s.do(ctx, func(ctx context.Context) error {
		s.grid.EndEdit(ref)
		return nil
	})
}

func (s *Session) EditCell(ctx context.Context, key, field, value string) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.grid.HandleCellEdit(ctx, key, field, value)
	})
}

func (s *Session) Select(ctx context.Context, refs []models.CellRef, add bool) error {
	return s.do(ctx, func(ctx context.Context) error {
		s.grid.Select(refs, add)
		return nil
	})
}

// Paste writes tab separated clipboard text into the selection.
func (s *Session) Paste(ctx context.Context, text string) (int, error) {
	var n int
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.grid.Paste(ctx, grid.ParseClipboard(text))
		return err
	})
	return n, err
}

// Clear empties the editable selected cells once confirm agrees.
func (s *Session) Clear(ctx context.Context, confirm func(n int) bool) (int, error) {
	var n int
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.grid.Clear(ctx, confirm)
		return err
	})
	return n, err
}

func (s *Session) Sort(ctx context.Context, field string, desc bool) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.grid.Sort(field, desc)
	})
}

// SetColumnFilter with no values removes the filter on field.
func (s *Session) SetColumnFilter(ctx context.Context, field string, values []string) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.grid.SetColumnFilter(field, values)
	})
}

func (s *Session) ColumnValues(ctx context.Context, field string) ([]string, error) {
	var values []string
	err := s.do(ctx, func(ctx context.Context) error {
		if !s.schema.HasColumn(field) {
			return fmt.Errorf("%w: %s", models.ErrUnknownColumn, field)
		}
		values = s.grid.ColumnValues(field)
		return nil
	})
	return values, err
}

// Undo reverts the latest command and returns its label.
func (s *Session) Undo(ctx context.Context) (string, error) {
	return s.replay(ctx, s.grid.Undo)
}

func (s *Session) Redo(ctx context.Context) (string, error) {
	return s.replay(ctx, s.grid.Redo)
}

func (s *Session) replay(ctx context.Context, fn func(ctx context.Context) (editlog.Command, error)) (string, error) {
	var label string
	err := s.do(ctx, func(ctx context.Context) error {
		cmd, err := fn(ctx)
		if cmd != nil {
			label = cmd.Label()
		}
		return err
	})
	return label, err
}

// ApplyNotice refreshes rows by key as if a change notice had arrived.
func (s *Session) ApplyNotice(ctx context.Context, keys []string) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.grid.ApplyNotice(ctx, keys)
	})
}

// Alerts returns and clears the alerts raised since the last call.
func (s *Session) Alerts() []conflict.Alert {
	s.alertMu.Lock()
	defer s.alertMu.Unlock()
	alerts := s.alerts
	s.alerts = nil
	return alerts
}

func (s *Session) Subcountries(ctx context.Context) ([]string, error) {
	return s.backend.Store.Subcountries(ctx)
}

// Import bulk loads a CSV into the table and reloads the grid so the new rows
// show. Only roles allowed to import may call it.
func (s *Session) Import(ctx context.Context, r io.Reader, opts importer.Options) (importer.Result, error) {
	if !s.employee.Role.CanImport() {
		return importer.Result{}, &models.PrivilegeError{Role: s.employee.Role, Field: "import"}
	}
	if s.backend.Importer == nil {
		return importer.Result{}, fmt.Errorf("imports are not available for %s", s.schema.Table)
	}
	res, err := importer.Run(ctx, s.backend.Importer, r, opts)
	if err != nil {
		return res, err
	}
	err = s.do(ctx, func(ctx context.Context) error {
		return s.grid.Load(ctx, s.grid.Filter())
	})
	return res, err
}

// Teardown stops the loop, the lookups and the listener, then releases the
// datastore. It is safe to call more than once.
func (s *Session) Teardown() {
	s.teardown.Do(func() {
		s.cancel()
		<-s.loopDone

		if s.pool != nil {
			s.pool.Close()
		}
		if s.listener != nil {
			s.listener.Stop()
		}
		for _, sub := range s.subs {
			sub.Unsubscribe()
		}
		s.rows.Close()
		s.edits.Close()
		s.alertBus.Close()

		if s.backend.Release != nil {
			s.backend.Release()
		}
		glog.Infof("session %s of %s torn down", s.ID, s.employee.EmpID)
	})
}
