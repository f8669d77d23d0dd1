package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"workportal/config"
	"workportal/models"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	// StateCleanedUp is terminal: the user logged out.
	StateCleanedUp
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateCleanedUp:
		return "cleaned up"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Credentials are the employee's own datastore login. Application tags every
// connection of one session in pg_stat_activity.
type Credentials struct {
	User        string
	Password    string
	Application string
}

// Dialer opens one session-owned handle for the credentials.
type Dialer func(ctx context.Context, cfg *config.Config, creds Credentials) (*gorm.DB, error)

// ConfirmFunc is asked before other sessions of the same identity are
// terminated. n is the number of sessions found.
type ConfirmFunc func(n int) bool

// SessionAdmin inspects and ends the server backends of a login.
type SessionAdmin interface {
	// OtherBackends lists the backends of user except the caller's own and
	// those tagged with application.
	OtherBackends(ctx context.Context, user, application string) ([]int, error)
	Terminate(ctx context.Context, pid int) error
}

// Manager owns the datastore connection of one logged-in user.
type Manager struct {
	cfg     *config.Config
	creds   Credentials
	dial    Dialer
	confirm ConfirmFunc
	admin   func(db *gorm.DB) SessionAdmin

	mu    sync.Mutex
	state State
	db    *gorm.DB
	// checked is set once the single-session check passed. Reconnects of the
	// same session skip it.
	checked bool
}

func NewManager(cfg *config.Config, creds Credentials, confirm ConfirmFunc) *Manager {
	if creds.Application == "" {
		creds.Application = "workportal-" + uuid.NewString()
	}
	return &Manager{
		cfg:     cfg,
		creds:   creds,
		dial:    Dial,
		confirm: confirm,
		admin:   newPGSessionAdmin,
	}
}

// WithDialer replaces how connections are opened.
func (m *Manager) WithDialer(dial Dialer) *Manager {
	m.dial = dial
	return m
}

func (m *Manager) Credentials() Credentials {
	return m.creds
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect opens the session connection. It is a no-op while connected and
// always fails once the manager has been cleaned up.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateCleanedUp:
		return models.ErrCleanedUp
	case StateConnected:
		return nil
	}

	m.state = StateConnecting
	db, err := m.dial(ctx, m.cfg, m.creds)
	if err != nil {
		m.state = StateDisconnected
		return &models.ConnectionError{Op: "connect", Err: err}
	}

	if !m.checked {
		if err := m.ensureSingleSession(ctx, m.admin(db)); err != nil {
			closeDB(db)
			m.state = StateDisconnected
			return err
		}
		m.checked = true
	}

	m.db = db
	m.state = StateConnected
	glog.Infof("connected to %s as %s", m.cfg.DBName, m.creds.User)
	return nil
}

// Cursor returns a cursor on the session connection, reconnecting up to
// retries times. When every attempt fails a disconnected cursor is returned
// whose operations all fail with a ConnectionError.
func (m *Manager) Cursor(ctx context.Context, retries int) Cursor {
	db, err := m.connect(ctx, retries)
	if err != nil {
		return disconnectedCursor{err: err}
	}
	return &liveCursor{m: m, db: db}
}

// connect returns the live handle, connecting up to retries times. Cleaned up
// and refused sessions are not retried.
func (m *Manager) connect(ctx context.Context, retries int) (*gorm.DB, error) {
	if db := m.handle(); db != nil {
		return db, nil
	}
	if retries < 1 {
		retries = 1
	}

	var lastErr error = models.ErrDisconnected
	for attempt := 1; attempt <= retries; attempt++ {
		err := m.Connect(ctx)
		if err == nil {
			if db := m.handle(); db != nil {
				return db, nil
			}
			continue
		}
		lastErr = err
		if errors.Is(err, models.ErrCleanedUp) || errors.Is(err, models.ErrSessionActive) || ctx.Err() != nil {
			break
		}
		glog.Warningf("connect attempt %d/%d failed: %v", attempt, retries, err)
	}
	return nil, lastErr
}

// Transaction runs fn inside a read-write transaction. fn's error or a
// commit failure rolls back and is returned as a TransactionError.
func (m *Manager) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return m.transaction(ctx, "transaction", false, fn)
}

// ReadOnlyTransaction is Transaction with the transaction marked read only.
func (m *Manager) ReadOnlyTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return m.transaction(ctx, "read-only transaction", true, fn)
}

func (m *Manager) transaction(ctx context.Context, op string, readOnly bool, fn func(tx *gorm.DB) error) error {
	db, err := m.session(ctx)
	if err != nil {
		return err
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if readOnly {
			if err := tx.Exec("SET TRANSACTION READ ONLY").Error; err != nil {
				return err
			}
		}
		return fn(tx)
	})
	if err == nil {
		return nil
	}
	return m.translate(op, err)
}

// session returns the live handle, reconnecting up to CursorRetries times.
func (m *Manager) session(ctx context.Context) (*gorm.DB, error) {
	db, err := m.connect(ctx, m.cfg.CursorRetries)
	if err == nil {
		return db, nil
	}
	if errors.Is(err, models.ErrCleanedUp) || errors.Is(err, models.ErrDisconnected) {
		return nil, &models.ConnectionError{Op: "session", Err: err}
	}
	return nil, err
}

func (m *Manager) handle() *gorm.DB {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return nil
	}
	return m.db
}

// OpenDedicated opens a second connection with the same credentials for
// work that runs concurrently with the session connection. The caller closes
// it with CloseDedicated.
func (m *Manager) OpenDedicated(ctx context.Context) (*gorm.DB, error) {
	if m.State() == StateCleanedUp {
		return nil, &models.ConnectionError{Op: "dedicated connect", Err: models.ErrCleanedUp}
	}
	db, err := m.dial(ctx, m.cfg, m.creds)
	if err != nil {
		return nil, &models.ConnectionError{Op: "dedicated connect", Err: err}
	}
	return db, nil
}

func CloseDedicated(db *gorm.DB) {
	closeDB(db)
}

// ListenConn opens a raw connection for LISTEN. Notifications need a
// connection that is not returned to a pool between waits.
func (m *Manager) ListenConn(ctx context.Context) (*pgx.Conn, error) {
	if m.State() == StateCleanedUp {
		return nil, &models.ConnectionError{Op: "listen connect", Err: models.ErrCleanedUp}
	}
	connConfig, err := ConnConfig(m.cfg, m.creds)
	if err != nil {
		return nil, &models.ConnectionError{Op: "listen connect", Err: err}
	}
	conn, err := pgx.ConnectConfig(ctx, connConfig)
	if err != nil {
		return nil, &models.ConnectionError{Op: "listen connect", Err: err}
	}
	if err := setSessionUser(ctx, conn, m.creds.User); err != nil {
		conn.Close(ctx)
		return nil, &models.ConnectionError{Op: "listen connect", Err: err}
	}
	return conn, nil
}

// Close drops the connection. The manager may connect again.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateCleanedUp {
		return
	}
	m.release()
	m.state = StateDisconnected
}

// Cleanup drops the connection and refuses any further connect.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateCleanedUp {
		return
	}
	m.release()
	m.state = StateCleanedUp
	glog.Infof("session of %s cleaned up", m.creds.User)
}

func (m *Manager) release() {
	if m.db != nil {
		closeDB(m.db)
		m.db = nil
	}
}

// markDisconnected is called when a query reports a dead connection so the
// next Cursor call reconnects.
func (m *Manager) markDisconnected(db *gorm.DB) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateConnected && m.db == db {
		m.release()
		m.state = StateDisconnected
		glog.Warningf("connection of %s lost", m.creds.User)
	}
}

func (m *Manager) translate(op string, err error) error {
	translated := translateError(op, err)
	var connErr *models.ConnectionError
	if errors.As(translated, &connErr) {
		if db := m.handle(); db != nil {
			m.markDisconnected(db)
		}
	}
	return translated
}

// ConnConfig parses the server address and sets the login on the result.
// Credentials never go through the connection string, so no character in a
// password can change which server is dialled.
func ConnConfig(cfg *config.Config, creds Credentials) (*pgx.ConnConfig, error) {
	connConfig, err := pgx.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}
	connConfig.User = creds.User
	connConfig.Password = creds.Password
	if creds.Application != "" {
		connConfig.RuntimeParams["application_name"] = creds.Application
	}
	return connConfig, nil
}

// Dial opens a single-connection handle. Every physical connection sets
// app.current_user_emp_id before it is used.
func Dial(ctx context.Context, cfg *config.Config, creds Credentials) (*gorm.DB, error) {
	connConfig, err := ConnConfig(cfg, creds)
	if err != nil {
		return nil, err
	}

	sqlDB := stdlib.OpenDB(*connConfig, stdlib.OptionAfterConnect(func(ctx context.Context, conn *pgx.Conn) error {
		return setSessionUser(ctx, conn, creds.User)
	}))
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:               logger.Default.LogMode(LogLevel(cfg.SQLLogLevel)),
		DisableAutomaticPing: true,
	})
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func setSessionUser(ctx context.Context, conn *pgx.Conn, empID string) error {
	_, err := conn.Exec(ctx, "SELECT set_config('app.current_user_emp_id', $1, false)", empID)
	return err
}

func LogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	}
	return logger.Warn
}

func closeDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		glog.Warningf("close connection: %v", err)
	}
}

// ensureSingleSession refuses the login while other backends run under the
// same identity. The privileged identity may terminate them after
// confirmation. Connections tagged with this session's application name are
// its own and never count.
func (m *Manager) ensureSingleSession(ctx context.Context, admin SessionAdmin) error {
	others, err := admin.OtherBackends(ctx, m.creds.User, m.creds.Application)
	if err != nil {
		return translateError("session check", err)
	}
	if len(others) == 0 {
		return nil
	}

	if m.creds.User != m.cfg.PrivilegedUser {
		glog.Warningf("%s already has %d active session(s)", m.creds.User, len(others))
		return models.ErrSessionActive
	}
	if m.confirm == nil || !m.confirm(len(others)) {
		return models.ErrSessionActive
	}

	for _, pid := range others {
		if err := admin.Terminate(ctx, pid); err != nil {
			return translateError("terminate session", err)
		}
		glog.Infof("terminated backend %d of %s", pid, m.creds.User)
	}

	others, err = admin.OtherBackends(ctx, m.creds.User, m.creds.Application)
	if err != nil {
		return translateError("session check", err)
	}
	if len(others) > 0 {
		return models.ErrSessionActive
	}
	return nil
}

type pgSessionAdmin struct {
	db *gorm.DB
}

func newPGSessionAdmin(db *gorm.DB) SessionAdmin {
	return pgSessionAdmin{db: db}
}

func (a pgSessionAdmin) OtherBackends(ctx context.Context, user, application string) ([]int, error) {
	var pids []int
	err := a.db.WithContext(ctx).
		Raw(`SELECT pid FROM pg_stat_activity
			WHERE usename = ? AND pid <> pg_backend_pid() AND application_name IS DISTINCT FROM ?`,
			user, application).
		Scan(&pids).Error
	return pids, err
}

func (a pgSessionAdmin) Terminate(ctx context.Context, pid int) error {
	return a.db.WithContext(ctx).Exec("SELECT pg_terminate_backend(?)", pid).Error
}
