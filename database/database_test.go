package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"testing"

	"workportal/config"
	"workportal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// lazyDB never touches the network until a statement runs.
func lazyDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=127.0.0.1 port=1 user=test dbname=test sslmode=disable",
	}), &gorm.Config{DisableAutomaticPing: true, Logger: logger.Discard})
	require.NoError(t, err)
	return db
}

type fakeDialer struct {
	calls int
	err   error
	t     *testing.T
}

func (f *fakeDialer) dial(ctx context.Context, cfg *config.Config, creds Credentials) (*gorm.DB, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return lazyDB(f.t), nil
}

// fakeAdmin reports the backends in others until they are terminated.
type fakeAdmin struct {
	others      []int
	stubborn    bool
	checks      int
	application string
	terminated  []int
}

func (a *fakeAdmin) OtherBackends(ctx context.Context, user, application string) ([]int, error) {
	a.checks++
	a.application = application
	return a.others, nil
}

func (a *fakeAdmin) Terminate(ctx context.Context, pid int) error {
	a.terminated = append(a.terminated, pid)
	if !a.stubborn {
		a.others = nil
	}
	return nil
}

func newTestManager(t *testing.T, d *fakeDialer) *Manager {
	return newManagerAs(t, d, &fakeAdmin{}, "1001", nil)
}

func newManagerAs(t *testing.T, d *fakeDialer, admin *fakeAdmin, user string, confirm ConfirmFunc) *Manager {
	d.t = t
	m := NewManager(&config.Config{DBName: "test", PrivilegedUser: "postgres"}, Credentials{User: user}, confirm)
	m.WithDialer(d.dial)
	m.admin = func(db *gorm.DB) SessionAdmin { return admin }
	return m
}

func TestConnectIsIdempotent(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d)

	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Connect(context.Background()))

	assert.Equal(t, 1, d.calls)
	assert.Equal(t, StateConnected, m.State())
}

func TestConnectFailure(t *testing.T) {
	d := &fakeDialer{err: errors.New("password authentication failed")}
	m := newTestManager(t, d)

	err := m.Connect(context.Background())

	var connErr *models.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "connect", connErr.Op)
	assert.Equal(t, StateDisconnected, m.State())
}

func TestCursorRetriesThenDegrades(t *testing.T) {
	d := &fakeDialer{err: errors.New("connection refused")}
	m := newTestManager(t, d)

	cur := m.Cursor(context.Background(), 3)

	assert.Equal(t, 3, d.calls)
	assert.False(t, cur.Connected())

	var connErr *models.ConnectionError
	var dest []int
	assert.ErrorAs(t, cur.Query(context.Background(), &dest, "SELECT 1"), &connErr)
	_, err := cur.Exec(context.Background(), "SELECT 1")
	assert.ErrorAs(t, err, &connErr)
}

func TestCursorWhenConnected(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d)

	cur := m.Cursor(context.Background(), 2)

	assert.True(t, cur.Connected())
	assert.Equal(t, 1, d.calls)
}

func TestCleanupIsTerminal(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d)
	require.NoError(t, m.Connect(context.Background()))

	m.Cleanup()
	assert.Equal(t, StateCleanedUp, m.State())

	assert.ErrorIs(t, m.Connect(context.Background()), models.ErrCleanedUp)

	cur := m.Cursor(context.Background(), 5)
	assert.False(t, cur.Connected())
	assert.Equal(t, 1, d.calls)

	err := m.Transaction(context.Background(), func(tx *gorm.DB) error { return nil })
	var connErr *models.ConnectionError
	assert.ErrorAs(t, err, &connErr)

	_, err = m.OpenDedicated(context.Background())
	assert.ErrorIs(t, err, models.ErrCleanedUp)
}

func TestCloseAllowsReconnect(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d)
	require.NoError(t, m.Connect(context.Background()))

	m.Close()
	assert.Equal(t, StateDisconnected, m.State())

	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, 2, d.calls)
}

func TestSingleSessionRefusesOrdinaryUser(t *testing.T) {
	d := &fakeDialer{}
	admin := &fakeAdmin{others: []int{42}}
	asked := false
	m := newManagerAs(t, d, admin, "1001", func(int) bool { asked = true; return true })

	assert.ErrorIs(t, m.Connect(context.Background()), models.ErrSessionActive)
	assert.Equal(t, StateDisconnected, m.State())
	assert.False(t, asked)
	assert.Empty(t, admin.terminated)

	d.calls = 0
	cur := m.Cursor(context.Background(), 4)
	assert.False(t, cur.Connected())
	assert.Equal(t, 1, d.calls, "refused sessions are not retried")
}

func TestSingleSessionPrivileged(t *testing.T) {
	tests := []struct {
		name           string
		confirm        bool
		stubborn       bool
		wantErr        error
		wantTerminated []int
	}{
		{name: "confirmed", confirm: true, wantTerminated: []int{42, 43}},
		{name: "declined", confirm: false, wantErr: models.ErrSessionActive},
		{name: "survivors after terminate", confirm: true, stubborn: true,
			wantErr: models.ErrSessionActive, wantTerminated: []int{42, 43}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			admin := &fakeAdmin{others: []int{42, 43}, stubborn: tt.stubborn}
			var asked int
			m := newManagerAs(t, &fakeDialer{}, admin, "postgres", func(n int) bool {
				asked = n
				return tt.confirm
			})

			err := m.Connect(context.Background())

			assert.Equal(t, 2, asked)
			assert.Equal(t, tt.wantTerminated, admin.terminated)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, StateDisconnected, m.State())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StateConnected, m.State())
			assert.Equal(t, 2, admin.checks)
		})
	}
}

func TestSessionCheckExcludesOwnConnections(t *testing.T) {
	admin := &fakeAdmin{}
	m := newManagerAs(t, &fakeDialer{}, admin, "1001", nil)

	require.NoError(t, m.Connect(context.Background()))

	app := m.Credentials().Application
	assert.True(t, strings.HasPrefix(app, "workportal-"))
	assert.Equal(t, app, admin.application)
}

func TestReconnectAfterLostConnection(t *testing.T) {
	d := &fakeDialer{}
	admin := &fakeAdmin{}
	m := newManagerAs(t, d, admin, "postgres", func(int) bool { return true })
	require.NoError(t, m.Connect(context.Background()))

	// the session's own listener and lookup connections are now open
	admin.others = []int{77, 78}
	m.markDisconnected(m.handle())
	require.Equal(t, StateDisconnected, m.State())

	cur := m.Cursor(context.Background(), 2)

	assert.True(t, cur.Connected())
	assert.Equal(t, 2, d.calls)
	assert.Equal(t, 1, admin.checks)
	assert.Empty(t, admin.terminated)
}

func TestSessionRetriesConfiguredTimes(t *testing.T) {
	d := &fakeDialer{err: errors.New("connection refused")}
	m := newTestManager(t, d)
	m.cfg.CursorRetries = 3

	err := m.Transaction(context.Background(), func(tx *gorm.DB) error { return nil })

	var connErr *models.ConnectionError
	assert.ErrorAs(t, err, &connErr)
	assert.Equal(t, 3, d.calls)
}

func TestConnConfigKeepsCredentialsOutOfDSN(t *testing.T) {
	cfg := &config.Config{DBHost: "db.internal", DBPort: "5432", DBName: "work_allocation", DBSSLMode: "disable"}
	tests := []struct {
		name     string
		user     string
		password string
	}{
		{name: "password carrying connection keys", user: "postgres", password: "x host=attacker.example port=6543 dbname=evil"},
		{name: "password with a space", user: "1001", password: "correct horse"},
		{name: "quoted password", user: "1001", password: `it's "quoted"`},
		{name: "user carrying connection keys", user: "1001 host=attacker.example", password: "pw"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc, err := ConnConfig(cfg, Credentials{User: tt.user, Password: tt.password, Application: "workportal-test"})
			require.NoError(t, err)

			assert.Equal(t, "db.internal", cc.Host)
			assert.Equal(t, uint16(5432), cc.Port)
			assert.Equal(t, "work_allocation", cc.Database)
			assert.Equal(t, tt.user, cc.User)
			assert.Equal(t, tt.password, cc.Password)
			assert.Equal(t, "workportal-test", cc.RuntimeParams["application_name"])
			assert.NotContains(t, cc.RuntimeParams, "horse")
		})
	}
}

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(t *testing.T, err error)
	}{
		{
			name:  "record not found",
			err:   gorm.ErrRecordNotFound,
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, models.ErrRowNotFound) },
		},
		{
			name: "terminated backend",
			err:  &pgconn.PgError{Code: "57P01", Message: "terminating connection due to administrator command"},
			check: func(t *testing.T, err error) {
				var connErr *models.ConnectionError
				assert.ErrorAs(t, err, &connErr)
			},
		},
		{
			name: "bad connection",
			err:  fmt.Errorf("exec: %w", driver.ErrBadConn),
			check: func(t *testing.T, err error) {
				var connErr *models.ConnectionError
				assert.ErrorAs(t, err, &connErr)
			},
		},
		{
			name: "constraint violation",
			err:  &pgconn.PgError{Code: "23505", Message: "duplicate key"},
			check: func(t *testing.T, err error) {
				var txErr *models.TransactionError
				require.ErrorAs(t, err, &txErr)
				assert.Equal(t, "update", txErr.Op)
			},
		},
		{
			name: "taxonomy passes through",
			err:  &models.PrivilegeError{Role: models.RoleRFDBQCUser, Field: "priority"},
			check: func(t *testing.T, err error) {
				var privErr *models.PrivilegeError
				assert.ErrorAs(t, err, &privErr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, translateError("update", tt.err))
		})
	}
	assert.NoError(t, translateError("update", nil))
}

func TestCastValue(t *testing.T) {
	assert.Equal(t, "NULLIF(?::text, '')::date", castValue("date"))
	assert.Equal(t, "NULLIF(?::text, '')::integer", castValue("integer"))
	assert.Equal(t, "NULLIF(?::text, '')", castValue("character varying"))
	assert.Equal(t, "NULLIF(?::text, '')", castValue("USER-DEFINED"))
}

func TestByKeyQueryCastsParameters(t *testing.T) {
	schema, err := models.SchemaFor(models.TableProduction)
	require.NoError(t, err)
	r := NewRepository(newTestManager(t, &fakeDialer{}), schema)

	tests := []struct {
		keyType string
		n       int
		want    string
	}{
		{"integer", 1, `"s_no" IN (NULLIF(?::text, '')::integer) ORDER BY`},
		{"bigint", 3, `"s_no" IN (NULLIF(?::text, '')::bigint, NULLIF(?::text, '')::bigint, NULLIF(?::text, '')::bigint) ORDER BY`},
		{"character varying", 2, `"s_no" IN (NULLIF(?::text, ''), NULLIF(?::text, '')) ORDER BY`},
	}
	for _, tt := range tests {
		t.Run(tt.keyType, func(t *testing.T) {
			query := r.byKeyQuery(tt.keyType, tt.n)
			assert.Contains(t, query, tt.want)
			assert.NotContains(t, query, `"s_no"::text IN`)
			assert.Equal(t, tt.n, strings.Count(query, "?"))
		})
	}
}

func TestRepositoryRetriesBeforeFailing(t *testing.T) {
	schema, err := models.SchemaFor(models.TableProduction)
	require.NoError(t, err)
	d := &fakeDialer{err: errors.New("connection refused")}
	m := newTestManager(t, d)
	m.cfg.CursorRetries = 3
	r := NewRepository(m, schema)

	_, err = r.Subcountries(context.Background())
	var connErr *models.ConnectionError
	assert.ErrorAs(t, err, &connErr)
	assert.Equal(t, 3, d.calls)

	d.calls = 0
	err = r.AnnounceEdit(context.Background(), "1", "subcountry", "2002", "1001")
	assert.ErrorAs(t, err, &connErr)
	assert.Equal(t, 3, d.calls)
}

func TestSplitPayload(t *testing.T) {
	assert.Nil(t, splitPayload(nil, 10))
	assert.Equal(t, []string{"1,2,3"}, splitPayload([]string{"1", "2", "3"}, 10))
	assert.Equal(t, []string{"100,200", "300"}, splitPayload([]string{"100", "200", "300"}, 8))

	var keys []string
	for i := 0; i < 5000; i++ {
		keys = append(keys, fmt.Sprint(i))
	}
	payloads := splitPayload(keys, maxPayload)
	total := 0
	for _, p := range payloads {
		assert.LessOrEqual(t, len(p), maxPayload)
		total += len(strings.Split(p, ","))
	}
	assert.Equal(t, len(keys), total)
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, logger.Info, LogLevel("info"))
	assert.Equal(t, logger.Silent, LogLevel("silent"))
	assert.Equal(t, logger.Warn, LogLevel("bogus"))
}
