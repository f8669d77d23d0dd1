package database

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"workportal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// translateError maps driver errors onto the models error taxonomy. Errors
// that already belong to it pass through.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		connErr *models.ConnectionError
		txErr   *models.TransactionError
		privErr *models.PrivilegeError
		pgConn  *pgconn.ConnectError
		pgErr   *pgconn.PgError
		netErr  net.Error
	)
	switch {
	case errors.As(err, &connErr), errors.As(err, &txErr), errors.As(err, &privErr):
		return err
	case errors.Is(err, models.ErrRowNotFound), errors.Is(err, models.ErrSessionActive):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.ErrRowNotFound
	case errors.As(err, &pgConn),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.As(err, &netErr):
		return &models.ConnectionError{Op: op, Err: err}
	case errors.As(err, &pgErr) && isConnectionClass(pgErr.Code):
		return &models.ConnectionError{Op: op, Err: err}
	}
	return &models.TransactionError{Op: op, Err: err}
}

// isConnectionClass covers SQLSTATE class 08 and the operator
// intervention codes sent when a backend is terminated.
func isConnectionClass(code string) bool {
	return strings.HasPrefix(code, "08") || strings.HasPrefix(code, "57P0")
}
