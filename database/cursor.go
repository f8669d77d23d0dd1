package database

import (
	"context"

	"workportal/models"

	"gorm.io/gorm"
)

// Cursor runs single statements outside an explicit transaction.
type Cursor interface {
	// Query scans the result of a raw query into dest.
	Query(ctx context.Context, dest any, sql string, args ...any) error
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	Connected() bool
}

type liveCursor struct {
	m  *Manager
	db *gorm.DB
}

func (c *liveCursor) Query(ctx context.Context, dest any, sql string, args ...any) error {
	if err := c.db.WithContext(ctx).Raw(sql, args...).Scan(dest).Error; err != nil {
		return c.m.translate("query", err)
	}
	return nil
}

func (c *liveCursor) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	result := c.db.WithContext(ctx).Exec(sql, args...)
	if result.Error != nil {
		return 0, c.m.translate("exec", result.Error)
	}
	return result.RowsAffected, nil
}

func (c *liveCursor) Connected() bool {
	return true
}

// disconnectedCursor stands in for a connection that could not be made.
type disconnectedCursor struct {
	err error
}

func (c disconnectedCursor) Query(ctx context.Context, dest any, sql string, args ...any) error {
	return &models.ConnectionError{Op: "query", Err: c.err}
}

func (c disconnectedCursor) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	return 0, &models.ConnectionError{Op: "exec", Err: c.err}
}

func (c disconnectedCursor) Connected() bool {
	return false
}
