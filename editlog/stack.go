// Package editlog keeps the undo/redo history of a session's cell edits.
package editlog

import (
	"context"
	"fmt"

	"workportal/models"
)

// Applier writes a value through the same path as an interactive edit.
// ApplyCell reports false when the row is not in the grid any more.
type Applier interface {
	ApplyCell(ctx context.Context, key, field, value string) (bool, error)
}

type Command interface {
	Undo(ctx context.Context, a Applier) error
	Redo(ctx context.Context, a Applier) error
	Label() string
}

// CellEdit is one cell change with its previous value.
type CellEdit struct {
	Edit models.PendingEdit
}

func (c CellEdit) Undo(ctx context.Context, a Applier) error {
	_, err := a.ApplyCell(ctx, c.Edit.Key, c.Edit.Field, c.Edit.Old)
	return err
}

func (c CellEdit) Redo(ctx context.Context, a Applier) error {
	_, err := a.ApplyCell(ctx, c.Edit.Key, c.Edit.Field, c.Edit.New)
	return err
}

func (c CellEdit) Label() string {
	return fmt.Sprintf("edit %s of row %s", c.Edit.Field, c.Edit.Key)
}

// GroupEdit is a bulk paste or clear. Redo applies the edits in order, undo
// reverts them in reverse order.
type GroupEdit struct {
	Name  string
	Edits []models.PendingEdit
}

func (g GroupEdit) Undo(ctx context.Context, a Applier) error {
	for i := len(g.Edits) - 1; i >= 0; i-- {
		e := g.Edits[i]
		if _, err := a.ApplyCell(ctx, e.Key, e.Field, e.Old); err != nil {
			return err
		}
	}
	return nil
}

func (g GroupEdit) Redo(ctx context.Context, a Applier) error {
	for _, e := range g.Edits {
		if _, err := a.ApplyCell(ctx, e.Key, e.Field, e.New); err != nil {
			return err
		}
	}
	return nil
}

func (g GroupEdit) Label() string {
	return fmt.Sprintf("%s of %d cells", g.Name, len(g.Edits))
}

// Stack is a bounded undo/redo history. It is owned by the session loop and
// is not safe for concurrent use.
type Stack struct {
	undo      []Command
	redo      []Command
	limit     int
	replaying bool
}

// NewStack keeps at most limit commands; 0 keeps everything.
func NewStack(limit int) *Stack {
	return &Stack{limit: limit}
}

// Push records a new command and drops the redo history. Commands pushed
// while an undo or redo is replaying are ignored.
func (s *Stack) Push(cmd Command) {
	if s.replaying {
		return
	}
	s.undo = append(s.undo, cmd)
	s.redo = nil
	if s.limit > 0 && len(s.undo) > s.limit {
		s.undo = append([]Command(nil), s.undo[len(s.undo)-s.limit:]...)
	}
}

// Replaying is true while Undo or Redo applies a command.
func (s *Stack) Replaying() bool {
	return s.replaying
}

func (s *Stack) Undo(ctx context.Context, a Applier) (Command, error) {
	if len(s.undo) == 0 {
		return nil, models.ErrNothingToUndo
	}
	cmd := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]

	if err := s.replay(func() error { return cmd.Undo(ctx, a) }); err != nil {
		s.undo = append(s.undo, cmd)
		return cmd, err
	}
	s.redo = append(s.redo, cmd)
	return cmd, nil
}

func (s *Stack) Redo(ctx context.Context, a Applier) (Command, error) {
	if len(s.redo) == 0 {
		return nil, models.ErrNothingToRedo
	}
	cmd := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]

	if err := s.replay(func() error { return cmd.Redo(ctx, a) }); err != nil {
		s.redo = append(s.redo, cmd)
		return cmd, err
	}
	s.undo = append(s.undo, cmd)
	return cmd, nil
}

func (s *Stack) replay(fn func() error) error {
	s.replaying = true
	defer func() { s.replaying = false }()
	return fn()
}

func (s *Stack) CanUndo() bool { return len(s.undo) > 0 }
func (s *Stack) CanRedo() bool { return len(s.redo) > 0 }

// Clear drops all history, used when the grid is reloaded for another table
// or filter.
func (s *Stack) Clear() {
	s.undo = nil
	s.redo = nil
}
