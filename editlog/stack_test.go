package editlog

import (
	"context"
	"errors"
	"testing"

	"workportal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type applied struct {
	key, field, value string
}

// memGrid records applied values and pushes a command for every apply, the
// way the real edit path does outside of a replay.
type memGrid struct {
	cells   map[models.CellRef]string
	log     []applied
	stack   *Stack
	missing map[string]bool
	fail    error
}

func newMemGrid(stack *Stack) *memGrid {
	return &memGrid{cells: map[models.CellRef]string{}, stack: stack, missing: map[string]bool{}}
}

func (g *memGrid) ApplyCell(ctx context.Context, key, field, value string) (bool, error) {
	if g.fail != nil {
		return false, g.fail
	}
	if g.missing[key] {
		return false, nil
	}
	ref := models.CellRef{Key: key, Field: field}
	old := g.cells[ref]
	g.cells[ref] = value
	g.log = append(g.log, applied{key, field, value})
	g.stack.Push(CellEdit{Edit: models.PendingEdit{Key: key, Field: field, Old: old, New: value}})
	return true, nil
}

func (g *memGrid) get(key, field string) string {
	return g.cells[models.CellRef{Key: key, Field: field}]
}

func TestUndoRedoRestoresValue(t *testing.T) {
	ctx := context.Background()
	s := NewStack(0)
	g := newMemGrid(s)

	_, err := g.ApplyCell(ctx, "1", "status", "Hold")
	require.NoError(t, err)
	afterApply := g.get("1", "status")

	_, err = s.Undo(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, "", g.get("1", "status"))

	_, err = s.Redo(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, afterApply, g.get("1", "status"))

	// replays did not record new commands
	assert.True(t, s.CanUndo())
	assert.False(t, s.CanRedo())
	_, err = s.Undo(ctx, g)
	require.NoError(t, err)
	_, err = s.Undo(ctx, g)
	assert.ErrorIs(t, err, models.ErrNothingToUndo)
}

func TestGroupEditOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStack(0)
	g := newMemGrid(s)

	edits := []models.PendingEdit{
		{Key: "1", Field: "a", Old: "", New: "x"},
		{Key: "2", Field: "a", Old: "p", New: "y"},
		{Key: "3", Field: "b", Old: "q", New: "z"},
	}
	s.Push(GroupEdit{Name: "paste", Edits: edits})

	_, err := s.Undo(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, []applied{{"3", "b", "q"}, {"2", "a", "p"}, {"1", "a", ""}}, g.log)

	g.log = nil
	_, err = s.Redo(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, []applied{{"1", "a", "x"}, {"2", "a", "y"}, {"3", "b", "z"}}, g.log)
	assert.Equal(t, "paste of 3 cells", GroupEdit{Name: "paste", Edits: edits}.Label())
}

func TestPushClearsRedo(t *testing.T) {
	ctx := context.Background()
	s := NewStack(0)
	g := newMemGrid(s)

	_, _ = g.ApplyCell(ctx, "1", "f", "a")
	_, _ = g.ApplyCell(ctx, "1", "f", "b")
	_, err := s.Undo(ctx, g)
	require.NoError(t, err)
	require.True(t, s.CanRedo())

	_, _ = g.ApplyCell(ctx, "1", "f", "c")
	assert.False(t, s.CanRedo())
	_, err = s.Redo(ctx, g)
	assert.ErrorIs(t, err, models.ErrNothingToRedo)
}

func TestStackLimit(t *testing.T) {
	ctx := context.Background()
	s := NewStack(2)
	g := newMemGrid(s)

	for _, v := range []string{"a", "b", "c"} {
		_, _ = g.ApplyCell(ctx, "1", "f", v)
	}

	_, err := s.Undo(ctx, g)
	require.NoError(t, err)
	_, err = s.Undo(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, "a", g.get("1", "f"))
	_, err = s.Undo(ctx, g)
	assert.ErrorIs(t, err, models.ErrNothingToUndo)
}

func TestMissingRowIsNoop(t *testing.T) {
	ctx := context.Background()
	s := NewStack(0)
	g := newMemGrid(s)

	_, _ = g.ApplyCell(ctx, "9", "f", "a")
	g.missing["9"] = true
	g.log = nil

	_, err := s.Undo(ctx, g)
	require.NoError(t, err)
	assert.Empty(t, g.log)
	assert.True(t, s.CanRedo())
}

func TestFailedReplayKeepsCommand(t *testing.T) {
	ctx := context.Background()
	s := NewStack(0)
	g := newMemGrid(s)

	_, _ = g.ApplyCell(ctx, "1", "f", "a")
	g.fail = &models.TransactionError{Op: "update", Err: errors.New("deadlock")}

	_, err := s.Undo(ctx, g)
	var txErr *models.TransactionError
	assert.ErrorAs(t, err, &txErr)
	assert.True(t, s.CanUndo())
	assert.False(t, s.CanRedo())
	assert.False(t, s.Replaying())
}

func TestClear(t *testing.T) {
	s := NewStack(0)
	s.Push(CellEdit{Edit: models.PendingEdit{Key: "1", Field: "f", New: "a"}})
	s.Clear()
	assert.False(t, s.CanUndo())
	assert.False(t, s.CanRedo())
}
