package grid

import (
	"context"
	"errors"
	"strings"

	"workportal/editlog"
	"workportal/models"

	"github.com/golang/glog"
)

// ParseClipboard splits tab separated clipboard text into rows of cells.
func ParseClipboard(text string) [][]string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}
	var rows [][]string
	for _, line := range strings.Split(text, "\n") {
		rows = append(rows, strings.Split(line, "\t"))
	}
	return rows
}

// Paste writes the clipboard into the selection, cycling over the clipboard
// when the selection is larger. Read-only cells and values a dropdown column
// does not allow are skipped. All writes form one undo step.
func (g *Grid) Paste(ctx context.Context, clip [][]string) (int, error) {
	selected := g.Selection()
	if len(clip) == 0 || len(selected) == 0 {
		return 0, nil
	}

	width := 1
	for _, r := range clip {
		if len(r) > width {
			width = len(r)
		}
	}

	var edits []models.PendingEdit
	var failure error
	for i, ref := range selected {
		clipRow := clip[(i/width)%len(clip)]
		if len(clipRow) == 0 {
			continue
		}
		value := clipRow[(i%width)%len(clipRow)]

		if !g.cfg.Schema.Allowed(ref.Field, models.NormalizeValue(value)) || !g.Editable(ref.Key, ref.Field) {
			continue
		}
		edit, changed, err := g.edit(ctx, ref.Key, ref.Field, value)
		if err != nil {
			if skippable(err) {
				continue
			}
			failure = err
			break
		}
		if changed {
			edits = append(edits, edit)
		}
	}

	g.pushGroup("paste", edits)
	return len(edits), failure
}

// Clear empties every editable selected cell as one undo step. confirm is
// asked with the number of cells first; without its agreement nothing is
// written and ErrNotConfirmed is returned.
func (g *Grid) Clear(ctx context.Context, confirm func(n int) bool) (int, error) {
	var targets []models.CellRef
	for _, ref := range g.Selection() {
		if g.Editable(ref.Key, ref.Field) {
			targets = append(targets, ref)
		}
	}
	if len(targets) == 0 {
		return 0, nil
	}
	if confirm == nil || !confirm(len(targets)) {
		return 0, models.ErrNotConfirmed
	}

	var edits []models.PendingEdit
	var failure error
	for _, ref := range targets {
		edit, changed, err := g.edit(ctx, ref.Key, ref.Field, "")
		if err != nil {
			if skippable(err) {
				continue
			}
			failure = err
			break
		}
		if changed {
			edits = append(edits, edit)
		}
	}

	g.pushGroup("clear", edits)
	return len(edits), failure
}

func (g *Grid) pushGroup(name string, edits []models.PendingEdit) {
	if len(edits) == 0 || g.cfg.Stack.Replaying() {
		return
	}
	g.cfg.Stack.Push(editlog.GroupEdit{Name: name, Edits: edits})
	glog.V(1).Infof("%s of %d cells", name, len(edits))
}

// skippable errors affect one cell only; a bulk operation moves on.
func skippable(err error) bool {
	var privErr *models.PrivilegeError
	return errors.As(err, &privErr) || errors.Is(err, models.ErrInvalidValue) || errors.Is(err, models.ErrRowNotFound)
}
