package client

// Point is a position on the editing surface, in surface coordinates.
type Point struct {
	X, Y int
}

// LayoutMeasurer measures the text-flow layout of an editing surface:
// where does the caret sit after offset characters of the section's text?
// The hosting editor supplies an implementation that mirrors the surface's
// font, box model and wrapping, so projection logic stays testable without
// a rendering environment.
type LayoutMeasurer interface {
	CaretPosition(sectionID string, offset int) (Point, error)
}

// CursorRenderer draws and removes remote carets. An implementation owns the
// caret mark and its name label together: HideCursor removes both.
type CursorRenderer interface {
	ShowCursor(cursor RemoteCursor, at Point)
	HideCursor(userID string)
}

// RemoteCursor is another user's caret within a section.
type RemoteCursor struct {
	UserID      string
	DisplayName string
	SectionID   string
	Offset      int // character offset into the section's text
	Color       string
}

// CursorProjector maps remote users' caret offsets to on-screen positions
// and keeps one rendered caret per user. It owns the cursor records; colors
// come from the shared registry on first sighting.
type CursorProjector struct {
	colors  *ColorRegistry
	measure LayoutMeasurer
	render  CursorRenderer
	cursors map[string]*RemoteCursor
}

func NewCursorProjector(colors *ColorRegistry, measure LayoutMeasurer, render CursorRenderer) *CursorProjector {
	return &CursorProjector{
		colors:  colors,
		measure: measure,
		render:  render,
		cursors: make(map[string]*RemoteCursor),
	}
}

// Move records a caret position for a user, creating the cursor on first
// sighting, and re-renders it at the measured surface position.
func (p *CursorProjector) Move(sectionID, userID, displayName string, offset int) error {
	cur, ok := p.cursors[userID]
	if !ok {
		cur = &RemoteCursor{
			UserID: userID,
			Color:  p.colors.Assign(userID),
		}
		p.cursors[userID] = cur
	}
	if displayName != "" {
		cur.DisplayName = displayName
	}
	cur.SectionID = sectionID
	cur.Offset = offset

	at, err := p.measure.CaretPosition(sectionID, offset)
	if err != nil {
		return err
	}
	p.render.ShowCursor(*cur, at)
	return nil
}

// Remove drops a user's cursor, e.g. on leave or disconnect.
func (p *CursorProjector) Remove(userID string) {
	if _, ok := p.cursors[userID]; !ok {
		return
	}
	delete(p.cursors, userID)
	p.render.HideCursor(userID)
}

// Cursor returns the current record for a user, if any.
func (p *CursorProjector) Cursor(userID string) (RemoteCursor, bool) {
	cur, ok := p.cursors[userID]
	if !ok {
		return RemoteCursor{}, false
	}
	return *cur, true
}

// ClearSection removes the rendered cursors within one section, leaving other
// sections' carets in place. Used when a single section is resynced.
func (p *CursorProjector) ClearSection(sectionID string) {
	for id, cur := range p.cursors {
		if cur.SectionID != sectionID {
			continue
		}
		p.render.HideCursor(id)
		delete(p.cursors, id)
	}
}

// Clear removes every rendered cursor, e.g. before a full resync.
func (p *CursorProjector) Clear() {
	for id := range p.cursors {
		p.render.HideCursor(id)
		delete(p.cursors, id)
	}
}
