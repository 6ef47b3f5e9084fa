package client

import (
	"sort"

	"github.com/draftmill/collab/wire"
)

// RosterEntry is one collaborator in the roster view.
type RosterEntry struct {
	UserID      string
	DisplayName string
	Active      bool
	Color       string
	SectionID   string // section the user is currently editing, if known
}

// RosterRenderer re-renders the collaborator list after every mutation.
type RosterRenderer interface {
	RenderRoster(entries []RosterEntry)
}

// PresenceRegistry owns the roster of active collaborators. It supports a
// wholesale replace (reconnect, periodic full sync) and incremental
// add/remove/update events. Colors come from the shared registry, so the
// roster and the remote cursors agree on a user's color.
type PresenceRegistry struct {
	colors *ColorRegistry
	render RosterRenderer
	roster map[string]*RosterEntry
}

func NewPresenceRegistry(colors *ColorRegistry, render RosterRenderer) *PresenceRegistry {
	return &PresenceRegistry{
		colors: colors,
		render: render,
		roster: make(map[string]*RosterEntry),
	}
}

// SetRoster replaces the roster wholesale from a full server push.
// Color assignments survive the replace: they are keyed by userId in the
// shared registry, not stored per push.
func (r *PresenceRegistry) SetRoster(collaborators []wire.Collaborator) {
	r.roster = make(map[string]*RosterEntry, len(collaborators))
	for _, c := range collaborators {
		r.roster[c.UserID] = &RosterEntry{
			UserID:      c.UserID,
			DisplayName: c.Name,
			Active:      c.Active,
			Color:       r.colors.Assign(c.UserID),
			SectionID:   c.SectionID,
		}
	}
	r.rerender()
}

// Add inserts (or reactivates) a collaborator.
func (r *PresenceRegistry) Add(userID, displayName, sectionID string) {
	entry, ok := r.roster[userID]
	if !ok {
		entry = &RosterEntry{
			UserID: userID,
			Color:  r.colors.Assign(userID),
		}
		r.roster[userID] = entry
	}
	if displayName != "" {
		entry.DisplayName = displayName
	}
	if sectionID != "" {
		entry.SectionID = sectionID
	}
	entry.Active = true
	r.rerender()
}

// Remove drops a collaborator from the roster.
func (r *PresenceRegistry) Remove(userID string) {
	if _, ok := r.roster[userID]; !ok {
		return
	}
	delete(r.roster, userID)
	r.rerender()
}

// UpdateSection records which section a collaborator is editing.
func (r *PresenceRegistry) UpdateSection(userID, sectionID string) {
	entry, ok := r.roster[userID]
	if !ok {
		return
	}
	entry.SectionID = sectionID
	r.rerender()
}

// Entry returns the roster entry for a user, if present.
func (r *PresenceRegistry) Entry(userID string) (RosterEntry, bool) {
	entry, ok := r.roster[userID]
	if !ok {
		return RosterEntry{}, false
	}
	return *entry, true
}

// Entries returns the roster sorted by display name, then user ID,
// for a stable render order.
func (r *PresenceRegistry) Entries() []RosterEntry {
	out := make([]RosterEntry, 0, len(r.roster))
	for _, entry := range r.roster {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func (r *PresenceRegistry) rerender() {
	if r.render != nil {
		r.render.RenderRoster(r.Entries())
	}
}
