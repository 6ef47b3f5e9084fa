package client

import (
	"testing"

	"github.com/draftmill/collab/wire"
)

type fakeRosterRenderer struct {
	renders [][]RosterEntry
}

func (r *fakeRosterRenderer) RenderRoster(entries []RosterEntry) {
	r.renders = append(r.renders, entries)
}

func (r *fakeRosterRenderer) last() []RosterEntry {
	if len(r.renders) == 0 {
		return nil
	}
	return r.renders[len(r.renders)-1]
}

func TestPresence_SetRoster(t *testing.T) {
	render := &fakeRosterRenderer{}
	p := NewPresenceRegistry(NewColorRegistry(nil), render)

	p.SetRoster([]wire.Collaborator{
		{UserID: "u2", Name: "Bob", Active: true, SectionID: "body"},
		{UserID: "u1", Name: "Ada", Active: true, SectionID: "intro"},
	})

	entries := render.last()
	if len(entries) != 2 {
		t.Fatalf("rendered %d entries, want 2", len(entries))
	}
	// Sorted by display name.
	if entries[0].DisplayName != "Ada" || entries[1].DisplayName != "Bob" {
		t.Errorf("order = %q, %q", entries[0].DisplayName, entries[1].DisplayName)
	}
	if entries[0].Color == "" || entries[1].Color == "" {
		t.Error("entries missing colors")
	}
	if entries[0].SectionID != "intro" {
		t.Errorf("Ada's section = %q, want intro", entries[0].SectionID)
	}
}

func TestPresence_ColorsSurviveRosterReplace(t *testing.T) {
	p := NewPresenceRegistry(NewColorRegistry(nil), nil)

	p.SetRoster([]wire.Collaborator{{UserID: "u1", Name: "Ada", Active: true}})
	first, _ := p.Entry("u1")

	p.SetRoster([]wire.Collaborator{
		{UserID: "u2", Name: "Bob", Active: true},
		{UserID: "u1", Name: "Ada", Active: true},
	})
	again, _ := p.Entry("u1")
	if again.Color != first.Color {
		t.Errorf("color changed across roster replace: %q then %q", first.Color, again.Color)
	}
}

func TestPresence_AddRemove(t *testing.T) {
	render := &fakeRosterRenderer{}
	p := NewPresenceRegistry(NewColorRegistry(nil), render)

	p.Add("u1", "Ada", "intro")
	entry, ok := p.Entry("u1")
	if !ok || !entry.Active || entry.DisplayName != "Ada" {
		t.Fatalf("entry = %+v, ok = %v", entry, ok)
	}

	// Re-add keeps the existing name when the event carries none.
	p.Add("u1", "", "body")
	entry, _ = p.Entry("u1")
	if entry.DisplayName != "Ada" || entry.SectionID != "body" {
		t.Errorf("entry after re-add = %+v", entry)
	}

	p.Remove("u1")
	if _, ok := p.Entry("u1"); ok {
		t.Error("entry survived Remove")
	}

	renders := len(render.renders)
	p.Remove("ghost")
	if len(render.renders) != renders {
		t.Error("removing an unknown user must not rerender")
	}
}

func TestPresence_UpdateSection(t *testing.T) {
	p := NewPresenceRegistry(NewColorRegistry(nil), nil)
	p.Add("u1", "Ada", "intro")

	p.UpdateSection("u1", "summary")
	entry, _ := p.Entry("u1")
	if entry.SectionID != "summary" {
		t.Errorf("section = %q, want summary", entry.SectionID)
	}

	// Unknown users are ignored, not created.
	p.UpdateSection("ghost", "summary")
	if _, ok := p.Entry("ghost"); ok {
		t.Error("UpdateSection created an entry")
	}
}

func TestPresence_EntriesSortStable(t *testing.T) {
	p := NewPresenceRegistry(NewColorRegistry(nil), nil)
	p.Add("u3", "Ada", "")
	p.Add("u1", "Ada", "")
	p.Add("u2", "Bob", "")

	entries := p.Entries()
	got := make([]string, len(entries))
	for i, e := range entries {
		got[i] = e.UserID
	}
	want := []string{"u1", "u3", "u2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}
