package client

// defaultPalette is the fixed set of collaborator colors, consumed
// round-robin as users are first sighted.
var defaultPalette = []string{
	"#e74c3c", "#3498db", "#2ecc71", "#f39c12", "#9b59b6",
	"#1abc9c", "#e67e22", "#00bcd4", "#ff5722", "#8bc34a",
}

// ColorRegistry assigns each user a stable color for the lifetime of the
// client. Both the cursor projector and the presence registry draw from one
// shared registry so a user looks the same in every view.
type ColorRegistry struct {
	palette  []string
	next     int
	assigned map[string]string
}

// NewColorRegistry creates a registry over the given palette.
// A nil or empty palette falls back to the default one.
func NewColorRegistry(palette []string) *ColorRegistry {
	if len(palette) == 0 {
		palette = defaultPalette
	}
	return &ColorRegistry{
		palette:  palette,
		assigned: make(map[string]string),
	}
}

// Assign returns the color for userID, allocating the next palette entry
// (wrapping around) on first sighting.
func (r *ColorRegistry) Assign(userID string) string {
	if color, ok := r.assigned[userID]; ok {
		return color
	}
	color := r.palette[r.next%len(r.palette)]
	r.next++
	r.assigned[userID] = color
	return color
}
