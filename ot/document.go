package ot

import "fmt"

// Document is the authoritative server-side state of one editable section:
// its current text, the version assigned to the latest sequenced operation,
// and the full operation history in sequence order.
type Document struct {
	Content string
	Version int
	History []Operation
}

// NewDocument creates a new section document with the given initial content.
func NewDocument(content string) *Document {
	return &Document{Content: content}
}

// Apply applies a sequenced operation to the section, appending it to history.
// Operations that transformed down to a no-op still consume a version: the
// submitter is owed an acknowledgment for it, and every replica's version
// counter must advance in step.
func (d *Document) Apply(op Operation) error {
	result, err := Apply(d.Content, op)
	if err != nil {
		return fmt.Errorf("apply to section v%d: %w", d.Version, err)
	}
	d.Content = result
	d.Version++
	d.History = append(d.History, op)
	return nil
}
