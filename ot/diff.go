package ot

// Diff computes an operation that rewrites oldText into newText.
//
// It reduces the change to a single retain/delete/insert/retain span by
// trimming the common prefix, then the common suffix of whatever remains
// after the prefix (so the two regions never overlap). This is an O(n)
// single-change approximation, not a minimal edit script; it is meant for
// small, locally coherent batches of keystrokes.
func Diff(oldText, newText string) Operation {
	o := []rune(oldText)
	n := []rune(newText)

	prefix := 0
	for prefix < len(o) && prefix < len(n) && o[prefix] == n[prefix] {
		prefix++
	}

	suffix := 0
	for suffix < len(o)-prefix && suffix < len(n)-prefix &&
		o[len(o)-1-suffix] == n[len(n)-1-suffix] {
		suffix++
	}

	var op Operation
	op.Retain(prefix)
	op.Delete(len(o) - prefix - suffix)
	op.Insert(string(n[prefix : len(n)-suffix]))
	op.Retain(suffix)
	return op
}
