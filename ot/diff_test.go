package ot

import "testing"

func TestDiff_ApplyIdentity(t *testing.T) {
	tests := []struct {
		name     string
		old, new string
	}{
		{"append", "hello", "hello world"},
		{"prepend", "world", "hello world"},
		{"insert in middle", "Hello world", "Hello there world"},
		{"delete at start", "hello", "llo"},
		{"delete at end", "hello", "hel"},
		{"delete in middle", "hello world", "heword"},
		{"replace in middle", "the quick fox", "the slow fox"},
		{"full rewrite", "abc", "xyz"},
		{"both empty", "", ""},
		{"from empty", "", "abc"},
		{"to empty", "abc", ""},
		{"identical", "same", "same"},
		{"repeated characters", "aaaa", "aaa"},
		{"repeated characters grow", "aaa", "aaaa"},
		{"prefix equals suffix region", "abab", "ab"},
		{"multi-byte runes", "héllo wörld", "héllo thère wörld"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := Diff(tt.old, tt.new)
			got, err := Apply(tt.old, op)
			if err != nil {
				t.Fatalf("Apply error: %v (op=%+v)", err, op.Ops)
			}
			if got != tt.new {
				t.Errorf("Apply(Diff) = %q, want %q (op=%+v)", got, tt.new, op.Ops)
			}
		})
	}
}

func TestDiff_NoopForIdenticalText(t *testing.T) {
	op := Diff("unchanged", "unchanged")
	if !op.IsNoop() {
		t.Errorf("expected noop, got %+v", op.Ops)
	}
}

func TestDiff_SingleChangeShape(t *testing.T) {
	// One coherent change produces at most retain/delete/insert/retain.
	op := Diff("Hello world", "Hello there world")
	want := Operation{[]Component{{Retain: 6}, {Insert: "there "}, {Retain: 5}}}
	if !op.Equal(want) {
		t.Errorf("Diff = %+v, want %+v", op.Ops, want.Ops)
	}
}

func TestDiff_PrefixAndSuffixNeverOverlap(t *testing.T) {
	// With "aaaa" → "aaa" a naive suffix scan would double-count the
	// shared "aaa" region; the operation must still be valid.
	op := Diff("aaaa", "aaa")
	if op.BaseLen() != 4 {
		t.Errorf("BaseLen = %d, want 4 (op=%+v)", op.BaseLen(), op.Ops)
	}
	if op.TargetLen() != 3 {
		t.Errorf("TargetLen = %d, want 3 (op=%+v)", op.TargetLen(), op.Ops)
	}
}
