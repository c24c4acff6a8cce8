package usecase

import (
	"strings"
	"testing"
)

func TestExpandKeepsOriginalFirst(t *testing.T) {
	e := NewExpander(nil, 0)
	for _, q := range []string{"", "What feeds panel LP-3?", "random words", "AIR HANDLER on roof"} {
		got := e.Expand(q)
		if len(got) == 0 || got[0] != q {
			t.Fatalf("Expand(%q) first element = %v", q, got)
		}
	}
}

func TestExpandBoundsAndDedupes(t *testing.T) {
	e := NewExpander(nil, 0)
	got := e.Expand("Which pump serves the boiler near equipment EF-12 and EF-13?")
	if len(got) > DefaultExpansionCap {
		t.Fatalf("expected at most %d variants, got %d", DefaultExpansionCap, len(got))
	}
	seen := map[string]bool{}
	for _, v := range got {
		key := strings.ToLower(v)
		if seen[key] {
			t.Fatalf("duplicate variant %q in %v", v, got)
		}
		seen[key] = true
	}
}

func TestExpandSubstitutesSynonymsInOrder(t *testing.T) {
	e := NewExpander(nil, 10)
	got := e.Expand("Where is the air handler?")
	want := []string{
		"Where is the air handler?",
		"Where is the air handling unit?",
		"Where is the AHU?",
		"Where is the air handling system?",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d variants, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("variant %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExpandMatchesKeyCaseInsensitively(t *testing.T) {
	e := NewExpander(nil, 10)
	got := e.Expand("Show the MCC schedule")
	if len(got) < 2 || got[1] != "Show the motor control center schedule" {
		t.Fatalf("expected case-insensitive substitution, got %v", got)
	}
}

func TestExpandTagVariant(t *testing.T) {
	e := NewExpander([]SynonymGroup{{Key: "zzz", Synonyms: []string{"yyy"}}}, 5)
	got := e.Expand("Where is AB-123?")
	if len(got) != 2 {
		t.Fatalf("expected original plus tag variant, got %v", got)
	}
	if got[1] != "Where is AB 123?" {
		t.Fatalf("unexpected tag variant %q", got[1])
	}
}

func TestExpandCapsSynonymFanOutPerKey(t *testing.T) {
	e := NewExpander([]SynonymGroup{{Key: "pump", Synonyms: []string{"pump", "a", "b", "c", "d"}}}, 10)
	got := e.Expand("pump")
	if len(got) != 4 {
		t.Fatalf("expected original plus 3 substitutions, got %v", got)
	}
}

func TestExpandReplacesWholeWordsOnly(t *testing.T) {
	e := NewExpander([]SynonymGroup{
		{Key: "pump", Synonyms: []string{"HWP"}},
		{Key: "equipment", Synonyms: []string{"unit"}},
	}, 10)

	got := e.Expand("List the pumps and the equipmentroom")
	want := []string{
		"List the pumps and the equipmentroom",
		"List the HWPs and the equipmentroom",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d variants, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("variant %d = %q, want %q", i, got[i], want[i])
		}
	}
}
