package domain

import "testing"

func TestEntityIDIsStable(t *testing.T) {
	if got := EntityID("Component", " AHU-1 "); got != "component:ahu-1" {
		t.Fatalf("unexpected id %q", got)
	}
	if EntityID("Drawing", "M-201") != EntityID("drawing", "m-201") {
		t.Fatalf("expected case-insensitive ids")
	}
}

func TestSanitizeLabel(t *testing.T) {
	cases := map[string]string{
		"Component":    "Component",
		"floor plan!":  "floor_plan",
		"3D":           "Entity3D",
		"":             "Entity",
		"Équipement":   "quipement",
		"MATCH (n) --": "MATCH_n_",
	}
	for in, want := range cases {
		if got := SanitizeLabel(in); got != want {
			t.Fatalf("SanitizeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeRelationshipType(t *testing.T) {
	if got := SanitizeRelationshipType("located in"); got != "LOCATED_IN" {
		t.Fatalf("unexpected type %q", got)
	}
	if got := SanitizeRelationshipType("  "); got != "RELATED_TO" {
		t.Fatalf("expected fallback type, got %q", got)
	}
}

func TestDetectMediaType(t *testing.T) {
	cases := []struct {
		filename, declared, want string
		ok                       bool
	}{
		{"plan.pdf", "application/pdf", MediaTypePDF, true},
		{"plan.PDF", "application/octet-stream", MediaTypePDF, true},
		{"photo.jpg", "image/jpg", MediaTypeJPEG, true},
		{"schedule.xlsx", "", MediaTypeXLSX, true},
		{"scan.png", "image/png; charset=binary", MediaTypePNG, true},
		{"notes.txt", "text/plain", "text/plain", false},
	}
	for _, tc := range cases {
		got, ok := DetectMediaType(tc.filename, tc.declared)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("DetectMediaType(%q, %q) = %q, %v", tc.filename, tc.declared, got, ok)
		}
	}
}
