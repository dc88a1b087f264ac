package branches

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
branches:
  - id: riyadh-olaya
    name: Nooks Olaya
    city: Riyadh
    location: {lat: 24.6958, lng: 46.6855}
    posBranchId: "9a1c"
    aliases: ["Olaya"]
  - id: jeddah-tahlia
    name: Nooks Tahlia
    city: جدة
  - id: khobar-corniche
    name: Nooks Corniche
    city: Al Khobar
`

func TestParse(t *testing.T) {
	registry, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	t.Run("looks up by id", func(t *testing.T) {
		branch, err := registry.Lookup("riyadh-olaya")
		if err != nil {
			t.Fatalf("Lookup() failed: %v", err)
		}
		if branch.POSBranchID != "9a1c" {
			t.Errorf("expected pos branch id 9a1c, got %q", branch.POSBranchID)
		}
		if branch.Location == nil || branch.Location.Lat != 24.6958 {
			t.Errorf("unexpected location %+v", branch.Location)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		if _, err := registry.Lookup("nope"); !errors.Is(err, ErrUnknownBranch) {
			t.Errorf("expected ErrUnknownBranch, got %v", err)
		}
	})

	t.Run("falls back to branch name", func(t *testing.T) {
		branch, err := registry.Lookup("Nooks Corniche")
		if err != nil {
			t.Fatalf("Lookup() by name failed: %v", err)
		}
		if branch.ID != "khobar-corniche" {
			t.Errorf("expected khobar-corniche, got %s", branch.ID)
		}
		if _, err := registry.Lookup("Nooks"); !errors.Is(err, ErrUnknownBranch) {
			t.Errorf("expected ambiguous name to be unknown, got %v", err)
		}
	})

	t.Run("origin falls back to city centre", func(t *testing.T) {
		branch, _ := registry.Lookup("jeddah-tahlia")
		origin, ok := branch.Origin()
		if !ok {
			t.Fatal("expected origin from city centre")
		}
		if origin != cityCenters["jeddah"] {
			t.Errorf("expected jeddah centre, got %+v", origin)
		}
	})

	t.Run("lists all branches sorted", func(t *testing.T) {
		all := registry.All()
		if len(all) != 3 || all[0].ID != "jeddah-tahlia" {
			t.Errorf("unexpected order %+v", all)
		}
	})
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry([]Branch{{ID: "a"}, {ID: "a"}})
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
	if _, err := NewRegistry([]Branch{{ID: " "}}); err == nil {
		t.Fatal("expected empty id error")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "branches.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	registry, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(registry.All()) != 3 {
		t.Errorf("expected 3 branches, got %d", len(registry.All()))
	}
}

func TestFindByName(t *testing.T) {
	registry, _ := Parse([]byte(sampleYAML))

	tests := []struct {
		name   string
		query  string
		wantID string
		found  bool
	}{
		{name: "exact name", query: "Nooks Olaya", wantID: "riyadh-olaya", found: true},
		{name: "alias", query: "olaya", wantID: "riyadh-olaya", found: true},
		{name: "case and punctuation", query: "nooks-tahlia", wantID: "jeddah-tahlia", found: true},
		{name: "ambiguous", query: "Nooks"},
		{name: "empty", query: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			branch, ok := registry.FindByName(tt.query)
			if ok != tt.found {
				t.Fatalf("FindByName(%q) found = %v, want %v", tt.query, ok, tt.found)
			}
			if ok && branch.ID != tt.wantID {
				t.Errorf("expected %s, got %s", tt.wantID, branch.ID)
			}
		})
	}
}

func TestNormalizeCity(t *testing.T) {
	tests := map[string]string{
		"Riyadh":      "riyadh",
		"  الرياض ":   "riyadh",
		"Al-Khobar":   "khobar",
		"JEDDAH":      "jeddah",
		"جده":         "jeddah",
		"Mecca":       "makkah",
		"Springfield": "springfield",
		"":            "",
	}

	for input, want := range tests {
		if got := NormalizeCity(input); got != want {
			t.Errorf("NormalizeCity(%q) = %q, want %q", input, got, want)
		}
	}

	if !KnownCity("Dammam") || KnownCity("Springfield") {
		t.Error("KnownCity misclassified a city")
	}
}
