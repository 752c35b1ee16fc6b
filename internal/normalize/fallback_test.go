package normalize

import "testing"

func TestFallbackExpand(t *testing.T) {
	f := NewFallback()

	cases := []struct {
		in   string
		want string
	}{
		{"Bd. Victor Bordier", "boulevard victor bordier"},
		{"Dr. Martin", "docteur martin"},
		{"12 Rue de la Paix", "12 rue de la paix"},
		{"Cité Foch", "cite foch"},
		{"", ""},
	}

	for _, tc := range cases {
		got := f.Expand(tc.in)
		if tc.want == "" {
			if got != nil {
				t.Errorf("Expand(%q) = %v, want nil", tc.in, got)
			}
			continue
		}
		if len(got) != 1 || got[0] != tc.want {
			t.Errorf("Expand(%q) = %v, want [%q]", tc.in, got, tc.want)
		}
	}
}

func TestFallbackExpandAbbreviationTable(t *testing.T) {
	f := NewFallback()

	// Every abbreviation in the table expands on its own, proving the
	// table drives Expand rather than Expand happening to pass the
	// input through unchanged (scenario S2, spec §8).
	abbrevs := map[string]string{
		"bd":   "boulevard",
		"bld":  "boulevard",
		"av":   "avenue",
		"ave":  "avenue",
		"dr":   "docteur",
		"st":   "saint",
		"ste":  "sainte",
		"fg":   "faubourg",
		"pl":   "place",
		"sq":   "square",
		"all":  "allee",
		"rte":  "route",
		"chem": "chemin",
		"imp":  "impasse",
		"gal":  "general",
		"cdt":  "commandant",
		"mal":  "marechal",
		"pte":  "porte",
		"q":    "quai",
	}
	for abbrev, full := range abbrevs {
		got := f.Expand(abbrev)
		if len(got) != 1 || got[0] != full {
			t.Errorf("Expand(%q) = %v, want [%q]", abbrev, got, full)
		}
	}
}

func TestFallbackNearDupeHashesMultiToken(t *testing.T) {
	f := NewFallback()

	fields := []Field{
		{Label: LabelRoad, Value: "Bd Victor Bordier"},
		{Label: LabelHouseNumber, Value: "12B"},
	}

	want := []string{
		"bd|12b",
		"bdv|12b",
		"dvi|12b",
		"vic|12b",
		"ict|12b",
		"cto|12b",
		"tor|12b",
	}

	got := f.NearDupeHashes(fields)
	if len(got) != len(want) {
		t.Fatalf("NearDupeHashes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("NearDupeHashes[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFallbackNearDupeHashesSingleToken(t *testing.T) {
	f := NewFallback()

	fields := []Field{
		{Label: LabelRoad, Value: "Rivoli"},
		{Label: LabelHouseNumber, Value: "5"},
	}

	want := []string{
		"rivoli|5",
		"riv|5",
		"ivo|5",
		"vol|5",
		"oli|5",
	}

	got := f.NearDupeHashes(fields)
	if len(got) != len(want) {
		t.Fatalf("NearDupeHashes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("NearDupeHashes[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFallbackNearDupeHashesNumberCaseInsensitive(t *testing.T) {
	f := NewFallback()

	lower := f.NearDupeHashes([]Field{
		{Label: LabelRoad, Value: "Rivoli"},
		{Label: LabelHouseNumber, Value: "12b"},
	})
	upper := f.NearDupeHashes([]Field{
		{Label: LabelRoad, Value: "Rivoli"},
		{Label: LabelHouseNumber, Value: "12B"},
	})

	if len(lower) != len(upper) {
		t.Fatalf("case mismatch in key count: %v vs %v", lower, upper)
	}
	for i := range lower {
		if lower[i] != upper[i] {
			t.Errorf("key %d differs by number case: %q vs %q", i, lower[i], upper[i])
		}
	}
}

func TestFallbackNearDupeHashesEmptyStreet(t *testing.T) {
	f := NewFallback()

	got := f.NearDupeHashes([]Field{
		{Label: LabelRoad, Value: ""},
		{Label: LabelHouseNumber, Value: "5"},
	})
	if got != nil {
		t.Errorf("NearDupeHashes with empty street = %v, want nil", got)
	}
}
