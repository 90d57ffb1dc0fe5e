package refcat

import (
	"errors"
	"testing"
)

func TestNormalize_Scenario(t *testing.T) {
	got := Normalize("9872023 VH5797S 0001 WI")
	if got != "9872023VH5797S0001WI" {
		t.Fatalf("Normalize got %q", got)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"  ",
		"9872023 Vh5797s 0001 wi",
		"\t35012A00100001\n",
		"３８０１２Ａ００１",
		"ñandú 12",
		"already9872023VH5797S0001WI",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Fatalf("not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}

func TestNormalize_FoldsFullWidth(t *testing.T) {
	if got := Normalize("３８ａｂ"); got != "38AB" {
		t.Fatalf("Normalize full-width got %q want 38AB", got)
	}
}

func TestParse_Empty(t *testing.T) {
	if _, err := Parse(" \t\n"); !errors.Is(err, ErrEmptyReference) {
		t.Fatalf("expected ErrEmptyReference, got %v", err)
	}
}

func TestProjectedCRS(t *testing.T) {
	cases := map[string]string{
		"35012A00100001": CanaryCRS,
		"38012A00100001": CanaryCRS,
		"9872023VH5797S": MainlandCRS,
		"28079A00100001": MainlandCRS,
		"3":              MainlandCRS,
	}
	for in, want := range cases {
		if got := Reference(in).ProjectedCRS(); got != want {
			t.Fatalf("ProjectedCRS(%q) got %q want %q", in, got, want)
		}
	}
	if z := Reference("38012A").UTMZone(); z != 28 {
		t.Fatalf("UTMZone canary got %d", z)
	}
	if z := Reference("28012A").UTMZone(); z != 30 {
		t.Fatalf("UTMZone mainland got %d", z)
	}
}

func TestEPSGCode(t *testing.T) {
	if n, ok := EPSGCode("EPSG:25830"); !ok || n != 25830 {
		t.Fatalf("EPSGCode got %d %v", n, ok)
	}
	if _, ok := EPSGCode("nonsense"); ok {
		t.Fatalf("expected failure")
	}
}

func TestSplitList(t *testing.T) {
	in := "9872023VH5797S0001WI, 35012A00100001\n\nabc,28079A00100001 \t short"
	got := SplitList(in)
	want := []string{"9872023VH5797S0001WI", "35012A00100001", "28079A00100001"}
	if len(got) != len(want) {
		t.Fatalf("SplitList got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SplitList[%d] got %q want %q", i, got[i], want[i])
		}
	}
	if SplitList("  \n ,") != nil {
		t.Fatalf("expected nil for blank input")
	}
}
