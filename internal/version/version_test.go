package version

import "testing"

func TestCaretZeroMajorBoundary(t *testing.T) {
	c, err := ParseConstraint("^0.0.0")
	if err != nil {
		t.Fatalf("ParseConstraint: %v", err)
	}

	match, err := Parse("0.0.0")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !c.Matches(match) {
		t.Errorf("^0.0.0 should match 0.0.0")
	}

	noMatch, err := Parse("0.0.1")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Matches(noMatch) {
		t.Errorf("^0.0.0 should not match 0.0.1 (zero-major caret narrowing)")
	}
}

func TestCaretNonZeroMajor(t *testing.T) {
	c, err := ParseConstraint("^1.2.3")
	if err != nil {
		t.Fatalf("ParseConstraint: %v", err)
	}

	for _, tc := range []struct {
		version string
		want    bool
	}{
		{"1.2.3", true},
		{"1.9.9", true},
		{"2.0.0", false},
		{"1.2.2", false},
	} {
		v, err := Parse(tc.version)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.version, err)
		}
		if got := c.Matches(v); got != tc.want {
			t.Errorf("^1.2.3 matches %s = %v, want %v", tc.version, got, tc.want)
		}
	}
}

func TestTilde(t *testing.T) {
	c, err := ParseConstraint("~1.2.3")
	if err != nil {
		t.Fatalf("ParseConstraint: %v", err)
	}
	for _, tc := range []struct {
		version string
		want    bool
	}{
		{"1.2.3", true},
		{"1.2.9", true},
		{"1.3.0", false},
	} {
		v, err := Parse(tc.version)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.version, err)
		}
		if got := c.Matches(v); got != tc.want {
			t.Errorf("~1.2.3 matches %s = %v, want %v", tc.version, got, tc.want)
		}
	}
}

func TestExactGteLteRangeAny(t *testing.T) {
	exact, _ := ParseConstraint("1.0.0")
	v100, _ := Parse("1.0.0")
	v101, _ := Parse("1.0.1")
	if !exact.Matches(v100) || exact.Matches(v101) {
		t.Errorf("exact constraint mismatched")
	}

	gte, _ := ParseConstraint(">=1.0.0")
	if !gte.Matches(v101) {
		t.Errorf(">=1.0.0 should match 1.0.1")
	}

	lte, _ := ParseConstraint("<=1.0.0")
	if lte.Matches(v101) {
		t.Errorf("<=1.0.0 should not match 1.0.1")
	}

	rng, _ := ParseConstraint("1.0.0..2.0.0")
	v150, _ := Parse("1.5.0")
	v300, _ := Parse("3.0.0")
	if !rng.Matches(v150) || rng.Matches(v300) {
		t.Errorf("range constraint mismatched")
	}

	any, _ := ParseConstraint("*")
	if !any.Matches(v300) {
		t.Errorf("any constraint should match everything")
	}
}

func TestCompare(t *testing.T) {
	a, _ := Parse("1.0.0")
	b, _ := Parse("2.0.0")
	if a.Compare(b) >= 0 {
		t.Errorf("1.0.0 should be less than 2.0.0")
	}
	if b.Compare(a) <= 0 {
		t.Errorf("2.0.0 should be greater than 1.0.0")
	}
}
