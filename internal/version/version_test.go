package version

import "testing"

func TestLessOrdersNumericSegments(t *testing.T) {
	cases := []struct{ lo, hi string }{
		{"1.0", "1.1"},
		{"1.9", "1.10"},
		{"0.9", "1.0"},
		{"1.0-1", "1.0-2"},
		{"1.0-9", "1.0-10"},
		{"1:1.0", "2:1.0"},
		{"1.0", "1:1.0"},
	}
	for _, c := range cases {
		if !Less(c.lo, c.hi) {
			t.Errorf("expected %q < %q", c.lo, c.hi)
		}
		if Less(c.hi, c.lo) {
			t.Errorf("unexpected %q < %q", c.hi, c.lo)
		}
	}
}

func TestTildeSortsBeforeEmpty(t *testing.T) {
	if !Less("1.0~beta1", "1.0") {
		t.Errorf("expected tilde pre-release to sort before the release")
	}
	if !Less("1.0~~", "1.0~") {
		t.Errorf("expected more tildes to sort earlier")
	}
}

func TestEmptyEpochEqualsExplicitZero(t *testing.T) {
	if Encode("1.0-1") != Encode("0:1.0-1") {
		t.Errorf("expected implicit and explicit zero epoch to encode identically")
	}
}

func TestImplicitRevisionIsOne(t *testing.T) {
	if Encode("1.0") != Encode("1.0-1") {
		t.Errorf("expected a version with no revision to equal revision 1")
	}
}

func TestEncodeIsDeterministicAndIdempotent(t *testing.T) {
	a := Encode("1.2.3-4")
	b := Encode("1.2.3-4")
	if a != b {
		t.Fatal("encode is not deterministic")
	}
}

func TestCompareOperators(t *testing.T) {
	if !Compare("1.0", OpLess, "1.1") {
		t.Error("1.0 << 1.1 should hold")
	}
	if !Compare("1.0", OpLessEqual, "1.0") {
		t.Error("1.0 <= 1.0 should hold")
	}
	if !Compare("1.0", OpEqual, "1.0") {
		t.Error("1.0 = 1.0 should hold")
	}
	if !Compare("1.1", OpGreaterEqual, "1.0") {
		t.Error("1.1 >= 1.0 should hold")
	}
	if !Compare("1.1", OpGreater, "1.0") {
		t.Error("1.1 >> 1.0 should hold")
	}
	if !Compare("anything", "", "ignored") {
		t.Error("an empty operator should always match")
	}
}

func TestLetterSortsBeforePunctuation(t *testing.T) {
	// dpkg sorts letters before '+', '-', '.' in the non-digit run.
	if !Less("1.0a", "1.0+") {
		t.Errorf("expected letters to sort before '+'")
	}
}

func TestMonotonicSequence(t *testing.T) {
	seq := []string{"0.9", "1.0~rc1", "1.0~rc2", "1.0-1", "1.0-2", "1.1", "2.0"}
	for i := 1; i < len(seq); i++ {
		if !Less(seq[i-1], seq[i]) {
			t.Errorf("expected %q < %q in monotonic sequence", seq[i-1], seq[i])
		}
	}
}
