package matching

import "testing"

func TestScorersBounds(t *testing.T) {
	if got := ratioScore("", "anything"); got != 0 {
		t.Errorf("ratioScore with empty side = %v, want 0", got)
	}
	if got := tokenSetScore("amlodipine", ""); got != 0 {
		t.Errorf("tokenSetScore with empty side = %v, want 0", got)
	}
	if got := ratioScore("AMLODIPINE", "amlodipine"); got != 100 {
		t.Errorf("ratioScore case-insensitive identity = %v, want 100", got)
	}
	if got := tokenSetScore("AMLODIPINE 5MG", "5MG AMLODIPINE"); got != 100 {
		t.Errorf("tokenSetScore word order = %v, want 100", got)
	}
	if got := partialRatioScore("DOLIPRANE", "DOLIPRANE 1000MG GELULE"); got != 100 {
		t.Errorf("partialRatioScore substring = %v, want 100", got)
	}
}

func TestComponentScoreIdentity(t *testing.T) {
	c := Components{Molecule: "AMLODIPINE", Dosage: "5MG", Form: "comprime"}
	if got := componentScore(c, c); got != 100 {
		t.Fatalf("identical components = %v, want 100", got)
	}
}

func TestComponentScoreDosageEquality(t *testing.T) {
	// dosage comparison ignores case and spaces
	a := Components{Molecule: "RAMIPRIL", Dosage: "5 mg"}
	b := Components{Molecule: "RAMIPRIL", Dosage: "5MG"}
	if got := componentScore(a, b); got != 100 {
		t.Fatalf("equivalent dosages = %v, want 100", got)
	}
}

func TestComponentScoreRedistributesWeights(t *testing.T) {
	// only the molecule is present on both sides: its weight carries
	// the whole score instead of being diluted by absent components
	a := Components{Molecule: "PARACETAMOL"}
	b := Components{Molecule: "PARACETAMOL", Dosage: "500MG", Form: "comprime"}
	if got := componentScore(a, b); got != 100 {
		t.Fatalf("molecule-only comparison = %v, want 100", got)
	}
}

func TestComponentScoreNoOverlap(t *testing.T) {
	a := Components{Molecule: "AMLODIPINE"}
	b := Components{Dosage: "5MG"}
	if got := componentScore(a, b); got != 0 {
		t.Fatalf("no shared components = %v, want 0", got)
	}
}

func TestComponentScoreDifferentMolecules(t *testing.T) {
	a := Components{Molecule: "AMLODIPINE", Dosage: "5MG"}
	b := Components{Molecule: "METFORMINE", Dosage: "5MG"}
	got := componentScore(a, b)
	if got >= 85 {
		t.Fatalf("unrelated molecules score = %v, want well below identity", got)
	}
}
