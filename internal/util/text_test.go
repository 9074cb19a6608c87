package util

import "testing"

func TestTruncateCountsRunes(t *testing.T) {
	if got := Truncate("Контроль доступа", 8); got != "Контроль" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("short", 50); got != "short" {
		t.Fatalf("got %q", got)
	}
}

func TestDiceCoefficient(t *testing.T) {
	if got := DiceCoefficient("CONTOSO", "CONTOSO"); got != 1 {
		t.Fatalf("identical got %v", got)
	}
	if got := DiceCoefficient("", "X"); got != 0 {
		t.Fatalf("empty got %v", got)
	}
	a := DiceCoefficient("AUDIT 0042", "AUDIT 0043")
	b := DiceCoefficient("AUDIT 0042", "FABRIKAM")
	if a <= b {
		t.Fatalf("expected closer strings to score higher: %v <= %v", a, b)
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Evidence for audit-2026-0042: Contoso, Ltd.")
	want := []string{"EVIDENCE", "FOR", "AUDIT-2026-0042", "CONTOSO", "LTD."}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d got %q want %q", i, got[i], want[i])
		}
	}
}
