package types

import "testing"

func TestParseAmountRoundTrip(t *testing.T) {
	cases := []string{"0", "5", "5.25", "0.00000001", "21000000"}
	for _, c := range cases {
		a, err := ParseAmount(c)
		if err != nil {
			t.Fatalf("ParseAmount(%q): %v", c, err)
		}
		if got := a.String(); got != c {
			t.Errorf("ParseAmount(%q).String() = %q, want %q", c, got, c)
		}
	}
}

func TestParseAmountRejectsNegativeAndOverflowDecimals(t *testing.T) {
	if _, err := ParseAmount("-1"); err == nil {
		t.Error("expected error for negative amount")
	}
	if _, err := ParseAmount("1.123456789"); err == nil {
		t.Error("expected error for too many decimal places")
	}
	if _, err := ParseAmount("not-a-number"); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestAmountAddSub(t *testing.T) {
	a := MustParseAmount("10")
	b := MustParseAmount("3.5")
	if got := a.Add(b).String(); got != "13.5" {
		t.Errorf("Add = %s, want 13.5", got)
	}
	if got := a.Sub(b).String(); got != "6.5" {
		t.Errorf("Sub = %s, want 6.5", got)
	}
}

func TestAmountSubUnderflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on underflow")
		}
	}()
	MustParseAmount("1").Sub(MustParseAmount("2"))
}

func TestAmountMulRat(t *testing.T) {
	total := MustParseAmount("100")
	// 25% commission split.
	share := total.MulRat(25, 100)
	if got := share.String(); got != "25" {
		t.Errorf("MulRat(25,100) = %s, want 25", got)
	}
}

func TestAmountJSONRoundTrip(t *testing.T) {
	a := MustParseAmount("12.5")
	data, err := a.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if string(data) != `"12.5"` {
		t.Errorf("MarshalJSON = %s, want \"12.5\"", data)
	}
	var b Amount
	if err := b.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if b.Cmp(a) != 0 {
		t.Errorf("round-tripped amount %s != original %s", b.String(), a.String())
	}
}
