package sampler

import (
	"math/rand"
	"strings"
	"testing"
)

func TestWeightedChoiceBoundaries(t *testing.T) {
	cum := []float64{0.3, 0.8, 1.0}
	cases := []struct {
		u    float64
		want int
	}{
		{0, 0},
		{0.29, 0},
		{0.3, 1},
		{0.79, 1},
		{0.8, 2},
		{0.999, 2},
		{1.0, 2},
	}
	for _, tc := range cases {
		if got := WeightedChoice(cum, tc.u); got != tc.want {
			t.Fatalf("WeightedChoice(%v) = %d, want %d", tc.u, got, tc.want)
		}
	}
}

func TestWeightedChoiceSkipsZeroWeight(t *testing.T) {
	cum := []float64{0, 1, 1}
	if got := WeightedChoice(cum, 0); got != 1 {
		t.Fatalf("zero-weight head selected: %d", got)
	}
	if got := WeightedChoice(cum, 0.5); got != 1 {
		t.Fatalf("got %d", got)
	}
}

func TestCategoryDistribution(t *testing.T) {
	c, err := NewCategory([]string{"low", "medium", "high"}, []float64{0.3, 0.5, 0.2})
	if err != nil {
		t.Fatal(err)
	}
	r := rand.New(rand.NewSource(7))
	counts := map[string]int{}
	const n = 20000
	for i := 0; i < n; i++ {
		counts[c.Sample(r).(string)]++
	}
	for value, want := range map[string]float64{"low": 0.3, "medium": 0.5, "high": 0.2} {
		got := float64(counts[value]) / n
		if got < want-0.03 || got > want+0.03 {
			t.Fatalf("%s frequency %.3f, want ~%.2f", value, got, want)
		}
	}
}

func TestCategoryRejectsBadParams(t *testing.T) {
	if _, err := NewCategory(nil, nil); err == nil {
		t.Fatal("expected error for empty values")
	}
	if _, err := NewCategory([]string{"a", "b"}, []float64{1}); err == nil {
		t.Fatal("expected error for weight mismatch")
	}
	if _, err := NewCategory([]string{"a"}, []float64{0}); err == nil {
		t.Fatal("expected error for zero total weight")
	}
	if _, err := NewCategory([]string{"a", "b"}, []float64{1, -1}); err == nil {
		t.Fatal("expected error for negative weight")
	}
}

func TestRegistryBuiltins(t *testing.T) {
	reg := NewRegistry()
	r := rand.New(rand.NewSource(1))

	u, err := reg.New(KindUniform, Params{Low: 18, High: 75})
	if err != nil {
		t.Fatal(err)
	}
	seenLow, seenHigh := false, false
	for i := 0; i < 5000; i++ {
		v := u.Sample(r).(int)
		if v < 18 || v > 75 {
			t.Fatalf("uniform out of range: %d", v)
		}
		seenLow = seenLow || v == 18
		seenHigh = seenHigh || v == 75
	}
	if !seenLow || !seenHigh {
		t.Fatalf("uniform bounds should be inclusive")
	}

	id, err := reg.New(KindUUID, Params{Prefix: "tx-"})
	if err != nil {
		t.Fatal(err)
	}
	a, b := id.Sample(r).(string), id.Sample(r).(string)
	if !strings.HasPrefix(a, "tx-") || a == b {
		t.Fatalf("uuid sampler produced %q and %q", a, b)
	}

	if _, err := reg.New(KindUniform, Params{Low: 6, High: 4}); err == nil {
		t.Fatal("expected error for inverted bounds")
	}
	if _, err := reg.New("gaussian", Params{}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
