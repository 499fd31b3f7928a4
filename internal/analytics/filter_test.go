package analytics

import (
	"testing"
	"time"

	"finos/internal/core"
)

var now = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

func receipt(id, merchant string, amount float64, daysAgo int, categories ...string) core.Receipt {
	return core.Receipt{
		ID:         id,
		Merchant:   merchant,
		Amount:     amount,
		Currency:   "USD",
		Categories: categories,
		Timestamp:  now.AddDate(0, 0, -daysAgo),
	}
}

func ids(rs []core.Receipt) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func f64(v float64) *float64 { return &v }

type filterCase struct {
	name string
	spec core.FilterSpec
	want []string
}

func filterFixture() ([]core.Receipt, []filterCase) {
	set := []core.Receipt{
		receipt("a", "Blue Bottle Coffee", 5, 1, "Food"),
		receipt("b", "Delta Air", 420, 20, "travel"),
		receipt("c", "Whole Foods", 80, 60, "food", "groceries"),
		receipt("d", "Landlord", 1500, 200),
	}
	set[3].Notes = "June rent"
	set[1].Issuer = "Amex"

	cases := []filterCase{
		{"7 days", core.FilterSpec{Range: core.Range7Days}, []string{"a"}},
		{"30 days", core.FilterSpec{Range: core.Range30Days}, []string{"a", "b"}},
		{"custom is 90", core.FilterSpec{Range: core.RangeCustom}, []string{"a", "b", "c"}},
		{"unknown is 30", core.FilterSpec{Range: "bogus"}, []string{"a", "b"}},
		{"category case-insensitive", core.FilterSpec{Range: core.Range365Days, Category: "FOOD"}, []string{"a", "c"}},
		{"merchant substring", core.FilterSpec{Range: core.Range365Days, Merchant: "foods"}, []string{"c"}},
		{"amount bounds inclusive", core.FilterSpec{Range: core.Range365Days, MinAmount: f64(80), MaxAmount: f64(420)}, []string{"b", "c"}},
		{"search notes", core.FilterSpec{Range: core.Range365Days, Search: "rent"}, []string{"d"}},
		{"search issuer", core.FilterSpec{Range: core.Range365Days, Search: "amex"}, []string{"b"}},
		{"search category", core.FilterSpec{Range: core.Range365Days, Search: "grocer"}, []string{"c"}},
	}
	return set, cases
}

func TestApplyFiltersAt(t *testing.T) {
	set, cases := filterFixture()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ids(ApplyFiltersAt(set, tc.spec, now))
			if len(got) != len(tc.want) {
				t.Fatalf("want %v, got %v", tc.want, got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("want %v, got %v", tc.want, got)
				}
			}
		})
	}
}

func TestApplyFiltersAt_Idempotent(t *testing.T) {
	set, cases := filterFixture()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			once := ids(ApplyFiltersAt(set, tc.spec, now))
			twice := ids(ApplyFiltersAt(ApplyFiltersAt(set, tc.spec, now), tc.spec, now))
			if len(once) != len(twice) {
				t.Fatalf("refiltering changed the set: %v then %v", once, twice)
			}
			for i := range once {
				if once[i] != twice[i] {
					t.Fatalf("refiltering changed the set: %v then %v", once, twice)
				}
			}
		})
	}
}

func TestApplyFiltersAt_CutoffInclusive(t *testing.T) {
	set := []core.Receipt{receipt("edge", "X", 1, 7)}
	if got := ApplyFiltersAt(set, core.FilterSpec{Range: core.Range7Days}, now); len(got) != 1 {
		t.Errorf("receipt exactly at the cutoff should be kept, got %v", ids(got))
	}
}

func TestApplyFiltersAt_DoesNotMutateInput(t *testing.T) {
	set := []core.Receipt{receipt("a", "X", 1, 1), receipt("b", "Y", 2, 100)}
	_ = ApplyFiltersAt(set, core.FilterSpec{Range: core.Range7Days}, now)
	if len(set) != 2 || set[0].ID != "a" || set[1].ID != "b" {
		t.Errorf("input mutated: %v", ids(set))
	}
}
