package core

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func mustLedger(t *testing.T, values ...int64) *Ledger {
	t.Helper()
	l := &Ledger{}
	for _, v := range values {
		if err := l.AddDenomination(v); err != nil {
			t.Fatalf("add %d: %v", v, err)
		}
	}
	return l
}

func TestLedgerTotalsScenario(t *testing.T) {
	l := mustLedger(t, 1000, 500)
	for _, step := range []struct {
		value int64
		fund  FundName
		count int64
	}{
		{1000, FundOffering, 3},
		{1000, FundTithe, 1},
		{500, FundOffering, 2},
	} {
		if err := l.SetCount(step.value, step.fund, step.count); err != nil {
			t.Fatalf("set %d/%s: %v", step.value, step.fund, err)
		}
	}

	want := map[FundName]int64{FundOffering: 4000, FundTithe: 1000}
	if got := l.TotalsByFund(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if got := l.GrandTotal(); got != 5000 {
		t.Fatalf("expected grand total 5000, got %d", got)
	}
}

func TestLedgerGrandTotalMatchesPairSum(t *testing.T) {
	l := mustLedger(t, 10000, 5000, 200, 50, 1)
	funds := []FundName{FundOffering, FundTithe, FundNeedy, "building"}
	var want int64
	for i, v := range []int64{10000, 5000, 200, 50, 1} {
		for j, f := range funds {
			n := int64((i+1)*(j+2) + i)
			if err := l.SetCount(v, f, n); err != nil {
				t.Fatal(err)
			}
			want += n * v
		}
	}
	if got := l.GrandTotal(); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
	if got := l.TotalsByFund()["building"]; got == 0 {
		t.Fatalf("unknown fund must be summed, got zero")
	}
}

func TestLedgerSetCountIdempotent(t *testing.T) {
	l := mustLedger(t, 100)
	if err := l.SetCount(100, FundProject, 7); err != nil {
		t.Fatal(err)
	}
	first := l.TotalsByFund()
	if err := l.SetCount(100, FundProject, 7); err != nil {
		t.Fatal(err)
	}
	if second := l.TotalsByFund(); !reflect.DeepEqual(first, second) {
		t.Fatalf("expected %v after repeat, got %v", first, second)
	}
}

func TestLedgerSetCountReplaces(t *testing.T) {
	l := mustLedger(t, 50)
	_ = l.SetCount(50, FundOffering, 10)
	_ = l.SetCount(50, FundOffering, 2)
	if got := l.TotalsByFund()[FundOffering]; got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
	_ = l.SetCount(50, FundOffering, 0)
	if _, ok := l.TotalsByFund()[FundOffering]; ok {
		t.Fatalf("zero count should leave no total entry")
	}
}

func TestLedgerErrors(t *testing.T) {
	l := mustLedger(t, 100)
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"duplicate", l.AddDenomination(100), ErrDuplicateValue},
		{"zero value", l.AddDenomination(0), ErrInvalidValue},
		{"negative value", l.AddDenomination(-5), ErrInvalidValue},
		{"huge value", l.AddDenomination(1 << 62), ErrInvalidValue},
		{"negative count", l.SetCount(100, FundTithe, -1), ErrNegativeCount},
		{"unknown value", l.SetCount(7, FundTithe, 1), ErrUnknownDenomination},
		{"empty fund", l.SetCount(100, "  ", 1), ErrEmptyFund},
	}
	for _, tc := range cases {
		if !errors.Is(tc.err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, tc.err)
		}
		if !errors.Is(tc.err, ErrValidation) {
			t.Fatalf("%s: expected a validation error, got %v", tc.name, tc.err)
		}
	}
}

func TestLedgerTotalsStayExact(t *testing.T) {
	l := mustLedger(t, MaxValue)
	if err := l.SetCount(MaxValue, FundOffering, MaxCount+1); err == nil {
		t.Fatalf("count above MaxCount accepted")
	}
	// MaxValue×MaxCount is above MaxTotal, so the total guard must refuse it.
	if err := l.SetCount(MaxValue, FundOffering, MaxCount); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected a validation error for an oversized total, got %v", err)
	}
	if got := l.GrandTotal(); got != 0 {
		t.Fatalf("rejected count changed the ledger: total %d", got)
	}

	n := MaxTotal / MaxValue
	if err := l.SetCount(MaxValue, FundOffering, n); err != nil {
		t.Fatalf("count at the total limit: %v", err)
	}
	if got := l.GrandTotal(); got != n*MaxValue {
		t.Fatalf("grand total %d, want %d", got, n*MaxValue)
	}
	if err := l.AddDenomination(1); err != nil {
		t.Fatal(err)
	}
	if err := l.SetCount(1, FundTithe, 1); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected the extra naira to be refused, got %v", err)
	}
	// Replacing an existing count is measured against the rest of the ledger.
	if err := l.SetCount(MaxValue, FundOffering, n-1); err != nil {
		t.Fatalf("lowering a count: %v", err)
	}
	if err := l.SetCount(1, FundTithe, 1); err != nil {
		t.Fatalf("count within the limit after lowering: %v", err)
	}
}

func TestLedgerJSONRejectsOverflowingLines(t *testing.T) {
	var l Ledger
	err := json.Unmarshal([]byte(`[{"value":4611686018427387904,"counts":{"offering":4}}]`), &l)
	if !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}

func TestLedgerJSON(t *testing.T) {
	l := mustLedger(t, 1000, 5)
	_ = l.SetCount(1000, FundOffering, 3)
	_ = l.SetCount(5, "special", 4)

	data, err := json.Marshal(l)
	if err != nil {
		t.Fatal(err)
	}
	var back Ledger
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(l.Lines(), back.Lines()) {
		t.Fatalf("expected %v, got %v", l.Lines(), back.Lines())
	}

	var bad Ledger
	err = json.Unmarshal([]byte(`[{"value":10},{"value":10}]`), &bad)
	if !errors.Is(err, ErrDuplicateValue) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	err = json.Unmarshal([]byte(`[{"value":10,"counts":{"tithe":-2}}]`), &bad)
	if !errors.Is(err, ErrNegativeCount) {
		t.Fatalf("expected negative count error, got %v", err)
	}
}

func TestLedgerCloneIsIndependent(t *testing.T) {
	l := mustLedger(t, 200)
	_ = l.SetCount(200, FundTithe, 1)
	c := l.Clone()
	_ = c.SetCount(200, FundTithe, 9)
	if l.Count(200, FundTithe) != 1 {
		t.Fatalf("clone mutated the original")
	}
}

func TestCatalogNewLedger(t *testing.T) {
	cat := DefaultCatalog()
	if err := cat.Validate(); err != nil {
		t.Fatalf("default catalog invalid: %v", err)
	}
	l := cat.NewLedger()
	if l.Len() != len(cat.Denominations) {
		t.Fatalf("expected %d lines, got %d", len(cat.Denominations), l.Len())
	}
	if l.GrandTotal() != 0 {
		t.Fatalf("fresh ledger should total zero")
	}
	order := cat.FundOrder(map[FundName]int64{"zeta": 1, FundTithe: 2, "alpha": 3})
	if got := order[len(order)-2:]; got[0] != "alpha" || got[1] != "zeta" {
		t.Fatalf("expected extra funds sorted at the end, got %v", order)
	}
}
