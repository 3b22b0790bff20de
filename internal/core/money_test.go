package core

import "testing"

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in     int64
		symbol string
		out    string
	}{
		{0, "₦", "₦0"},
		{5, "", "5"},
		{500, "₦", "₦500"},
		{5000, "₦", "₦5,000"},
		{999999, "", "999,999"},
		{1234567, "₦", "₦1,234,567"},
		{-250, "₦", "-₦250"},
	}
	for _, tc := range cases {
		if got := FormatAmount(tc.in, tc.symbol); got != tc.out {
			t.Fatalf("FormatAmount(%d) expected %q, got %q", tc.in, tc.out, got)
		}
	}
}

func TestParseWholeAmount(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 1, true},
		{"10 000", 10000, true},
		{"1,500", 1500, true},
		{" 250 ", 250, true},
		{"0", 0, true},
		{"-1", 0, false},
		{"1.5", 0, false},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseWholeAmount(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Minor: 0}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Minor: -1}).Validate(); err == nil {
		t.Fatalf("expected error for negative amount")
	}
}
