package core

import "strings"

var (
	ones = []string{
		"", "One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine",
		"Ten", "Eleven", "Twelve", "Thirteen", "Fourteen", "Fifteen", "Sixteen",
		"Seventeen", "Eighteen", "Nineteen",
	}
	tens = []string{
		"", "", "Twenty", "Thirty", "Forty", "Fifty", "Sixty", "Seventy", "Eighty", "Ninety",
	}
	scales = []string{"", "Thousand", "Million", "Billion", "Trillion", "Quadrillion", "Quintillion"}
)

// AmountInWords spells out an integer using short-scale English names.
// A hundreds group joins its 1–99 remainder with "and".
//
// Examples:
//
//	AmountInWords(0)    -> "Zero"
//	AmountInWords(101)  -> "One Hundred and One"
//	AmountInWords(1500) -> "One Thousand Five Hundred"
//	AmountInWords(-42)  -> "Minus Forty-Two"
func AmountInWords(n int64) string {
	if n == 0 {
		return "Zero"
	}
	// Work on the unsigned magnitude so math.MinInt64 has a positive form.
	var u uint64
	prefix := ""
	if n < 0 {
		prefix = "Minus "
		u = uint64(-(n + 1)) + 1
	} else {
		u = uint64(n)
	}

	var groups []string
	for scale := 0; u > 0; scale++ {
		g := int(u % 1000)
		u /= 1000
		if g == 0 {
			continue
		}
		words := groupWords(g)
		if scales[scale] != "" {
			words += " " + scales[scale]
		}
		groups = append(groups, words)
	}
	for i, j := 0, len(groups)-1; i < j; i, j = i+1, j-1 {
		groups[i], groups[j] = groups[j], groups[i]
	}
	return prefix + strings.Join(groups, " ")
}

// groupWords spells 1..999.
func groupWords(n int) string {
	hundreds, rest := n/100, n%100
	var parts []string
	if hundreds > 0 {
		parts = append(parts, ones[hundreds]+" Hundred")
	}
	if rest > 0 {
		if hundreds > 0 {
			parts = append(parts, "and")
		}
		parts = append(parts, belowHundred(rest))
	}
	return strings.Join(parts, " ")
}

func belowHundred(n int) string {
	if n < 20 {
		return ones[n]
	}
	if n%10 == 0 {
		return tens[n/10]
	}
	return tens[n/10] + "-" + ones[n%10]
}
