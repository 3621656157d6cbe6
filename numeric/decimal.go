package numeric

import "github.com/shopspring/decimal"

// ParseDecimal normalizes the given fragment and parses it into an
// arbitrary-precision decimal. The boolean reports whether the fragment
// held a parseable number.
func ParseDecimal(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(Normalize(s))
	if err != nil {
		return decimal.Decimal{}, false
	}

	return d, true
}

// ToDecimal is the tolerant form of ParseDecimal: malformed input
// degrades to the zero sentinel instead of an error. Callers that need
// to distinguish "zero" from "unparseable" should use ParseDecimal.
func ToDecimal(s string) decimal.Decimal {
	d, ok := ParseDecimal(s)
	if !ok {
		return decimal.Zero
	}

	return d
}

// ExtractDecimal runs the best-candidate extraction over a free-text
// block and converts the winning token. Returns false when no numeric
// candidate exists or the candidate fails to parse.
func ExtractDecimal(text string) (decimal.Decimal, bool) {
	candidate, ok := BestCandidate(text)
	if !ok {
		return decimal.Decimal{}, false
	}

	return ParseDecimal(candidate)
}
