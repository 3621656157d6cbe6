package numeric

import "regexp"

// candidateRegex matches numeric tokens: a digit run, optionally split
// into thousands-style groups, optionally followed by a decimal fraction.
// The fraction-carrying alternative comes first so a match like
// "41,2584" is not cut short at the first 3-digit group.
var candidateRegex = regexp.MustCompile(
	`\d+(?:[.,\x{00a0}\x{202f}\x{2009} ]\d{3})*[.,]\d+` +
		`|\d+(?:[.,\x{00a0}\x{202f}\x{2009} ]\d{3})*`,
)

// BestCandidate scans a block of free text and returns the substring
// most likely to be the target price. Candidates are scored by digit
// count, with total match length as tiebreaker, descending: rank
// numbers, IDs and other short decoys lose to the actual amount.
// Returns false when the text contains no numeric token at all.
func BestCandidate(text string) (string, bool) {
	matches := candidateRegex.FindAllString(text, -1)
	if len(matches) == 0 {
		return "", false
	}

	var (
		best      string
		bestScore = -1
		bestLen   = -1
	)

	for _, m := range matches {
		score := digitCount(m)

		if score > bestScore || (score == bestScore && len(m) > bestLen) {
			best = m
			bestScore = score
			bestLen = len(m)
		}
	}

	return best, true
}

// digitCount counts ASCII digit characters in s
func digitCount(s string) int {
	count := 0

	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			count++
		}
	}

	return count
}
