// Package refdata loads the two read-only reference tables used by the
// dashboard filters: payment-method identifiers per fiat currency, and
// the supported currency codes for the reference-quote lookups. Both
// tables are loaded once at process start, never mutated, and passed
// into their consumers explicitly. A missing file degrades silently to
// an empty table or a hard-coded fallback; it is never an error.
package refdata

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"sort"
	"strings"
)

// PayMethod is one payment-method identifier with its display name
type PayMethod struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Tables is the immutable reference lookup structure
type Tables struct {
	payMethods map[string][]PayMethod
	codes      []string
}

// fallbackCodes is served when the currency-code table is absent
var fallbackCodes = []string{
	"AED", "AUD", "CAD", "CHF", "CNY", "CZK", "EUR", "GBP",
	"HUF", "ILS", "INR", "JPY", "KZT", "MDL", "NOK", "PLN",
	"RON", "RUB", "SEK", "TRY", "UAH", "USD",
}

// Load builds the reference tables from the given file paths. Missing
// or unreadable files degrade to an empty payment-method table and the
// hard-coded currency-code fallback.
func Load(payMethodsPath, codesPath string) *Tables {
	t := &Tables{
		payMethods: make(map[string][]PayMethod),
		codes:      fallbackCodes,
	}

	if f, err := os.Open(payMethodsPath); err == nil {
		t.payMethods = parsePayMethods(f)

		f.Close()
	}

	if content, err := os.ReadFile(codesPath); err == nil {
		if codes := parseCodes(content); len(codes) > 0 {
			t.codes = codes
		}
	}

	return t
}

// PayMethodsFor returns the payment methods registered for the fiat
// currency, in file order
func (t *Tables) PayMethodsFor(fiat string) []PayMethod {
	return t.payMethods[strings.ToUpper(strings.TrimSpace(fiat))]
}

// CurrencyCodes returns the supported currency codes, sorted
func (t *Tables) CurrencyCodes() []string {
	return t.codes
}

// parsePayMethods reads the flat payment-method table. Currencies are
// delimited by [CCY] header lines; body lines hold an identifier and an
// optional display name separated by a tab. Blank lines and #-comments
// are skipped.
func parsePayMethods(r io.Reader) map[string][]PayMethod {
	var (
		out     = make(map[string][]PayMethod)
		current string

		scanner = bufio.NewScanner(r)
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			current = strings.ToUpper(strings.TrimSpace(line[1 : len(line)-1]))

			continue
		}

		if current == "" {
			// Body line before any header, ignore
			continue
		}

		var (
			id   = line
			name = line
		)

		if idx := strings.IndexByte(line, '\t'); idx != -1 {
			id = strings.TrimSpace(line[:idx])
			name = strings.TrimSpace(line[idx+1:])
		}

		if id == "" {
			continue
		}

		if name == "" {
			name = id
		}

		out[current] = append(out[current], PayMethod{
			ID:   id,
			Name: name,
		})
	}

	return out
}

// parseCodes reads the currency-code table: a JSON object keyed by
// currency code; only the key set is consumed
func parseCodes(content []byte) []string {
	var table map[string]json.Number

	if err := json.Unmarshal(content, &table); err != nil {
		return nil
	}

	codes := make([]string, 0, len(table))
	for code := range table {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			continue
		}

		codes = append(codes, code)
	}

	sort.Strings(codes)

	return codes
}
