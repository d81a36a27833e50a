package advisor

import (
	"strings"

	"pulsewave/internal/domain"
)

// ExtractSymbols scans free text for mentions of supported crypto symbols.
// Returns deduplicated uppercase symbols in order of first mention.
func ExtractSymbols(text string) []string {
	upper := strings.ToUpper(text)
	words := strings.FieldsFunc(upper, func(r rune) bool {
		return !((r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	})

	seen := make(map[string]bool)
	var result []string
	for _, w := range words {
		if _, ok := domain.BinancePair[w]; ok && !seen[w] {
			seen[w] = true
			result = append(result, w)
		}
	}
	return result
}
