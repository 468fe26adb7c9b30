package dedup

import (
	"log"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tallyhq/tally/internal/types"
)

// parseStatus turns the classifier's raw reply into a status. The
// accepted verdicts are exactly StatusNew (0) and StatusResolved (2);
// anything else, numeric or not, falls back to StatusNew so a confused
// classifier can never block a ledger write.
func parseStatus(raw string) types.Status {
	trimmed := strings.TrimSpace(raw)
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		log.Printf("[DEDUP] Classifier reply %q is not a status code, defaulting to %s",
			truncateForLog(raw, 40), types.StatusNew)
		return types.StatusNew
	}

	status := types.Status(n)
	if status != types.StatusNew && status != types.StatusResolved {
		log.Printf("[DEDUP] Classifier reply %d is outside the accepted set {0, 2}, defaulting to %s",
			n, types.StatusNew)
		return types.StatusNew
	}
	return status
}

// truncateForLog shortens a string to at most maxLen bytes for log
// lines, backing off to a valid UTF-8 boundary so multi-byte runes are
// never split.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	truncated := s[:maxLen]
	for i := 0; i < utf8.UTFMax && len(truncated) > 0; i++ {
		if utf8.ValidString(truncated) {
			break
		}
		truncated = truncated[:len(truncated)-1]
	}
	return truncated + "..."
}
