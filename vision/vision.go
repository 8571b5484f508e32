// Package vision defines the contract for the external model that turns an
// image URL into a single semantic label, plus the degradation chain that
// keeps a failing model from failing a report.
package vision

import (
	"context"
	"strings"
)

// LabelOther is the sentinel label for "nothing recognised".
const LabelOther = "other"

// Labeler classifies the image behind a URL into one label.
// Implementations must be safe for concurrent use.
type Labeler interface {
	Classify(ctx context.Context, imageURL string) (string, error)
	// SourceName is a short provider label for logs and metrics.
	SourceName() string
}

// CleanLabel lower-cases and trims a model answer, dropping surrounding quotes
// and trailing punctuation.
func CleanLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	label = strings.Trim(label, "\"'`.,;:!")
	return strings.Join(strings.Fields(label), " ")
}

// PickCandidate maps a free-form model answer onto the candidate vocabulary:
// an exact candidate first, then the longest candidate contained in the
// answer. Answers that mention no candidate are returned cleaned.
func PickCandidate(answer string, candidates []string) string {
	answer = CleanLabel(answer)
	if answer == "" {
		return ""
	}
	best := ""
	for _, c := range candidates {
		if c == answer {
			return c
		}
		if strings.Contains(answer, c) && len(c) > len(best) {
			best = c
		}
	}
	if best != "" {
		return best
	}
	return answer
}
