package vision

import (
	"context"
	"strings"
)

// HeuristicLabeler guesses a label from the image URL itself: the first
// candidate label that appears in the lower-cased URL, or LabelOther. It is
// the fallback when no model is reachable.
type HeuristicLabeler struct {
	candidates []string
}

func NewHeuristicLabeler(candidates []string) *HeuristicLabeler {
	return &HeuristicLabeler{candidates: candidates}
}

func (h *HeuristicLabeler) SourceName() string { return "URLHeuristic" }

func (h *HeuristicLabeler) Classify(_ context.Context, imageURL string) (string, error) {
	if imageURL == "" {
		return LabelOther, nil
	}
	u := strings.ToLower(imageURL)
	for _, lbl := range h.candidates {
		if strings.Contains(u, lbl) {
			return lbl, nil
		}
	}
	return LabelOther, nil
}
