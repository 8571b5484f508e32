package pipeline

import (
	"fmt"
	"strings"

	"report-intake-pipeline/models"
)

// PriorityMode selects how urgency maps onto priority.
type PriorityMode string

const (
	// PriorityThreeTier maps high, medium and low to urgent, medium and low.
	PriorityThreeTier PriorityMode = "three_tier"
	// PriorityTwoTier maps high to urgent and everything else to normal.
	PriorityTwoTier PriorityMode = "two_tier"
)

func ParsePriorityMode(s string) (PriorityMode, error) {
	switch PriorityMode(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityThreeTier, "":
		return PriorityThreeTier, nil
	case PriorityTwoTier:
		return PriorityTwoTier, nil
	}
	return "", fmt.Errorf("unknown priority mode %q", s)
}

// PriorityFor maps urgency to priority.
func PriorityFor(u models.Urgency, mode PriorityMode) models.Priority {
	if mode == PriorityTwoTier {
		if u == models.UrgencyHigh {
			return models.PriorityUrgent
		}
		return models.PriorityNormal
	}
	switch u {
	case models.UrgencyHigh:
		return models.PriorityUrgent
	case models.UrgencyLow:
		return models.PriorityLow
	default:
		return models.PriorityMedium
	}
}
