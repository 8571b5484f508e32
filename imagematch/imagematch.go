// Package imagematch decides whether the label a vision model gave an image
// is consistent with the category detected from the report text.
package imagematch

import (
	"context"
	"fmt"
	"strings"

	"report-intake-pipeline/metrics"
	"report-intake-pipeline/models"
	"report-intake-pipeline/rules"
	"report-intake-pipeline/vision"

	"github.com/apex/log"
)

// Policy decides what a labelling failure means.
type Policy string

const (
	// PolicyStrict rejects images the model could not label.
	PolicyStrict Policy = "strict"
	// PolicyPermissive lets images the model could not label through.
	PolicyPermissive Policy = "permissive"
)

// ParsePolicy maps a config string onto a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyStrict, "":
		return PolicyStrict, nil
	case PolicyPermissive:
		return PolicyPermissive, nil
	}
	return "", fmt.Errorf("unknown image failure policy %q", s)
}

// Rule names the matching step that decided a Result.
const (
	RuleLabelerFailure = "labeler_failure"
	RuleEmptyLabel     = "empty_label"
	RuleGenericLabel   = "generic_label"
	RuleExact          = "exact"
	RuleSubstring      = "substring"
	RuleKeyword        = "keyword"
	RuleWordOverlap    = "word_overlap"
	RuleToken          = "token"
	RuleNoMatch        = "no_match"
	RuleUnknownCat     = "unknown_category"
)

// Result is the outcome of one consistency check.
type Result struct {
	Match bool
	Label string
	Rule  string
}

// Checker runs the image consistency check for one rule table.
type Checker struct {
	labeler vision.Labeler
	table   *rules.Table
	generic map[string]bool
	policy  Policy
}

func NewChecker(labeler vision.Labeler, table *rules.Table, policy Policy) *Checker {
	generic := make(map[string]bool, len(table.GenericImageLabels)+1)
	generic[vision.LabelOther] = true
	for _, g := range table.GenericImageLabels {
		generic[g] = true
	}
	return &Checker{
		labeler: labeler,
		table:   table,
		generic: generic,
		policy:  policy,
	}
}

func (c *Checker) Policy() Policy { return c.policy }

// ImageMatchesCategory reports whether the image at imageURL fits category.
func (c *Checker) ImageMatchesCategory(ctx context.Context, imageURL string, category models.Category) bool {
	return c.Check(ctx, imageURL, category).Match
}

// Check labels the image and matches the label against category.
func (c *Checker) Check(ctx context.Context, imageURL string, category models.Category) Result {
	label, err := c.labeler.Classify(ctx, imageURL)
	label = vision.CleanLabel(label)

	var res Result
	switch {
	case err != nil:
		log.WithError(err).WithField("image_url", imageURL).Warn("image labelling failed")
		res = c.failure(label, RuleLabelerFailure)
	case label == "":
		res = c.failure(label, RuleEmptyLabel)
	case label == vision.LabelOther:
		res = c.failure(label, RuleGenericLabel)
	default:
		res = c.LabelMatchesCategory(label, category)
	}

	metrics.ImageMatchTotal.WithLabelValues(res.Rule).Inc()
	return res
}

func (c *Checker) failure(label, rule string) Result {
	return Result{Match: c.policy == PolicyPermissive, Label: label, Rule: rule}
}

// LabelMatchesCategory applies the matching steps in order; the first
// success wins. It performs no I/O.
func (c *Checker) LabelMatchesCategory(label string, category models.Category) Result {
	label = vision.CleanLabel(label)
	if label == "" {
		return Result{Label: label, Rule: RuleEmptyLabel}
	}
	if c.generic[label] {
		return Result{Label: label, Rule: RuleGenericLabel}
	}

	cat, ok := c.table.Category(category)
	if !ok {
		return Result{Label: label, Rule: RuleUnknownCat}
	}
	allowed := cat.ImageLabels

	for _, a := range allowed {
		if a == label {
			return Result{Match: true, Label: label, Rule: RuleExact}
		}
	}

	for _, a := range allowed {
		if strings.Contains(label, a) || strings.Contains(a, label) {
			return Result{Match: true, Label: label, Rule: RuleSubstring}
		}
	}

	for _, kw := range cat.Keywords {
		if strings.Contains(label, kw) || strings.Contains(kw, label) {
			return Result{Match: true, Label: label, Rule: RuleKeyword}
		}
	}

	tokens := strings.Fields(label)
	for _, a := range allowed {
		for _, at := range strings.Fields(a) {
			for _, t := range tokens {
				if t == at {
					return Result{Match: true, Label: label, Rule: RuleWordOverlap}
				}
			}
		}
	}

	vocab := make([]string, 0, len(cat.Keywords)+len(allowed))
	vocab = append(vocab, cat.Keywords...)
	vocab = append(vocab, allowed...)
	for _, t := range tokens {
		if len([]rune(t)) <= 2 {
			continue
		}
		for _, v := range vocab {
			if strings.Contains(v, t) || strings.Contains(t, v) {
				return Result{Match: true, Label: label, Rule: RuleToken}
			}
		}
	}

	return Result{Label: label, Rule: RuleNoMatch}
}
