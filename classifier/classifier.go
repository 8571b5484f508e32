// Package classifier makes the text decisions of the intake pipeline:
// which department a description belongs to, whether it is abusive, and
// how urgent it is.
package classifier

import (
	"unicode/utf8"

	"report-intake-pipeline/models"
	"report-intake-pipeline/rules"
)

type categoryMatcher struct {
	name    models.Category
	matcher *Matcher
}

// Classifier applies a rules.Table to free text. It is immutable after
// construction and safe for concurrent use.
type Classifier struct {
	categories []categoryMatcher
	abusive    *Matcher
	override   *Matcher
	high       *Matcher
	medium     *Matcher
}

// New compiles the matchers for table.
func New(table *rules.Table) *Classifier {
	c := &Classifier{
		abusive:  NewMatcher(table.Abusive),
		override: NewMatcher(table.Urgency.Override),
		high:     NewMatcher(table.Urgency.High),
		medium:   NewMatcher(table.Urgency.Medium),
	}
	for _, cat := range table.Categories {
		c.categories = append(c.categories, categoryMatcher{
			name:    cat.Name,
			matcher: NewMatcher(cat.Keywords),
		})
	}
	return c
}

// CategoryScore is the evidence for one category.
type CategoryScore struct {
	Category models.Category
	Matched  []string
	Longest  int
}

// Scores returns per-category keyword evidence for description, in table
// order. Categories without a match are omitted.
func (c *Classifier) Scores(description string) []CategoryScore {
	text := Normalize(description)
	var scores []CategoryScore
	for _, cm := range c.categories {
		hits := cm.matcher.Matches(text)
		if len(hits) == 0 {
			continue
		}
		s := CategoryScore{Category: cm.name}
		for _, i := range hits {
			kw := cm.matcher.Phrase(i)
			s.Matched = append(s.Matched, kw)
			if n := utf8.RuneCountInString(kw); n > s.Longest {
				s.Longest = n
			}
		}
		scores = append(scores, s)
	}
	return scores
}

// DetectCategory returns the category with the most distinct matching
// keywords. Ties go to the category whose longest matching keyword is longer;
// a tie on both goes to the category listed first in the rules table.
// Without any match it returns models.CategoryOther.
func (c *Classifier) DetectCategory(description string) models.Category {
	best := models.CategoryOther
	bestScore, bestLongest := 0, 0
	for _, s := range c.Scores(description) {
		score := len(s.Matched)
		if score > bestScore || (score == bestScore && s.Longest > bestLongest) {
			best, bestScore, bestLongest = s.Category, score, s.Longest
		}
	}
	return best
}

// IsAbusive reports whether any deny-list entry occurs as a whole word or
// phrase.
func (c *Classifier) IsAbusive(description string) bool {
	return c.abusive.Any(Normalize(description))
}

// DetectUrgency returns high when an override term is present, then checks
// the high tier and the medium tier, and defaults to low.
func (c *Classifier) DetectUrgency(description string) models.Urgency {
	text := Normalize(description)
	switch {
	case c.override.Any(text):
		return models.UrgencyHigh
	case c.high.Any(text):
		return models.UrgencyHigh
	case c.medium.Any(text):
		return models.UrgencyMedium
	default:
		return models.UrgencyLow
	}
}
