// Package stubvision is a deterministic, no-network Labeler for CI and local
// end-to-end runs.
package stubvision

import (
	"context"
	"errors"
	"sync"

	"report-intake-pipeline/vision"
)

var ErrStubFailure = errors.New("stub vision failure")

// Client answers from a fixed URL table. Unknown URLs fall back to the URL
// keyword heuristic so that realistic test URLs still get sensible labels.
type Client struct {
	mu        sync.RWMutex
	labels    map[string]string
	failures  map[string]bool
	heuristic *vision.HeuristicLabeler
}

func New(candidates []string) *Client {
	return &Client{
		labels:    make(map[string]string),
		failures:  make(map[string]bool),
		heuristic: vision.NewHeuristicLabeler(candidates),
	}
}

// WithLabel pins the label returned for imageURL.
func (c *Client) WithLabel(imageURL, label string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.labels[imageURL] = label
	return c
}

// WithFailure makes Classify fail for imageURL.
func (c *Client) WithFailure(imageURL string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[imageURL] = true
	return c
}

func (c *Client) SourceName() string { return "Stub" }

func (c *Client) Classify(ctx context.Context, imageURL string) (string, error) {
	c.mu.RLock()
	failed := c.failures[imageURL]
	label, ok := c.labels[imageURL]
	c.mu.RUnlock()

	if failed {
		return "", ErrStubFailure
	}
	if ok {
		return label, nil
	}
	return c.heuristic.Classify(ctx, imageURL)
}
