package stubvision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStub(t *testing.T) {
	c := New([]string{"pothole", "garbage"}).
		WithLabel("https://img/1.jpg", "streetlight").
		WithFailure("https://img/2.jpg")
	ctx := context.Background()

	label, err := c.Classify(ctx, "https://img/1.jpg")
	require.NoError(t, err)
	assert.Equal(t, "streetlight", label)

	_, err = c.Classify(ctx, "https://img/2.jpg")
	assert.ErrorIs(t, err, ErrStubFailure)

	label, err = c.Classify(ctx, "https://img/big-pothole.jpg")
	require.NoError(t, err)
	assert.Equal(t, "pothole", label)

	label, err = c.Classify(ctx, "https://img/unknown.jpg")
	require.NoError(t, err)
	assert.Equal(t, "other", label)
}
