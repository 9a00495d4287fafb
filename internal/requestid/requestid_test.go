package requestid

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_FormatAndUniqueness(t *testing.T) {
	a := New()
	b := New()

	assert.True(t, strings.HasPrefix(a, "req_"))
	assert.NotEqual(t, a, b)
}

func TestWithFrom_RoundTrip(t *testing.T) {
	ctx := With(context.Background(), "req_abc123")

	id, ok := From(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req_abc123", id)
}

func TestFrom_Missing(t *testing.T) {
	id, ok := From(context.Background())
	assert.False(t, ok)
	assert.Empty(t, id)
}
