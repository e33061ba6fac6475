package embedding

import (
	"context"
	"fmt"

	"virtualta/internal/domain"
)

// Fixed wraps an Embedder and rejects vectors whose length differs from the
// dimension the collection was created with.
type Fixed struct {
	inner     domain.Embedder
	dimension int
}

// NewFixed pins inner to dimension.
func NewFixed(inner domain.Embedder, dimension int) *Fixed {
	return &Fixed{inner: inner, dimension: dimension}
}

func (f *Fixed) Name() string   { return f.inner.Name() }
func (f *Fixed) Dimension() int { return f.dimension }

// Embed returns the inner embedding or ErrDimensionMismatch. An empty
// vector is ErrNoEmbedding.
func (f *Fixed) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := f.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := CheckDimension(v, f.dimension); err != nil {
		return nil, err
	}
	return v, nil
}

// CheckDimension reports whether v has exactly want elements.
func CheckDimension(v []float32, want int) error {
	if len(v) == 0 {
		return domain.ErrNoEmbedding
	}
	if len(v) != want {
		return fmt.Errorf("got %d, want %d: %w", len(v), want, domain.ErrDimensionMismatch)
	}
	return nil
}
