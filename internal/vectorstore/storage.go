package vectorstore

import (
	"context"

	"virtualta/internal/domain"
)

// Storage is the vector index gateway. Collections use cosine distance and
// a dimension fixed when they are created; vectors of any other length are
// rejected with domain.ErrDimensionMismatch.
type Storage interface {
	// Init makes sure the collection exists with the given dimension.
	Init(ctx context.Context, dimension int) error
	// Recreate drops the collection and creates it empty.
	Recreate(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, points []domain.Point) error
	Search(ctx context.Context, vector []float32, topK int) ([]domain.Passage, error)
}
