package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtualta/internal/domain"
)

func point(id uint64, text string, v ...float32) domain.Point {
	return domain.Point{ID: domain.NumericID(id), Vector: v, Payload: domain.Payload{Source: "u/" + text, Text: text}}
}

func TestSearch_RanksByCosine(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.Point{
		point(1, "east", 1, 0),
		point(2, "north", 0, 1),
		point(3, "northeast", 1, 1),
	}))

	got, err := s.Search(ctx, []float32{0, 5}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.PointID("2"), got[0].ID)
	assert.Equal(t, "north", got[0].Text)
	assert.Equal(t, "u/north", got[0].SourceURL)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.Equal(t, domain.PointID("3"), got[1].ID)
}

func TestSearch_EmptyStore(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Init(context.Background(), 3))
	got, err := s.Search(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUpsert_ReplacesSameID(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 1))
	require.NoError(t, s.Upsert(ctx, []domain.Point{point(7, "old", 1)}))
	require.NoError(t, s.Upsert(ctx, []domain.Point{point(7, "new", 1)}))
	assert.Equal(t, 1, s.Len())
	p, ok := s.Get("7")
	require.True(t, ok)
	assert.Equal(t, "new", p.Payload.Text)
}

func TestUpsert_DimensionMismatchRejectsBatch(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 2))
	err := s.Upsert(ctx, []domain.Point{point(1, "ok", 1, 0), point(2, "bad", 1, 0, 0)})
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))
	assert.Equal(t, 0, s.Len())
}

func TestInit_RejectsDifferentDimension(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 2))
	assert.True(t, errors.Is(s.Init(ctx, 3), domain.ErrDimensionMismatch))
	require.NoError(t, s.Recreate(ctx, 3))
	require.NoError(t, s.Upsert(ctx, []domain.Point{point(1, "x", 1, 2, 3)}))
}
