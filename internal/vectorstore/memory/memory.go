package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"virtualta/internal/domain"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	order     []domain.PointID
	points    map[domain.PointID]domain.Point
}

func NewStorage() *Storage { return &Storage{points: map[domain.PointID]domain.Point{}} }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension {
		return fmt.Errorf("collection has %d, requested %d: %w", s.dimension, dimension, domain.ErrDimensionMismatch)
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Recreate(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.order = nil
	s.points = map[domain.PointID]domain.Point{}
	return nil
}

// Upsert stores points, replacing any with the same id. The whole batch is
// rejected if one vector has the wrong length.
func (s *Storage) Upsert(_ context.Context, points []domain.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return errors.New("collection not initialized")
	}
	for _, p := range points {
		if len(p.Vector) != s.dimension {
			return fmt.Errorf("point %s has %d, collection %d: %w", p.ID, len(p.Vector), s.dimension, domain.ErrDimensionMismatch)
		}
	}
	for _, p := range points {
		if _, ok := s.points[p.ID]; !ok {
			s.order = append(s.order, p.ID)
		}
		s.points[p.ID] = p
	}
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float32, topK int) ([]domain.Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 5
	}
	if s.dimension != 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("query has %d, collection %d: %w", len(vector), s.dimension, domain.ErrDimensionMismatch)
	}
	results := make([]domain.Passage, 0, len(s.order))
	for _, id := range s.order {
		p := s.points[id]
		results = append(results, domain.Passage{
			ID:        p.ID,
			Text:      p.Payload.Text,
			SourceURL: p.Payload.Source,
			Score:     cosine(p.Vector, vector),
		})
	}
	// insertion order breaks ties
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

// Len returns the number of stored points.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// Get returns the stored point with id.
func (s *Storage) Get(id domain.PointID) (domain.Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.points[id]
	return p, ok
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
