package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"virtualta/internal/domain"
)

// Storage is a minimal REST client to Qdrant.
// Collections are always created with cosine distance.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// errNotFound is a 404 from Qdrant.
var errNotFound = errors.New("qdrant: not found")

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

type collectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// Init creates the collection if it is missing. An existing collection with
// another dimension or a non-cosine distance is a hard failure.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	var info collectionInfo
	err := s.do(ctx, http.MethodGet, s.collectionURL(), nil, &info)
	switch {
	case errors.Is(err, errNotFound):
		return s.create(ctx, dimension)
	case err != nil:
		return err
	}
	v := info.Result.Config.Params.Vectors
	if v.Size != dimension {
		return fmt.Errorf("collection %s has %d, want %d: %w", s.collection, v.Size, dimension, domain.ErrDimensionMismatch)
	}
	if !strings.EqualFold(v.Distance, "Cosine") {
		return fmt.Errorf("collection %s uses %s distance, want Cosine: %w", s.collection, v.Distance, domain.ErrProviderContract)
	}
	s.dimension = dimension
	return nil
}

// Recreate drops the collection (if present) and creates it empty.
func (s *Storage) Recreate(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	if err := s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil); err != nil && !errors.Is(err, errNotFound) {
		return err
	}
	return s.create(ctx, dimension)
}

func (s *Storage) create(ctx context.Context, dimension int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := s.do(ctx, http.MethodPut, s.collectionURL(), body, nil); err != nil {
		return err
	}
	s.dimension = dimension
	return nil
}

type point struct {
	ID      any            `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload domain.Payload `json:"payload"`
}

// Upsert writes points and waits for them to be indexed.
func (s *Storage) Upsert(ctx context.Context, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}
	body := struct {
		Points []point `json:"points"`
	}{Points: make([]point, len(points))}
	for i, p := range points {
		if s.dimension > 0 && len(p.Vector) != s.dimension {
			return fmt.Errorf("point %s has %d, collection %d: %w", p.ID, len(p.Vector), s.dimension, domain.ErrDimensionMismatch)
		}
		body.Points[i] = point{ID: wireID(p.ID), Vector: p.Vector, Payload: p.Payload}
	}
	return s.do(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true", body, nil)
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.Passage, error) {
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      json.RawMessage `json:"id"`
			Score   float64         `json:"score"`
			Payload domain.Payload  `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/search", req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.Passage, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.Passage{
			ID:        parseWireID(r.ID),
			Text:      r.Payload.Text,
			SourceURL: r.Payload.Source,
			Score:     r.Score,
		})
	}
	return results, nil
}

func (s *Storage) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.url, s.collection)
}

// wireID sends numeric ids as JSON integers, anything else as a string.
func wireID(id domain.PointID) any {
	if n, ok := id.Numeric(); ok {
		return n
	}
	return string(id)
}

func parseWireID(raw json.RawMessage) domain.PointID {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return domain.PointID(str)
	}
	return domain.ParsePointID(string(raw))
}

// do sends body as JSON and decodes the response into out when non-nil.
// 404 maps to errNotFound, other 4xx to a contract error, transport
// failures and 5xx to a transient provider error.
func (s *Storage) do(ctx context.Context, method, url string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %v: %w", method, url, err, domain.ErrTransientProvider)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return errNotFound
	case resp.StatusCode >= 500:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant %s %s failed: %s %s: %w", method, url, resp.Status, msg, domain.ErrTransientProvider)
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant %s %s failed: %s %s: %w", method, url, resp.Status, msg, domain.ErrProviderContract)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
