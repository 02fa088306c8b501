package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/dpashkov/noteboard/internal/models"
)

// NoteIndex mirrors notes into Elasticsearch for full-text search. A nil
// NoteIndex disables indexing; callers fall back to database matching.
type NoteIndex struct {
	ES    *elasticsearch.Client
	Index string
}

func NewNoteIndex(es *elasticsearch.Client, index string) *NoteIndex {
	if es == nil {
		return nil
	}
	return &NoteIndex{ES: es, Index: index}
}

func (n *NoteIndex) IndexNote(ctx context.Context, note *models.Note) error {
	if n == nil {
		return nil
	}

	data, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal note: %w", err)
	}

	res, err := n.ES.Index(
		n.Index,
		bytes.NewReader(data),
		n.ES.Index.WithDocumentID(strconv.FormatUint(uint64(note.ID), 10)),
		n.ES.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index note: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index note: %s", res.Status())
	}
	return nil
}

func (n *NoteIndex) DeleteNote(ctx context.Context, id uint) error {
	if n == nil {
		return nil
	}

	res, err := n.ES.Delete(
		n.Index,
		strconv.FormatUint(uint64(id), 10),
		n.ES.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("delete note from index: %w", err)
	}
	defer res.Body.Close()

	// 404 is fine, the note was never indexed.
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("delete note from index: %s", res.Status())
	}
	return nil
}

// Search runs a fuzzy multi-match over title and content, filtered to the
// owner's notes.
func (n *NoteIndex) Search(ctx context.Context, userID uint, query string, from, size int) (int64, []models.Note, error) {
	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{
					"multi_match": map[string]any{
						"query":     query,
						"fields":    []string{"title^2", "content"},
						"fuzziness": "AUTO",
					},
				},
				"filter": map[string]any{
					"term": map[string]any{"user_id": userID},
				},
			},
		},
		"from": from,
		"size": size,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, nil, fmt.Errorf("encode search query: %w", err)
	}

	res, err := n.ES.Search(
		n.ES.Search.WithContext(ctx),
		n.ES.Search.WithIndex(n.Index),
		n.ES.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("search notes: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, nil, fmt.Errorf("search notes: %s", res.Status())
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.Note `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, err
	}

	notes := make([]models.Note, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		notes[i] = hit.Source
	}
	return r.Hits.Total.Value, notes, nil
}

// LikePattern escapes a query for the database LIKE fallback used when
// Elasticsearch is not configured.
func LikePattern(query string) string {
	return "%" + strings.ReplaceAll(strings.ReplaceAll(query, "%", "\\%"), "_", "\\_") + "%"
}
