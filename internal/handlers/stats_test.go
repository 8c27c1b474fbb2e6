package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"quakeqa/internal/indexer"
	"quakeqa/internal/vectorstore"
)

type fakeStats struct {
	stats *indexer.IndexStats
	err   error
}

func (f fakeStats) Stats(ctx context.Context) (*indexer.IndexStats, error) {
	return f.stats, f.err
}

func TestStatsHandler(t *testing.T) {
	tests := []struct {
		name           string
		provider       fakeStats
		expectedStatus int
	}{
		{
			name: "index built",
			provider: fakeStats{stats: &indexer.IndexStats{
				Collection:     "earthquakes",
				Records:        3,
				Skipped:        1,
				Segments:       3,
				ChunkerVersion: indexer.ChunkerVersion,
			}},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "no index",
			provider:       fakeStats{err: fmt.Errorf("failed to count segments: %w", vectorstore.ErrCollectionNotFound)},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "catalog failure",
			provider:       fakeStats{err: errors.New("disk I/O error")},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewStatsHandler(tt.provider)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}
			var stats indexer.IndexStats
			if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if stats.Records != 3 || stats.Skipped != 1 || stats.ChunkerVersion != indexer.ChunkerVersion {
				t.Errorf("unexpected stats: %+v", stats)
			}
		})
	}
}
