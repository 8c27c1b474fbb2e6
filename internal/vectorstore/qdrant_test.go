package vectorstore

import (
	"context"
	"testing"
)

func TestGrpcEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		urlStr   string
		wantErr  bool
		wantHost string
		wantPort int
	}{
		{
			name:     "valid URL",
			urlStr:   "http://localhost:6333",
			wantHost: "localhost",
			wantPort: 6334, // gRPC port is HTTP port + 1
		},
		{
			name:     "URL with custom port",
			urlStr:   "http://qdrant.internal:9000",
			wantHost: "qdrant.internal",
			wantPort: 9001,
		},
		{
			name:    "invalid URL",
			urlStr:  "://invalid",
			wantErr: true,
		},
		{
			name:     "URL without port",
			urlStr:   "http://localhost",
			wantHost: "localhost",
			wantPort: 6334,
		},
		{
			name:     "URL without hostname",
			urlStr:   "http://:6333",
			wantHost: "localhost",
			wantPort: 6334,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, err := grpcEndpoint(tt.urlStr)
			if tt.wantErr {
				if err == nil {
					t.Error("grpcEndpoint() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("grpcEndpoint() unexpected error: %v", err)
			}
			if host != tt.wantHost {
				t.Errorf("Host = %v, want %v", host, tt.wantHost)
			}
			if port != tt.wantPort {
				t.Errorf("Port = %v, want %v", port, tt.wantPort)
			}
		})
	}
}

func TestNewQdrantStore_InvalidURL(t *testing.T) {
	_, err := NewQdrantStore("://invalid")
	if err == nil {
		t.Error("NewQdrantStore() with invalid URL should return error")
	}
}

func TestQdrantStore_Upsert_EmptyPoints(t *testing.T) {
	store := &QdrantStore{}

	// Returns before touching the client.
	if err := store.Upsert(context.Background(), "test-collection", []Point{}); err != nil {
		t.Errorf("Upsert() with empty points should return early without error, got: %v", err)
	}
}

func TestQdrantStore_Delete_EmptyIDs(t *testing.T) {
	store := &QdrantStore{}

	if err := store.Delete(context.Background(), "test-collection", []string{}); err != nil {
		t.Errorf("Delete() with empty IDs should return early without error, got: %v", err)
	}
}

func TestQdrantStore_Search_InvalidK(t *testing.T) {
	store := &QdrantStore{}
	ctx := context.Background()

	if _, err := store.Search(ctx, "test-collection", []float32{1.0, 2.0}, 0, nil); err == nil {
		t.Error("Search() with k=0 should return error")
	}
	if _, err := store.Search(ctx, "test-collection", []float32{1.0, 2.0}, -1, nil); err == nil {
		t.Error("Search() with k=-1 should return error")
	}
}

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		name      string
		filters   map[string]any
		wantNil   bool
		wantMust  int
		wantError bool
	}{
		{name: "no filters", filters: nil, wantNil: true},
		{name: "blank region only", filters: map[string]any{FilterRegion: "  "}, wantNil: true},
		{name: "min magnitude", filters: map[string]any{FilterMinMagnitude: 6.0}, wantMust: 1},
		{name: "both", filters: map[string]any{FilterMinMagnitude: 6, FilterRegion: "Hatay"}, wantMust: 2},
		{name: "bad magnitude", filters: map[string]any{FilterMinMagnitude: "big"}, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, err := buildFilter(tt.filters)
			if tt.wantError {
				if err == nil {
					t.Error("buildFilter() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("buildFilter() unexpected error: %v", err)
			}
			if tt.wantNil {
				if filter != nil {
					t.Errorf("buildFilter() = %v, want nil", filter)
				}
				return
			}
			if filter == nil || len(filter.Must) != tt.wantMust {
				t.Errorf("buildFilter() must conditions = %v, want %d", filter, tt.wantMust)
			}
		})
	}
}

func TestConvertPayloadToMap(t *testing.T) {
	result := convertPayloadToMap(nil)
	if result == nil {
		t.Error("convertPayloadToMap() should return empty map, not nil")
	}
	if len(result) != 0 {
		t.Errorf("convertPayloadToMap() with nil should return empty map, got %d items", len(result))
	}
}
