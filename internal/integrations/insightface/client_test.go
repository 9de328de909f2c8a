package insightface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"facegate/config"
)

func testClient(url string) *Client {
	return NewClient(config.InsightFaceConfig{
		URL:                url,
		TimeoutSeconds:     5,
		DetectionThreshold: 0.5,
		EmbeddingDim:       3,
	})
}

func TestPing(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    bool
		wantErr bool
	}{
		{
			name: "healthy",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
			},
			want: true,
		},
		{
			name: "unhealthy status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]string{"status": "loading"})
			},
			want: false,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			got, err := testClient(srv.URL).Ping(context.Background())
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Ping() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Ping() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
		}
		if r.FormValue("extract_embedding") != "true" {
			t.Error("extract_embedding must be requested")
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file field: %v", err)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "ok",
			"faces_count": 1,
			"faces": []map[string]interface{}{
				{
					"bbox":       []int{10, 20, 30, 40},
					"confidence": 0.97,
					"embedding":  []float32{0.1, 0.2, 0.3},
				},
			},
		})
	}))
	defer srv.Close()

	detections, err := testClient(srv.URL).Detect(context.Background(), []byte("fake-jpeg"))
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	if len(detections) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(detections))
	}

	det := detections[0]
	if det.Box != [4]int{10, 20, 30, 40} {
		t.Errorf("box = %v, want [10 20 30 40]", det.Box)
	}
	if det.Score != 0.97 {
		t.Errorf("score = %v, want 0.97", det.Score)
	}
	if len(det.Embedding) != 3 {
		t.Errorf("embedding length = %d, want 3", len(det.Embedding))
	}
}

func TestDetectRejectsWrongDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "ok",
			"faces_count": 1,
			"faces": []map[string]interface{}{
				{
					"bbox":       []int{10, 20, 30, 40},
					"confidence": 0.97,
					"embedding":  []float32{0.1, 0.2},
				},
			},
		})
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).Detect(context.Background(), []byte("fake-jpeg")); err == nil {
		t.Fatal("expected an error for a wrong embedding dimension")
	}
}

func TestDetectAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "model not loaded"})
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).Detect(context.Background(), []byte("fake-jpeg")); err == nil {
		t.Fatal("expected an error for a non-ok API status")
	}
}
