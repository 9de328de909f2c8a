package insightface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"facegate/config"
)

// Detection is one face found in a frame: its bounding box as [x, y, w, h]
// in frame coordinates, the detector confidence and the embedding vector.
type Detection struct {
	Box       [4]int
	Score     float64
	Embedding []float32
}

// Client talks to the external InsightFace HTTP service that performs face
// detection and embedding extraction.
type Client struct {
	cfg        config.InsightFaceConfig
	httpClient *http.Client
}

type apiInfoResponse struct {
	Status    string   `json:"status"`
	Version   string   `json:"version"`
	Backend   string   `json:"backend"`
	Providers []string `json:"providers"`
}

type apiDetectResponse struct {
	Status     string `json:"status"`
	FacesCount int    `json:"faces_count"`
	Faces      []struct {
		BoundingBox []int     `json:"bbox"`
		Confidence  float64   `json:"confidence"`
		Embedding   []float32 `json:"embedding,omitempty"`
	} `json:"faces"`
	ProcessTime float64 `json:"process_time"`
}

// NewClient creates a client for the configured InsightFace service.
func NewClient(cfg config.InsightFaceConfig) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// Ping checks whether the InsightFace service is reachable and healthy.
func (c *Client) Ping(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/info", c.cfg.URL), nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to connect to InsightFace: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("InsightFace service unavailable, status: %d", resp.StatusCode)
	}

	var info apiInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}

	return info.Status == "ok", nil
}

// Detect sends a JPEG image to the detection endpoint and returns all faces
// with their embeddings. Faces whose reported embedding dimension does not
// match the configured one are rejected.
func (c *Client) Detect(ctx context.Context, jpegData []byte) ([]Detection, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form field: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(jpegData)); err != nil {
		return nil, fmt.Errorf("failed to copy image data: %w", err)
	}

	if err := writer.WriteField("threshold", fmt.Sprintf("%f", c.cfg.DetectionThreshold)); err != nil {
		return nil, fmt.Errorf("failed to write threshold: %w", err)
	}
	if err := writer.WriteField("extract_embedding", "true"); err != nil {
		return nil, fmt.Errorf("failed to write extract_embedding: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/detect", c.cfg.URL), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detection request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp apiDetectResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if apiResp.Status != "ok" {
		return nil, fmt.Errorf("API error: %s", apiResp.Status)
	}

	detections := make([]Detection, 0, len(apiResp.Faces))
	for _, f := range apiResp.Faces {
		if len(f.BoundingBox) != 4 {
			return nil, fmt.Errorf("malformed bounding box: %v", f.BoundingBox)
		}
		if len(f.Embedding) != c.cfg.EmbeddingDim {
			return nil, fmt.Errorf("embedding dimension %d, expected %d", len(f.Embedding), c.cfg.EmbeddingDim)
		}
		detections = append(detections, Detection{
			Box:       [4]int{f.BoundingBox[0], f.BoundingBox[1], f.BoundingBox[2], f.BoundingBox[3]},
			Score:     f.Confidence,
			Embedding: f.Embedding,
		})
	}
	return detections, nil
}
