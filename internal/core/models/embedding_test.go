package models

import "testing"

func TestDecodeEmbeddingRejectsBadInput(t *testing.T) {
	if _, err := DecodeEmbedding(nil); err == nil {
		t.Error("empty input must be rejected")
	}
	if _, err := DecodeEmbedding([]byte{1, 2, 3}); err == nil {
		t.Error("input not divisible by 4 must be rejected")
	}
}

func TestEncodeDecodeEmbedding(t *testing.T) {
	in := []float32{0.25, -1.5, 3.125, 0}
	out, err := DecodeEmbedding(EncodeEmbedding(in))
	if err != nil {
		t.Fatalf("DecodeEmbedding() error: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("element %d = %v, want %v", i, out[i], in[i])
		}
	}
}
