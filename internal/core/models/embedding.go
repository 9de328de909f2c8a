package models

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeEmbedding serializes an embedding vector as raw little-endian
// float32 bytes, the on-disk representation for Person and UnknownFace rows.
func EncodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeEmbedding deserializes raw little-endian float32 bytes back into an
// embedding vector.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding length %d", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
