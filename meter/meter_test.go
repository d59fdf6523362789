package meter

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestBytesToF32(t *testing.T) {
	tests := []float32{0, 1.5, 230.0, 12345.67, -42.5}
	for _, want := range tests {
		data := make([]byte, 4)
		binary.BigEndian.PutUint32(data, math.Float32bits(want))
		if got := bytesToF32(data); got != want {
			t.Errorf("bytesToF32 = %f, want %f", got, want)
		}
	}
}
