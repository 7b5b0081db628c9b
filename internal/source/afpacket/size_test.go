package afpacket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecomputeSize(t *testing.T) {
	tests := []struct {
		name     string
		ringMB   int
		snapLen  int
		pageSize int
	}{
		{"default snaplen", 16, 65535, 4096},
		{"small snaplen", 8, 96, 4096},
		{"mtu snaplen", 32, 1514, 4096},
		{"large pages", 64, 262144, 65536},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frameSize, blockSize, numBlocks, err := recomputeSize(tt.ringMB, tt.snapLen, tt.pageSize)
			require.NoError(t, err)
			assert.Zero(t, frameSize%16, "frame size aligned")
			assert.Zero(t, blockSize%tt.pageSize, "block size multiple of page size")
			assert.Zero(t, blockSize%frameSize, "block size multiple of frame size")
			assert.GreaterOrEqual(t, numBlocks, 1)
		})
	}
}

func TestRecomputeSizeRejectsInvalid(t *testing.T) {
	_, _, _, err := recomputeSize(0, 1500, 4096)
	assert.Error(t, err)
	_, _, _, err = recomputeSize(8, 0, 4096)
	assert.Error(t, err)
	_, _, _, err = recomputeSize(8, 1500, 1000)
	assert.Error(t, err)
}

func TestLCM(t *testing.T) {
	assert.Equal(t, 12, lcm(4, 6))
	assert.Equal(t, 0, lcm(0, 6))
	assert.Equal(t, 4096, lcm(4096, 1024))
}
