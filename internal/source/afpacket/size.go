package afpacket

import (
	"fmt"
)

// recomputeSize derives frame size, block size and block count for an
// AF_PACKET ring of roughly ringBufferSizeMB.
//
// PACKET_MMAP requires:
// 1. frameSize is a multiple of TPACKET_ALIGNMENT (16 bytes)
// 2. blockSize is a multiple of pageSize
// 3. blockSize is a multiple of frameSize
func recomputeSize(ringBufferSizeMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	const tpacketAlignment = 16
	const tpacketHdrLen = 52 // TPACKET3_HDRLEN, rounded

	if ringBufferSizeMB <= 0 {
		return 0, 0, 0, fmt.Errorf("ringBufferSizeMB must be positive, got %d", ringBufferSizeMB)
	}
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snapLen must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return 0, 0, 0, fmt.Errorf("pageSize must be positive and multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	targetBytes := ringBufferSizeMB * 1024 * 1024

	rawFrameSize := tpacketHdrLen + snapLen
	frameSize = ((rawFrameSize + tpacketAlignment - 1) / tpacketAlignment) * tpacketAlignment

	blockSize = lcm(pageSize, frameSize)
	const maxBlockSize = 4 * 1024 * 1024
	if blockSize > maxBlockSize {
		// LCM blew up; round the frame to whole pages so any frame count
		// yields a page-aligned block.
		frameSize = ((rawFrameSize + pageSize - 1) / pageSize) * pageSize
		framesPerBlock := maxBlockSize / frameSize
		if framesPerBlock < 1 {
			framesPerBlock = 1
		}
		blockSize = framesPerBlock * frameSize
	}

	numBlocks = targetBytes / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	return frameSize, blockSize, numBlocks, nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return (a * b) / gcd(a, b)
}
