package batch

import (
	"fmt"

	"github.com/zulandar/humpyard/internal/scan"
)

// Batch is an ordered, size-bounded slice of the processing sequence.
type Batch struct {
	Number int // 1-indexed
	Files  []scan.FileRecord
}

// Partition splits files into ceil(len/size) batches. Concatenating the
// batches in order reproduces files exactly.
func Partition(files []scan.FileRecord, size int) ([]Batch, error) {
	if size <= 0 {
		return nil, fmt.Errorf("batch: size must be positive, got %d", size)
	}
	n := (len(files) + size - 1) / size
	out := make([]Batch, 0, n)
	for i := 0; i < n; i++ {
		start := i * size
		end := start + size
		if end > len(files) {
			end = len(files)
		}
		out = append(out, Batch{Number: i + 1, Files: files[start:end:end]})
	}
	return out, nil
}
