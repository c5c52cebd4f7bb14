// Package priority ranks pending files so the most central code migrates first.
package priority

import (
	"bytes"
	"strings"

	"github.com/zulandar/humpyard/internal/scan"
)

// Reader supplies file contents. *scan.Source satisfies it.
type Reader interface {
	Read(path string) ([]byte, error)
}

// Prioritizer assigns priorities by first-matching rule:
// content keyword → High, path keyword → Medium, otherwise Low.
type Prioritizer struct {
	HighContent []string
	MediumPath  []string
}

// New returns a Prioritizer with the given keyword sets.
func New(highContent, mediumPath []string) *Prioritizer {
	return &Prioritizer{HighContent: highContent, MediumPath: mediumPath}
}

// Assign returns the priority for a file. It depends only on path and content.
func (p *Prioritizer) Assign(path string, content []byte) scan.Priority {
	for _, kw := range p.HighContent {
		if kw != "" && bytes.Contains(content, []byte(kw)) {
			return scan.PriorityHigh
		}
	}
	for _, kw := range p.MediumPath {
		if kw != "" && strings.Contains(path, kw) {
			return scan.PriorityMedium
		}
	}
	return scan.PriorityLow
}

// Order assigns a priority to each candidate and returns them High first,
// then Medium, then Low, keeping scan order within a tier. A file that can
// no longer be read is ranked on its path alone.
func (p *Prioritizer) Order(candidates []scan.FileRecord, r Reader) []scan.FileRecord {
	var high, medium, low []scan.FileRecord
	for _, rec := range candidates {
		content, err := r.Read(rec.Path)
		if err != nil {
			content = nil
		}
		rec.Priority = p.Assign(rec.Path, content)
		switch rec.Priority {
		case scan.PriorityHigh:
			high = append(high, rec)
		case scan.PriorityMedium:
			medium = append(medium, rec)
		default:
			low = append(low, rec)
		}
	}

	out := make([]scan.FileRecord, 0, len(candidates))
	out = append(out, high...)
	out = append(out, medium...)
	return append(out, low...)
}

// Counts tallies records per priority.
func Counts(recs []scan.FileRecord) map[scan.Priority]int {
	out := make(map[scan.Priority]int, 3)
	for _, r := range recs {
		out[r.Priority]++
	}
	return out
}
