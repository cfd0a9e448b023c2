package domain

import "sort"

// ChunkDescriptor is one remotely stored fragment of a larger file.
type ChunkDescriptor struct {
	Index    int    `json:"index"`
	RemoteID string `json:"fileId"`
	Size     int64  `json:"size"`
}

// ChunkSet is the ordered list of chunks composing one logical file.
type ChunkSet []ChunkDescriptor

// Sorted returns a copy of the set ordered by index.
func (s ChunkSet) Sorted() ChunkSet {
	sorted := make(ChunkSet, len(s))
	copy(sorted, s)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	return sorted
}

// TotalSize is the sum of all chunk sizes.
func (s ChunkSet) TotalSize() int64 {
	var total int64
	for _, c := range s {
		total += c.Size
	}
	return total
}

// RangeRequest is an inclusive byte range, 0 <= Start <= End < total size.
type RangeRequest struct {
	Start int64
	End   int64
}

// Length is the number of bytes covered by the range.
func (r RangeRequest) Length() int64 {
	return r.End - r.Start + 1
}

// FullRange covers a whole object of the given size.
func FullRange(total int64) RangeRequest {
	return RangeRequest{Start: 0, End: total - 1}
}
