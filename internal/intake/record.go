package intake

import "sort"

const (
	// GeneralBucket holds answers that belong to no complaint.
	GeneralBucket = "General"
	// PCNoteKey holds the free-text note entered on a complaint header.
	PCNoteKey = "pc_note"
)

// GroupedRecord maps complaint name to question key to answer. It is the
// payload handed to narrative generation.
type GroupedRecord map[string]map[string]Answer

func (r GroupedRecord) bucket(name string) map[string]Answer {
	b, ok := r[name]
	if !ok {
		b = map[string]Answer{}
		r[name] = b
	}
	return b
}

// IsEmpty reports whether the record has no bucket at all.
func (r GroupedRecord) IsEmpty() bool {
	return len(r) == 0
}

// AnswerCount returns the number of answers across every bucket.
func (r GroupedRecord) AnswerCount() int {
	n := 0
	for _, b := range r {
		n += len(b)
	}
	return n
}

// Complaints returns the bucket names in sorted order.
func (r GroupedRecord) Complaints() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
