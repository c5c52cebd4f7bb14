package scan

// Class is a file's migration classification.
type Class int

const (
	// Pending files still depend on the old import and need migration.
	Pending Class = iota
	// Migrated files already carry a migrated marker.
	Migrated
)

func (c Class) String() string {
	switch c {
	case Pending:
		return "pending"
	case Migrated:
		return "migrated"
	}
	return "unknown"
}

// Priority ranks pending files. The zero value means unassigned.
type Priority int

const (
	PriorityNone Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	}
	return "none"
}

// FileRecord is one classified source file. Records are rebuilt on every scan.
type FileRecord struct {
	Path     string
	Class    Class
	Priority Priority // set only for Pending records
}

// Classification is the result of a scan. Migrated and Candidates are disjoint.
type Classification struct {
	Migrated   []FileRecord
	Candidates []FileRecord
	Skipped    []string // unreadable files
}

// Paths returns the paths of recs in order.
func Paths(recs []FileRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Path
	}
	return out
}
