package stats

// Group is one labelled section of a statistics file and the parameter keys
// read from the lines that follow its label.
type Group struct {
	ID     int
	Label  string
	Params []string
}

// Table describes one statistics file. Stride is the slot count reserved per
// group in a Result, so it must be at least the longest Params list.
type Table struct {
	Name   string
	Path   string
	Stride int
	Groups []Group
}

// Result holds extracted values indexed by group*Stride + param.
type Result []uint64

// Sample is one named value of a Result.
type Sample struct {
	Table string `json:"table"`
	Group string `json:"group"`
	Param string `json:"param"`
	Value uint64 `json:"value"`
}

// Extractor reads statistics tables. Implementations must be safe for
// concurrent use.
type Extractor interface {
	Extract(table Table, out Result) error
}
