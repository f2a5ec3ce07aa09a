package book

// Outcome classifies what happened to a single record during processing.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkip    Outcome = "skip"
	OutcomeTimeout Outcome = "timeout"
)

// Tally counts processing outcomes.
type Tally struct {
	Success int `json:"success"`
	Skip    int `json:"skip"`
	Timeout int `json:"timeout"`
}

// Add records one outcome.
func (t *Tally) Add(o Outcome) {
	switch o {
	case OutcomeSuccess:
		t.Success++
	case OutcomeSkip:
		t.Skip++
	default:
		t.Timeout++
	}
}

// Merge adds the counts of other into t.
func (t *Tally) Merge(other Tally) {
	t.Success += other.Success
	t.Skip += other.Skip
	t.Timeout += other.Timeout
}

// Total returns the number of records counted.
func (t Tally) Total() int {
	return t.Success + t.Skip + t.Timeout
}
