package batch

// ItemStatus is the processing outcome of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusOK    ItemStatus = "ok"
	StatusError ItemStatus = "error"
)

// Result is the outcome of writing one document of a batch. Items are
// written independently, so a batch may mix both statuses.
type Result struct {
	position int
	id       string
	status   ItemStatus
	err      error
}

// NewOK creates a successful batch result for the item at position.
func NewOK(position int, id string) Result {
	return Result{position: position, id: id, status: StatusOK}
}

// NewError creates a failed batch result for the item at position.
func NewError(position int, id string, err error) Result {
	return Result{position: position, id: id, status: StatusError, err: err}
}

// Position returns the item's index in the submitted batch.
func (r Result) Position() int { return r.position }

// ID returns the id assigned to the item.
func (r Result) ID() string { return r.id }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// Failed counts results with StatusError.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.status == StatusError {
			n++
		}
	}
	return n
}
