package domain

import "time"

// ResultType is the classifier's final verdict for one source-side record:
// RAPO_RESULT_TYPE in the result tables.
type ResultType string

const (
	ResultSuccess     ResultType = "Success"
	ResultLoss        ResultType = "Loss"
	ResultDuplicate   ResultType = "Duplicate"
	ResultDiscrepancy ResultType = "Discrepancy"
)

// ResultRow is one record written to ERROR_{A,B} or STAGE_{A,B}, carrying
// the four mandatory Rapo columns alongside the source row it was
// computed from.
type ResultRow struct {
	SourceKey              string
	Date                   time.Time
	Source                 map[string]any
	ResultType             ResultType
	DiscrepancyID          string // empty unless ResultType == Discrepancy
	DiscrepancyDescription string // "field[delta], field2[delta2]"
	ProcessID              string
}

// IsError reports whether this result type belongs in the ERROR table
// rather than STAGE.
func (r ResultType) IsError() bool {
	return r == ResultLoss || r == ResultDuplicate || r == ResultDiscrepancy
}
