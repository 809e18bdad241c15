package constants

// ProcessingStatus is the lifecycle state of one document's StructuredRecord.
type ProcessingStatus string

// Stable values (stored as-is in the record store and returned by the API).
const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusError      ProcessingStatus = "error"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s ProcessingStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanTransition reports whether from -> to is a legal forward step.
func CanTransition(from, to ProcessingStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusError
	default:
		return false
	}
}
