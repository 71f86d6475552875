package domain

// Status is the lifecycle state of a porting request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusApproved   Status = "approved"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
	StatusCancelled  Status = "cancelled"
)

// forward position on the happy path; terminal side states have no rank.
var statusRank = map[Status]int{
	StatusPending:    1,
	StatusProcessing: 2,
	StatusApproved:   3,
	StatusCompleted:  4,
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusApproved, StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition can leave s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

// InFlight reports whether the request is awaiting the external provider.
func (s Status) InFlight() bool {
	return s == StatusProcessing || s == StatusApproved
}

// CanTransition reports whether moving from one status to another is a legal,
// strictly forward move. Re-applying the current status is never legal.
func CanTransition(from, to Status) bool {
	if from == to || from.IsTerminal() || !to.Valid() {
		return false
	}
	switch to {
	case StatusCancelled:
		return true
	case StatusRejected:
		return from == StatusPending || from == StatusProcessing
	}
	return statusRank[to] > statusRank[from]
}
