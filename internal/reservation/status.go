package reservation

var validNext = map[Status]map[Status]bool{
	StatusPaymentPending: {StatusConfirmed: true, StatusCancelled: true},
	StatusPending:        {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed:      {StatusCompleted: true, StatusCancelled: true},
	StatusCancelled:      {},
	StatusCompleted:      {},
}

// CanTransition reports whether the lifecycle allows moving from one status to another.
// Nothing leaves cancelled or completed.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Occupies reports whether a reservation in status s holds its calendar slot.
// payment_pending holds the slot until the payment settles or expires.
func (s Status) Occupies() bool {
	return s.Valid() && s != StatusCancelled
}

// InitialStatus derives the starting status from how the requester pays.
func InitialStatus(m PaymentMethod) (Status, PaymentStatus) {
	if m == MethodOnsite {
		return StatusPending, PaymentUnpaid
	}
	return StatusPaymentPending, PaymentPending
}
