package hazard

// ErrForeignBlock reports that a block passed to Release was not one this
// domain ever handed out. This
// is a programmer error (contract violation): callers that care can check
// for it, but it is always safe to treat as fatal.
type ErrForeignBlock struct {
	Op string
}

func (e *ErrForeignBlock) Error() string {
	return "hazard: " + e.Op + ": block does not belong to this domain"
}

// ErrReservationFailed describes a reservation that no chunk could
// satisfy. Domain.Reserve keeps allocating chunks until a reservation
// succeeds, so it does not return this error; running out of memory in Go
// is a fatal runtime error, not an error value.
type ErrReservationFailed struct {
	BlockLen int
}

func (e *ErrReservationFailed) Error() string {
	return "hazard: reservation of block length failed"
}
