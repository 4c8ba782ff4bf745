package booking

// NoShowOutcome decides where the escrowed amount goes when the customer
// does not show up.
type NoShowOutcome int

const (
	// NoShowSettle pays the provider as if the booking completed; the
	// customer forfeits the prepayment.
	NoShowSettle NoShowOutcome = iota
	// NoShowRefund returns the full amount to the customer.
	NoShowRefund
)

// NoShowPolicy resolves the payout for a no-show booking. Kept as a
// standalone function so the business rule can change without touching
// the state machine.
type NoShowPolicy func(b *Booking) NoShowOutcome

// DefaultNoShowPolicy settles to the provider: the table was held, the
// provider carried the cost.
func DefaultNoShowPolicy(b *Booking) NoShowOutcome {
	return NoShowSettle
}
