package models

// Allocation job names as seen by the durable queue.
const (
	JobAllocateTickets = "allocate_tickets"
	JobAdjustStake     = "adjust_stake_bonus"
)

// AllocationJob is the unit of work handed to the durable queue. The
// transaction reference doubles as the idempotency key: the downstream worker
// applies at most one ticket mutation per reference.
//
// Buy and sell jobs carry a precomputed TicketDelta. Stake and unstake jobs
// carry the raw staked amount instead; the bonus is computed by the worker
// inside the per-wallet critical section so it sees the current ticket count.
type AllocationJob struct {
	Kind        EventKind `json:"kind"`
	RaffleID    string    `json:"raffle_id"`
	Wallet      string    `json:"wallet"`
	TicketDelta int64     `json:"ticket_delta"`
	RawAmount   string    `json:"raw_amount,omitempty"`
	TxRef       string    `json:"tx_ref"`
	TimestampMs int64     `json:"timestamp_ms"`
}

// Name returns the queue job name for this job's kind.
func (j *AllocationJob) Name() string {
	switch j.Kind {
	case KindStake, KindUnstake:
		return JobAdjustStake
	default:
		return JobAllocateTickets
	}
}
