package review

import "math"

// Policy decides when a submission has enough votes and which way it goes.
type Policy struct {
	// ApprovalThreshold is a percentage in (0, 100]. Reaching it exactly completes.
	ApprovalThreshold float64
	// QuorumRatio is the share of guild members that must have rated.
	QuorumRatio     float64
	AllowSelfRating bool
}

var DefaultPolicy = Policy{ApprovalThreshold: 80, QuorumRatio: 0.5}

// quorumEpsilon absorbs float error such as 0.3*10 = 3.0000000000000004.
// A plain ceil would give 4 there; this gives 3. The default 0.5 ratio is exact and unaffected.
const quorumEpsilon = 1e-9

// Quorum is ceil(memberCount * QuorumRatio), never less than one.
func (p Policy) Quorum(memberCount int) int {
	q := int(math.Ceil(float64(memberCount)*p.QuorumRatio - quorumEpsilon))
	if q < 1 {
		return 1
	}
	return q
}

// Decide maps a tally to the status it implies for a guild of memberCount members.
func (p Policy) Decide(t Tally, memberCount int) Status {
	total := t.Total()
	if total < p.Quorum(memberCount) {
		return StatusPending
	}
	if float64(t.Approvals)*100 >= p.ApprovalThreshold*float64(total) {
		return StatusCompleted
	}
	return StatusRejected
}

// Snapshot captures the inputs of a decision so it can be audited later.
func (p Policy) Snapshot(t Tally, memberCount int, outcome Status) Snapshot {
	return Snapshot{
		Approvals:         t.Approvals,
		Rejections:        t.Rejections,
		ApprovalRate:      t.Rate(),
		MemberCount:       memberCount,
		Quorum:            p.Quorum(memberCount),
		ApprovalThreshold: p.ApprovalThreshold,
		Outcome:           outcome,
	}
}
