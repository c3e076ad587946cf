package review

// Tally is the approval/rejection count of a submission at one point in time.
type Tally struct {
	Approvals  int `json:"approvals"`
	Rejections int `json:"rejections"`
}

func (t Tally) Total() int {
	return t.Approvals + t.Rejections
}

// Rate is the approval percentage, 0 when nobody has rated yet.
func (t Tally) Rate() float64 {
	if t.Total() == 0 {
		return 0
	}
	return float64(t.Approvals) / float64(t.Total()) * 100
}

// Add returns t with one more verdict counted.
func (t Tally) Add(v Verdict) Tally {
	switch v {
	case Approved:
		t.Approvals++
	case Rejected:
		t.Rejections++
	}
	return t
}

// TallyOf recomputes a tally from ledger entries.
func TallyOf(ratings []Rating) Tally {
	var t Tally
	for _, r := range ratings {
		t = t.Add(r.Verdict)
	}
	return t
}
