package review

import (
	"context"
	"time"

	"gorm.io/gorm"

	"guildquest/internal/dbutil"
)

// Ledger is the append-only record of ratings. It is the source of truth for tallies.
type Ledger struct{}

// Record appends one rating. A second rating by the same rater fails with ErrDuplicateRating
// whether it is caught by the lookup or by the unique index.
func (Ledger) Record(ctx context.Context, tx *gorm.DB, submissionID, raterID string, v Verdict, at time.Time) (*Rating, error) {
	if !v.Valid() {
		return nil, ErrInvalidVerdict
	}
	tx = tx.WithContext(ctx)
	var n int64
	if err := tx.Model(&Rating{}).
		Where("submission_id = ? AND rated_by = ?", submissionID, raterID).
		Count(&n).Error; err != nil {
		return nil, storageErr("lookup rating", err)
	}
	if n > 0 {
		return nil, ErrDuplicateRating
	}
	r := &Rating{SubmissionID: submissionID, RatedBy: raterID, Verdict: v, CreatedAt: at}
	if err := tx.Create(r).Error; err != nil {
		if dbutil.IsUniqueViolation(err) {
			return nil, ErrDuplicateRating
		}
		return nil, storageErr("record rating", err)
	}
	return r, nil
}

// Tally counts the ledger rows of a submission by verdict.
func (Ledger) Tally(ctx context.Context, tx *gorm.DB, submissionID string) (Tally, error) {
	var rows []struct {
		Rating string
		Total  int
	}
	err := tx.WithContext(ctx).Model(&Rating{}).
		Select("rating, COUNT(*) AS total").
		Where("submission_id = ?", submissionID).
		Group("rating").
		Scan(&rows).Error
	if err != nil {
		return Tally{}, storageErr("tally ratings", err)
	}
	var t Tally
	for _, r := range rows {
		switch Verdict(r.Rating) {
		case Approved:
			t.Approvals = r.Total
		case Rejected:
			t.Rejections = r.Total
		}
	}
	return t, nil
}

// Ratings returns a submission's ledger in insertion order.
func (Ledger) Ratings(ctx context.Context, db *gorm.DB, submissionID string) ([]Rating, error) {
	var out []Rating
	err := db.WithContext(ctx).Where("submission_id = ?", submissionID).Order("created_at asc").Find(&out).Error
	if err != nil {
		return nil, storageErr("list ratings", err)
	}
	return out, nil
}

// VerdictsBy maps submission ID to raterID's verdict for the given submissions.
func (Ledger) VerdictsBy(ctx context.Context, db *gorm.DB, raterID string, submissionIDs []string) (map[string]Verdict, error) {
	out := make(map[string]Verdict, len(submissionIDs))
	if raterID == "" || len(submissionIDs) == 0 {
		return out, nil
	}
	var rows []Rating
	err := db.WithContext(ctx).
		Where("rated_by = ? AND submission_id IN ?", raterID, submissionIDs).
		Find(&rows).Error
	if err != nil {
		return nil, storageErr("lookup verdicts", err)
	}
	for _, r := range rows {
		out[r.SubmissionID] = r.Verdict
	}
	return out, nil
}
