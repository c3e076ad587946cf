package review

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"guildquest/internal/dbutil"
	"guildquest/internal/user"
)

// levelExpr recomputes level from the pre-update quest_points plus the award.
var levelExpr = fmt.Sprintf("(quest_points + ?) / %d + 1", user.PointsPerLevel)

// RewardDispatcher credits quest points for completed submissions, at most once each.
type RewardDispatcher struct{}

// Apply writes the grant marker and bumps the submitter's points and level in tx.
// The grant's primary key on submission_id makes a second call fail with ErrRewardAlreadyApplied.
func (RewardDispatcher) Apply(ctx context.Context, tx *gorm.DB, sub *Submission, points int, at time.Time) (*RewardResult, error) {
	tx = tx.WithContext(ctx)
	var granted int64
	if err := tx.Model(&RewardGrant{}).Where("submission_id = ?", sub.ID).Count(&granted).Error; err != nil {
		return nil, storageErr("lookup grant", err)
	}
	if granted > 0 {
		return nil, ErrRewardAlreadyApplied
	}
	grant := RewardGrant{SubmissionID: sub.ID, UserID: sub.UserID, Points: points, GrantedAt: at}
	if err := tx.Create(&grant).Error; err != nil {
		if dbutil.IsUniqueViolation(err) {
			return nil, ErrRewardAlreadyApplied
		}
		return nil, storageErr("record grant", err)
	}

	res := tx.Model(&user.User{}).Where("id = ?", sub.UserID).Updates(map[string]any{
		"quest_points": gorm.Expr("quest_points + ?", points),
		"level":        gorm.Expr(levelExpr, points),
	})
	if res.Error != nil {
		return nil, storageErr("credit points", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrMemberNotFound
	}

	var u user.User
	if err := tx.Select("id", "quest_points", "level").First(&u, "id = ?", sub.UserID).Error; err != nil {
		return nil, storageErr("reload member", err)
	}
	return &RewardResult{UserID: u.ID, PointsAwarded: points, QuestPoints: u.QuestPoints, Level: u.Level}, nil
}

// Granted reports whether a reward has been recorded for the submission.
func (RewardDispatcher) Granted(ctx context.Context, db *gorm.DB, submissionID string) (bool, error) {
	var n int64
	if err := db.WithContext(ctx).Model(&RewardGrant{}).Where("submission_id = ?", submissionID).Count(&n).Error; err != nil {
		return false, storageErr("lookup grant", err)
	}
	return n > 0, nil
}
