package review

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Status is the lifecycle state of a submission. pending is the only non-terminal state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// CanTransition reports whether s -> to is a legal edge: pending -> completed | rejected.
func (s Status) CanTransition(to Status) bool {
	return s == StatusPending && to.Terminal()
}

// Verdict is a single rater's decision.
type Verdict string

const (
	Approved Verdict = "approved"
	Rejected Verdict = "rejected"
)

func (v Verdict) Valid() bool {
	return v == Approved || v == Rejected
}

// Submission is a member's proof of completion for a quest.
// ApprovalCount + RejectionCount always equals the number of ledger rows.
type Submission struct {
	ID             string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	QuestID        string         `gorm:"type:varchar(36);not null;index" json:"quest_id"`
	GuildID        string         `gorm:"column:group_id;type:varchar(36);not null;index" json:"group_id"`
	UserID         string         `gorm:"type:varchar(36);not null;index" json:"user_id"`
	ProofText      string         `gorm:"type:text" json:"proof_text"`
	ProofFileURL   string         `json:"proof_file_url"`
	ProofFileType  string         `gorm:"size:64" json:"proof_file_type"`
	Status         Status         `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	ApprovalCount  int            `gorm:"not null;default:0" json:"approval_count"`
	RejectionCount int            `gorm:"not null;default:0" json:"rejection_count"`
	Version        int            `gorm:"not null;default:0" json:"version"`
	SubmittedAt    time.Time      `json:"submitted_at"`
	ReviewedAt     *time.Time     `json:"reviewed_at"`
	ReviewSnapshot datatypes.JSON `json:"review_snapshot,omitempty"`
}

func (Submission) TableName() string {
	return "quest_submissions"
}

func (s *Submission) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = StatusPending
	}
	return nil
}

// Counters returns the tally as stored on the submission row.
func (s *Submission) Counters() Tally {
	return Tally{Approvals: s.ApprovalCount, Rejections: s.RejectionCount}
}

// Rating is one ledger entry. (submission_id, rated_by) is unique.
type Rating struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	SubmissionID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_quest_ratings_once" json:"submission_id"`
	RatedBy      string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_quest_ratings_once" json:"rated_by"`
	Verdict      Verdict   `gorm:"column:rating;type:varchar(16);not null" json:"rating"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Rating) TableName() string {
	return "quest_ratings"
}

func (r *Rating) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// RewardGrant marks the one-time payout for a completed submission.
type RewardGrant struct {
	SubmissionID string    `gorm:"type:varchar(36);primaryKey" json:"submission_id"`
	UserID       string    `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Points       int       `gorm:"not null" json:"points"`
	GrantedAt    time.Time `gorm:"not null" json:"granted_at"`
}

func (RewardGrant) TableName() string {
	return "quest_rewards"
}

// Snapshot is persisted on a submission when it leaves pending.
type Snapshot struct {
	Approvals         int     `json:"approvals"`
	Rejections        int     `json:"rejections"`
	ApprovalRate      float64 `json:"approval_rate"`
	MemberCount       int     `json:"member_count"`
	Quorum            int     `json:"quorum"`
	ApprovalThreshold float64 `json:"approval_threshold"`
	Outcome           Status  `json:"outcome"`
}

// RewardResult describes the payout made by the call that completed a submission.
type RewardResult struct {
	UserID        string `json:"user_id"`
	PointsAwarded int    `json:"points_awarded"`
	QuestPoints   int    `json:"quest_points"`
	Level         int    `json:"level"`
}

// SubmissionView is what the gateway hands back to callers.
type SubmissionView struct {
	Submission
	ApprovalRate float64       `json:"approval_rate"`
	Quorum       int           `json:"quorum"`
	MyRating     Verdict       `json:"my_rating,omitempty"`
	Reward       *RewardResult `json:"reward,omitempty"`
}
