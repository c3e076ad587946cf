// Package review runs peer review of quest submissions: the rating ledger, tally,
// completion policy and one-time reward payout behind a single entry point.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"guildquest/internal/dbutil"
	"guildquest/internal/guild"
	"guildquest/internal/quest"
)

// Change actions reported to a ChangeNotifier.
const (
	ActionInsert = "INSERT"
	ActionUpdate = "UPDATE"
)

// ChangeNotifier is told about committed submission changes. It must not block.
type ChangeNotifier interface {
	SubmissionChanged(ctx context.Context, s Submission, action string)
}

type Option func(*Gateway)

func WithNotifier(n ChangeNotifier) Option {
	return func(g *Gateway) { g.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// Gateway is the only entry point that mutates submissions, ratings and rewards.
type Gateway struct {
	db       *gorm.DB
	policy   Policy
	ledger   Ledger
	rewards  RewardDispatcher
	notifier ChangeNotifier
	now      func() time.Time
}

func NewGateway(db *gorm.DB, policy Policy, opts ...Option) *Gateway {
	g := &Gateway{db: db, policy: policy, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Gateway) Policy() Policy {
	return g.policy
}

// SubmitRequest is a member's proof for a quest.
type SubmitRequest struct {
	QuestID       string
	UserID        string
	ProofText     string
	ProofFileURL  string
	ProofFileType string
}

// Submit opens a pending submission. The submitter must belong to the quest's guild
// and may not hold another pending or completed submission for the same quest.
func (g *Gateway) Submit(ctx context.Context, req SubmitRequest) (*SubmissionView, error) {
	req.ProofText = strings.TrimSpace(req.ProofText)
	req.ProofFileURL = strings.TrimSpace(req.ProofFileURL)
	if req.ProofText == "" && req.ProofFileURL == "" {
		return nil, ErrMissingProof
	}

	var sub Submission
	var members int
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q, err := quest.Get(ctx, tx, req.QuestID)
		if err != nil {
			return err
		}
		if q.Status != quest.StatusActive {
			return ErrQuestNotActive
		}
		if _, err := guild.Membership(ctx, tx, q.GuildID, req.UserID); err != nil {
			if errors.Is(err, guild.ErrNotMember) {
				return ErrNotGuildMember
			}
			return err
		}
		var open int64
		if err := tx.Model(&Submission{}).
			Where("quest_id = ? AND user_id = ? AND status IN ?", q.ID, req.UserID, []Status{StatusPending, StatusCompleted}).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return ErrAlreadySubmitted
		}
		sub = Submission{
			QuestID:       q.ID,
			GuildID:       q.GuildID,
			UserID:        req.UserID,
			ProofText:     req.ProofText,
			ProofFileURL:  req.ProofFileURL,
			ProofFileType: req.ProofFileType,
			Status:        StatusPending,
			SubmittedAt:   g.now().UTC(),
		}
		if err := tx.Create(&sub).Error; err != nil {
			return err
		}
		members, err = guild.MemberCount(ctx, tx, q.GuildID)
		return err
	})
	if err != nil {
		return nil, classify("submit", err)
	}
	g.notify(ctx, sub, ActionInsert)
	return g.view(sub, members, ""), nil
}

// Rate records raterID's verdict on a pending submission and, within the same
// transaction, recomputes the tally from the ledger, applies the completion policy
// and credits the reward if the submission completes. Either everything commits or
// nothing does.
func (g *Gateway) Rate(ctx context.Context, submissionID, raterID string, v Verdict) (*SubmissionView, error) {
	if !v.Valid() {
		return nil, ErrInvalidVerdict
	}
	now := g.now().UTC()

	var out *SubmissionView
	var changed Submission
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := lockSubmission(ctx, tx, submissionID)
		if err != nil {
			return err
		}
		if sub.Status != StatusPending {
			return ErrSubmissionNotPending
		}
		if sub.UserID == raterID && !g.policy.AllowSelfRating {
			return ErrSelfRating
		}
		if _, err := guild.Membership(ctx, tx, sub.GuildID, raterID); err != nil {
			if errors.Is(err, guild.ErrNotMember) {
				return ErrNotGuildMember
			}
			return err
		}

		if _, err := g.ledger.Record(ctx, tx, sub.ID, raterID, v, now); err != nil {
			return err
		}
		tally, err := g.ledger.Tally(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		members, err := guild.MemberCount(ctx, tx, sub.GuildID)
		if err != nil {
			return err
		}
		next := g.policy.Decide(tally, members)
		if err := g.advance(ctx, tx, sub, tally, next, members, now); err != nil {
			return err
		}

		out = g.view(*sub, members, v)
		if next == StatusCompleted {
			reward, err := g.payout(ctx, tx, sub, now)
			if err != nil {
				return err
			}
			out.Reward = reward
		}
		changed = *sub
		return nil
	})
	if err != nil {
		return nil, classify("rate", err)
	}
	g.notify(ctx, changed, ActionUpdate)
	return out, nil
}

// Get loads a submission with viewerID's own verdict, if any.
func (g *Gateway) Get(ctx context.Context, submissionID, viewerID string) (*SubmissionView, error) {
	var sub Submission
	if err := g.db.WithContext(ctx).First(&sub, "id = ?", submissionID).Error; err != nil {
		if dbutil.IsNotFound(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, storageErr("load submission", err)
	}
	members, err := guild.MemberCount(ctx, g.db, sub.GuildID)
	if err != nil {
		return nil, storageErr("count members", err)
	}
	mine, err := g.ledger.VerdictsBy(ctx, g.db, viewerID, []string{sub.ID})
	if err != nil {
		return nil, err
	}
	return g.view(sub, members, mine[sub.ID]), nil
}

// GuildOf returns the guild a submission belongs to without building a view.
func (g *Gateway) GuildOf(ctx context.Context, submissionID string) (string, error) {
	var sub Submission
	if err := g.db.WithContext(ctx).Select("id", "group_id").First(&sub, "id = ?", submissionID).Error; err != nil {
		if dbutil.IsNotFound(err) {
			return "", ErrSubmissionNotFound
		}
		return "", storageErr("load submission", err)
	}
	return sub.GuildID, nil
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	GuildID  string
	QuestID  string
	UserID   string
	Status   Status
	ViewerID string
	Limit    int
}

// List returns submissions newest first.
func (g *Gateway) List(ctx context.Context, f Filter) ([]SubmissionView, error) {
	q := g.db.WithContext(ctx).Model(&Submission{})
	if f.GuildID != "" {
		q = q.Where("group_id = ?", f.GuildID)
	}
	if f.QuestID != "" {
		q = q.Where("quest_id = ?", f.QuestID)
	}
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var subs []Submission
	if err := q.Order("submitted_at desc").Find(&subs).Error; err != nil {
		return nil, storageErr("list submissions", err)
	}

	ids := make([]string, 0, len(subs))
	sizes := make(map[string]int)
	for _, s := range subs {
		ids = append(ids, s.ID)
		if _, ok := sizes[s.GuildID]; ok {
			continue
		}
		n, err := guild.MemberCount(ctx, g.db, s.GuildID)
		if err != nil {
			return nil, storageErr("count members", err)
		}
		sizes[s.GuildID] = n
	}
	mine, err := g.ledger.VerdictsBy(ctx, g.db, f.ViewerID, ids)
	if err != nil {
		return nil, err
	}

	out := make([]SubmissionView, 0, len(subs))
	for _, s := range subs {
		out = append(out, *g.view(s, sizes[s.GuildID], mine[s.ID]))
	}
	return out, nil
}

// Ratings returns the ledger of one submission.
func (g *Gateway) Ratings(ctx context.Context, submissionID string) ([]Rating, error) {
	return g.ledger.Ratings(ctx, g.db, submissionID)
}

// ReconcileReport describes what Reconcile found and repaired for one submission.
type ReconcileReport struct {
	SubmissionID  string        `json:"submission_id"`
	Stored        Tally         `json:"stored"`
	Ledger        Tally         `json:"ledger"`
	StatusBefore  Status        `json:"status_before"`
	StatusAfter   Status        `json:"status_after"`
	CountersFixed bool          `json:"counters_fixed"`
	Reward        *RewardResult `json:"reward,omitempty"`
}

// Changed reports whether Reconcile wrote anything.
func (r ReconcileReport) Changed() bool {
	return r.CountersFixed || r.StatusBefore != r.StatusAfter || r.Reward != nil
}

// Reconcile rebuilds a submission's counters from the ledger, resolves it if the
// ledger already meets quorum, and pays a missing reward for a completed submission.
// Running it on a consistent submission changes nothing.
func (g *Gateway) Reconcile(ctx context.Context, submissionID string) (*ReconcileReport, error) {
	now := g.now().UTC()
	var rep ReconcileReport
	var changed Submission
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := lockSubmission(ctx, tx, submissionID)
		if err != nil {
			return err
		}
		rep = ReconcileReport{SubmissionID: sub.ID, Stored: sub.Counters(), StatusBefore: sub.Status}
		tally, err := g.ledger.Tally(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		rep.Ledger = tally
		rep.CountersFixed = tally != sub.Counters()

		next := sub.Status
		members := 0
		if sub.Status == StatusPending {
			members, err = guild.MemberCount(ctx, tx, sub.GuildID)
			if err != nil {
				return err
			}
			next = g.policy.Decide(tally, members)
		}
		if rep.CountersFixed || next != sub.Status {
			if err := g.advance(ctx, tx, sub, tally, next, members, now); err != nil {
				return err
			}
		}
		rep.StatusAfter = sub.Status

		if sub.Status == StatusCompleted {
			granted, err := g.rewards.Granted(ctx, tx, sub.ID)
			if err != nil {
				return err
			}
			if !granted {
				if rep.Reward, err = g.payout(ctx, tx, sub, now); err != nil {
					return err
				}
			}
		}
		changed = *sub
		return nil
	})
	if err != nil {
		return nil, classify("reconcile", err)
	}
	if rep.Changed() {
		g.notify(ctx, changed, ActionUpdate)
	}
	return &rep, nil
}

// ReconcileAll runs Reconcile over every submission, optionally limited to one guild.
func (g *Gateway) ReconcileAll(ctx context.Context, guildID string) ([]ReconcileReport, error) {
	q := g.db.WithContext(ctx).Model(&Submission{})
	if guildID != "" {
		q = q.Where("group_id = ?", guildID)
	}
	var ids []string
	if err := q.Order("submitted_at asc").Pluck("id", &ids).Error; err != nil {
		return nil, storageErr("list submissions", err)
	}
	out := make([]ReconcileReport, 0, len(ids))
	for _, id := range ids {
		rep, err := g.Reconcile(ctx, id)
		if err != nil {
			return out, err
		}
		out = append(out, *rep)
	}
	return out, nil
}

func lockSubmission(ctx context.Context, tx *gorm.DB, id string) (*Submission, error) {
	var sub Submission
	if err := dbutil.ForUpdate(tx.WithContext(ctx)).First(&sub, "id = ?", id).Error; err != nil {
		if dbutil.IsNotFound(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, storageErr("load submission", err)
	}
	return &sub, nil
}

// advance writes tally and, when next differs from the current status, the
// transition. The write is conditional on the version read under lock, so a
// concurrent writer turns this into ErrSubmissionConflict instead of a lost update.
func (g *Gateway) advance(ctx context.Context, tx *gorm.DB, sub *Submission, t Tally, next Status, members int, now time.Time) error {
	updates := map[string]any{
		"approval_count":  t.Approvals,
		"rejection_count": t.Rejections,
		"version":         sub.Version + 1,
	}
	var snapshot datatypes.JSON
	if next != sub.Status {
		if !sub.Status.CanTransition(next) {
			return ErrInvalidTransition
		}
		raw, err := json.Marshal(g.policy.Snapshot(t, members, next))
		if err != nil {
			return err
		}
		snapshot = datatypes.JSON(raw)
		updates["status"] = next
		updates["reviewed_at"] = now
		updates["review_snapshot"] = snapshot
	}

	res := tx.WithContext(ctx).Model(&Submission{}).
		Where("id = ? AND status = ? AND version = ?", sub.ID, sub.Status, sub.Version).
		Updates(updates)
	if res.Error != nil {
		return storageErr("update submission", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSubmissionConflict
	}

	sub.ApprovalCount = t.Approvals
	sub.RejectionCount = t.Rejections
	sub.Version++
	if next != sub.Status {
		sub.Status = next
		sub.ReviewedAt = &now
		sub.ReviewSnapshot = snapshot
	}
	return nil
}

func (g *Gateway) payout(ctx context.Context, tx *gorm.DB, sub *Submission, now time.Time) (*RewardResult, error) {
	q, err := quest.Get(ctx, tx, sub.QuestID)
	if err != nil {
		return nil, errors.Join(ErrRewardApplicationFailed, err)
	}
	reward, err := g.rewards.Apply(ctx, tx, sub, q.Points, now)
	if err != nil {
		return nil, errors.Join(ErrRewardApplicationFailed, err)
	}
	return reward, nil
}

func (g *Gateway) view(s Submission, members int, mine Verdict) *SubmissionView {
	return &SubmissionView{
		Submission:   s,
		ApprovalRate: s.Counters().Rate(),
		Quorum:       g.policy.Quorum(members),
		MyRating:     mine,
	}
}

func (g *Gateway) notify(ctx context.Context, s Submission, action string) {
	if g.notifier != nil {
		g.notifier.SubmissionChanged(ctx, s, action)
	}
}
