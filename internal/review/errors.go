package review

import (
	"errors"
	"fmt"

	"guildquest/internal/quest"
)

var (
	ErrDuplicateRating         = errors.New("rater already rated this submission")
	ErrSubmissionNotFound      = errors.New("submission not found")
	ErrSubmissionNotPending    = errors.New("submission is no longer pending")
	ErrStorageUnavailable      = errors.New("storage unavailable")
	ErrRewardApplicationFailed = errors.New("reward application failed")

	ErrSubmissionConflict   = errors.New("submission changed concurrently")
	ErrSelfRating           = errors.New("members cannot rate their own submission")
	ErrNotGuildMember       = errors.New("rater is not a member of the submission's guild")
	ErrInvalidVerdict       = errors.New("verdict must be approved or rejected")
	ErrInvalidTransition    = errors.New("illegal submission status transition")
	ErrMissingProof         = errors.New("proof text or file is required")
	ErrQuestNotActive       = errors.New("quest is not active")
	ErrAlreadySubmitted     = errors.New("a pending or completed submission already exists for this quest")
	ErrRewardAlreadyApplied = errors.New("reward already granted for this submission")
	ErrMemberNotFound       = errors.New("submitting member not found")
)

// known are the errors that pass through the gateway untouched.
var known = []error{
	ErrDuplicateRating,
	ErrSubmissionNotFound,
	ErrSubmissionNotPending,
	ErrStorageUnavailable,
	ErrRewardApplicationFailed,
	ErrSubmissionConflict,
	ErrSelfRating,
	ErrNotGuildMember,
	ErrInvalidVerdict,
	ErrInvalidTransition,
	ErrMissingProof,
	ErrQuestNotActive,
	ErrAlreadySubmitted,
	ErrRewardAlreadyApplied,
	ErrMemberNotFound,
	quest.ErrQuestNotFound,
}

// IsRetryable reports whether the whole call may be repeated safely.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrSubmissionConflict)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// classify wraps anything that is not already a review error as ErrStorageUnavailable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, k := range known {
		if errors.Is(err, k) {
			return err
		}
	}
	return storageErr(op, err)
}
