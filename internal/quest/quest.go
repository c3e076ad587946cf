package quest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"guildquest/internal/dbutil"
)

type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	return d == Easy || d == Medium || d == Hard
}

type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

var (
	ErrQuestNotFound     = errors.New("quest not found")
	ErrInvalidDifficulty = errors.New("difficulty must be easy, medium or hard")
	ErrMissingDetails    = errors.New("quest title and description are required")
)

// PointTable maps difficulty to the quest points awarded on completion.
type PointTable struct {
	Easy   int
	Medium int
	Hard   int
}

// DefaultPoints are the stock 10/25/50 rewards.
var DefaultPoints = PointTable{Easy: 10, Medium: 25, Hard: 50}

func (p PointTable) For(d Difficulty) (int, error) {
	switch d {
	case Easy:
		return p.Easy, nil
	case Medium:
		return p.Medium, nil
	case Hard:
		return p.Hard, nil
	}
	return 0, ErrInvalidDifficulty
}

// Quest is a guild task. Points are fixed at creation; later edits touch only Status.
type Quest struct {
	ID              string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	GuildID         string     `gorm:"column:group_id;type:varchar(36);not null;index" json:"group_id"`
	CreatedBy       string     `gorm:"type:varchar(36)" json:"created_by"`
	Title           string     `gorm:"size:128;not null" json:"title"`
	Description     string     `gorm:"type:text;not null" json:"description"`
	Difficulty      Difficulty `gorm:"type:varchar(8);not null" json:"difficulty"`
	Points          int        `gorm:"not null" json:"points"`
	Status          Status     `gorm:"type:varchar(16);not null;default:'active';index" json:"status"`
	Deadline        *time.Time `json:"deadline"`
	IsAutoGenerated bool       `gorm:"not null;default:false" json:"is_auto_generated"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (q *Quest) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.Status == "" {
		q.Status = StatusActive
	}
	return nil
}

// NewQuest holds the caller-supplied fields of a quest.
type NewQuest struct {
	GuildID     string
	CreatedBy   string
	Title       string
	Description string
	Difficulty  Difficulty
	Deadline    *time.Time
}

// Create validates n, prices it from the point table and stores it as active.
func Create(ctx context.Context, db *gorm.DB, points PointTable, n NewQuest) (*Quest, error) {
	n.Title = strings.TrimSpace(n.Title)
	n.Description = strings.TrimSpace(n.Description)
	if n.Title == "" || n.Description == "" {
		return nil, ErrMissingDetails
	}
	if n.Difficulty == "" {
		n.Difficulty = Medium
	}
	pts, err := points.For(n.Difficulty)
	if err != nil {
		return nil, err
	}
	q := &Quest{
		GuildID:     n.GuildID,
		CreatedBy:   n.CreatedBy,
		Title:       n.Title,
		Description: n.Description,
		Difficulty:  n.Difficulty,
		Points:      pts,
		Status:      StatusActive,
		Deadline:    n.Deadline,
	}
	if err := db.WithContext(ctx).Create(q).Error; err != nil {
		return nil, fmt.Errorf("create quest: %w", err)
	}
	return q, nil
}

func Get(ctx context.Context, db *gorm.DB, id string) (*Quest, error) {
	var q Quest
	if err := db.WithContext(ctx).First(&q, "id = ?", id).Error; err != nil {
		if dbutil.IsNotFound(err) {
			return nil, ErrQuestNotFound
		}
		return nil, err
	}
	return &q, nil
}

// ListActive returns a guild's active quests, newest first.
func ListActive(ctx context.Context, db *gorm.DB, guildID string) ([]Quest, error) {
	var quests []Quest
	err := db.WithContext(ctx).
		Where("group_id = ? AND status = ?", guildID, StatusActive).
		Order("created_at desc").
		Find(&quests).Error
	return quests, err
}

// Archive moves the quest out of the active list. Archiving twice is a no-op.
func Archive(ctx context.Context, db *gorm.DB, id string) (*Quest, error) {
	q, err := Get(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if q.Status == StatusArchived {
		return q, nil
	}
	if err := db.WithContext(ctx).Model(&Quest{}).Where("id = ?", q.ID).Update("status", StatusArchived).Error; err != nil {
		return nil, err
	}
	q.Status = StatusArchived
	return q, nil
}
