package user

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// PointsPerLevel is the quest-point width of one level.
const PointsPerLevel = 100

// User is a member profile. QuestPoints and Level are only written together.
type User struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:32;not null" json:"username"`
	PasswordHash string    `gorm:"size:128;not null" json:"-"`
	Role         Role      `gorm:"type:varchar(10);not null;default:'user'" json:"role"`
	Bio          string    `gorm:"type:text" json:"bio"`
	AvatarURL    string    `json:"avatar_url"`
	QuestPoints  int       `gorm:"not null;default:0" json:"quest_points"`
	Level        int       `gorm:"not null;default:1" json:"level"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.QuestPoints < 0 {
		u.QuestPoints = 0
	}
	u.Level = LevelFor(u.QuestPoints)
	return nil
}

// LevelFor returns floor(points/100)+1. Negative input is treated as zero.
func LevelFor(points int) int {
	if points < 0 {
		points = 0
	}
	return points/PointsPerLevel + 1
}

// Public is the profile shape returned to other members.
func (u *User) Public() map[string]any {
	return map[string]any{
		"id":           u.ID,
		"username":     u.Username,
		"role":         u.Role,
		"bio":          u.Bio,
		"avatar_url":   u.AvatarURL,
		"quest_points": u.QuestPoints,
		"level":        u.Level,
		"createdAt":    u.CreatedAt,
	}
}

func HashPassword(pw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, pw string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw))
}
