package guild

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleQuestMaster Role = "quest_master"
	RoleMember      Role = "member"
)

// CanManageQuests reports whether the role may create or archive quests.
func (r Role) CanManageQuests() bool {
	return r == RoleAdmin || r == RoleQuestMaster
}

type Guild struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name        string    `gorm:"size:64;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Category    string    `gorm:"size:32" json:"category"`
	Privacy     string    `gorm:"size:16;not null;default:'public'" json:"privacy"`
	AvatarURL   string    `json:"avatar_url"`
	MemberLimit int       `gorm:"not null;default:50" json:"member_limit"`
	CreatedBy   string    `gorm:"type:varchar(36);index" json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Guild) TableName() string {
	return "groups"
}

func (g *Guild) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.Privacy == "" {
		g.Privacy = "public"
	}
	return nil
}

// Member links a user to a guild. The row count per guild is the quorum base.
type Member struct {
	ID       string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	GuildID  string    `gorm:"column:group_id;type:varchar(36);not null;uniqueIndex:idx_guild_user" json:"group_id"`
	UserID   string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_guild_user;index" json:"user_id"`
	Role     Role      `gorm:"type:varchar(16);not null;default:'member'" json:"role"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

func (Member) TableName() string {
	return "group_members"
}

func (m *Member) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Role == "" {
		m.Role = RoleMember
	}
	return nil
}

// QuestMasterTerm records who held the quest master role and when.
type QuestMasterTerm struct {
	ID        string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	GuildID   string     `gorm:"column:group_id;type:varchar(36);not null;index" json:"group_id"`
	UserID    string     `gorm:"type:varchar(36);not null" json:"user_id"`
	StartedAt time.Time  `gorm:"not null" json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
}

func (QuestMasterTerm) TableName() string {
	return "quest_master_history"
}

func (t *QuestMasterTerm) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Summary is a guild row as listed to a user.
type Summary struct {
	Guild
	MemberCount int64 `json:"member_count"`
	IsMember    bool  `json:"is_member"`
}

// MemberProfile is a member row joined with the user's public profile.
type MemberProfile struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	AvatarURL   string    `json:"avatar_url"`
	Role        Role      `json:"role"`
	Level       int       `json:"level"`
	QuestPoints int       `json:"quest_points"`
	JoinedAt    time.Time `json:"joined_at"`
}
