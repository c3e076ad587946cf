package guild

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"guildquest/internal/dbutil"
)

var (
	ErrGuildNotFound    = errors.New("guild not found")
	ErrGuildFull        = errors.New("guild has reached its member limit")
	ErrAlreadyMember    = errors.New("already a member of this guild")
	ErrNotMember        = errors.New("not a member of this guild")
	ErrForbidden        = errors.New("guild admin role required")
	ErrAdminCannotLeave = errors.New("guild admins cannot leave their guild")
	ErrInvalidAppointee = errors.New("only plain members can be appointed quest master")
)

// Create stores the guild and enrolls its creator as guild admin.
func Create(ctx context.Context, db *gorm.DB, g *Guild, creatorID string, defaultLimit int) error {
	if g.MemberLimit <= 0 {
		g.MemberLimit = defaultLimit
	}
	g.CreatedBy = creatorID
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(g).Error; err != nil {
			return fmt.Errorf("create guild: %w", err)
		}
		m := Member{GuildID: g.ID, UserID: creatorID, Role: RoleAdmin}
		if err := tx.Create(&m).Error; err != nil {
			return fmt.Errorf("enroll creator: %w", err)
		}
		return nil
	})
}

func Get(ctx context.Context, db *gorm.DB, guildID string) (*Guild, error) {
	var g Guild
	if err := db.WithContext(ctx).First(&g, "id = ?", guildID).Error; err != nil {
		if dbutil.IsNotFound(err) {
			return nil, ErrGuildNotFound
		}
		return nil, err
	}
	return &g, nil
}

// Join enrolls userID as a plain member, enforcing the member limit.
func Join(ctx context.Context, db *gorm.DB, guildID, userID string) (*Member, error) {
	var m Member
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var g Guild
		if err := dbutil.ForUpdate(tx).First(&g, "id = ?", guildID).Error; err != nil {
			if dbutil.IsNotFound(err) {
				return ErrGuildNotFound
			}
			return err
		}
		var existing int64
		if err := tx.Model(&Member{}).Where("group_id = ? AND user_id = ?", guildID, userID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyMember
		}
		var count int64
		if err := tx.Model(&Member{}).Where("group_id = ?", guildID).Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(g.MemberLimit) {
			return ErrGuildFull
		}
		m = Member{GuildID: guildID, UserID: userID, Role: RoleMember}
		if err := tx.Create(&m).Error; err != nil {
			if dbutil.IsUniqueViolation(err) {
				return ErrAlreadyMember
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Leave removes a non-admin member. A departing quest master's term is closed.
func Leave(ctx context.Context, db *gorm.DB, guildID, userID string, now time.Time) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := Membership(ctx, tx, guildID, userID)
		if err != nil {
			return err
		}
		if m.Role == RoleAdmin {
			return ErrAdminCannotLeave
		}
		if m.Role == RoleQuestMaster {
			if err := closeTerms(tx, guildID, now); err != nil {
				return err
			}
		}
		return tx.Delete(&Member{}, "id = ?", m.ID).Error
	})
}

// Membership returns the member row for (guildID, userID) or ErrNotMember.
func Membership(ctx context.Context, db *gorm.DB, guildID, userID string) (*Member, error) {
	var m Member
	err := db.WithContext(ctx).Where("group_id = ? AND user_id = ?", guildID, userID).First(&m).Error
	if err != nil {
		if dbutil.IsNotFound(err) {
			return nil, ErrNotMember
		}
		return nil, err
	}
	return &m, nil
}

// MemberCount is the guild size used for review quorum.
func MemberCount(ctx context.Context, db *gorm.DB, guildID string) (int, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&Member{}).Where("group_id = ?", guildID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// List returns every guild with its member count and whether userID belongs to it.
func List(ctx context.Context, db *gorm.DB, userID string) ([]Summary, error) {
	db = db.WithContext(ctx)
	var guilds []Guild
	if err := db.Order("created_at desc").Find(&guilds).Error; err != nil {
		return nil, err
	}

	var counts []struct {
		GuildID string
		Total   int64
	}
	if err := db.Model(&Member{}).
		Select("group_id AS guild_id, COUNT(*) AS total").
		Group("group_id").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	byGuild := make(map[string]int64, len(counts))
	for _, c := range counts {
		byGuild[c.GuildID] = c.Total
	}

	var mine []string
	if userID != "" {
		if err := db.Model(&Member{}).Where("user_id = ?", userID).Pluck("group_id", &mine).Error; err != nil {
			return nil, err
		}
	}
	isMine := make(map[string]bool, len(mine))
	for _, id := range mine {
		isMine[id] = true
	}

	out := make([]Summary, 0, len(guilds))
	for _, g := range guilds {
		out = append(out, Summary{Guild: g, MemberCount: byGuild[g.ID], IsMember: isMine[g.ID]})
	}
	return out, nil
}

// Members lists a guild's members with their profile stats, highest points first.
func Members(ctx context.Context, db *gorm.DB, guildID string) ([]MemberProfile, error) {
	var rows []MemberProfile
	err := db.WithContext(ctx).
		Table("group_members").
		Select("group_members.user_id, users.username, users.avatar_url, group_members.role, users.level, users.quest_points, group_members.joined_at").
		Joins("JOIN users ON users.id = group_members.user_id").
		Where("group_members.group_id = ?", guildID).
		Order("users.quest_points desc, users.username asc").
		Scan(&rows).Error
	return rows, err
}

// AppointQuestMaster hands the quest master role to targetID. Only a guild admin may
// appoint; the previous quest master goes back to plain member.
func AppointQuestMaster(ctx context.Context, db *gorm.DB, guildID, actorID, targetID string, now time.Time) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		actor, err := Membership(ctx, tx, guildID, actorID)
		if err != nil {
			return err
		}
		if actor.Role != RoleAdmin {
			return ErrForbidden
		}
		target, err := Membership(ctx, tx, guildID, targetID)
		if err != nil {
			return err
		}
		if target.Role == RoleQuestMaster {
			return nil
		}
		if target.Role != RoleMember {
			return ErrInvalidAppointee
		}
		if err := tx.Model(&Member{}).
			Where("group_id = ? AND role = ?", guildID, RoleQuestMaster).
			Update("role", RoleMember).Error; err != nil {
			return err
		}
		if err := closeTerms(tx, guildID, now); err != nil {
			return err
		}
		if err := tx.Model(&Member{}).Where("id = ?", target.ID).Update("role", RoleQuestMaster).Error; err != nil {
			return err
		}
		return tx.Create(&QuestMasterTerm{GuildID: guildID, UserID: targetID, StartedAt: now}).Error
	})
}

func closeTerms(tx *gorm.DB, guildID string, now time.Time) error {
	return tx.Model(&QuestMasterTerm{}).
		Where("group_id = ? AND ended_at IS NULL", guildID).
		Update("ended_at", now).Error
}

// QuestMasterHistory returns the guild's quest master terms, newest first.
func QuestMasterHistory(ctx context.Context, db *gorm.DB, guildID string) ([]QuestMasterTerm, error) {
	var terms []QuestMasterTerm
	err := db.WithContext(ctx).Where("group_id = ?", guildID).Order("started_at desc").Find(&terms).Error
	return terms, err
}
