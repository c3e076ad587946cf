package guild

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"guildquest/internal/user"
)

func setupGuildDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&user.User{}, &Guild{}, &Member{}, &QuestMasterTerm{}))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, name string) *user.User {
	t.Helper()
	u := &user.User{Username: name, PasswordHash: "hash", Role: user.RoleUser}
	require.NoError(t, db.Create(u).Error)
	return u
}

func TestCreate_EnrollsCreatorAsAdmin(t *testing.T) {
	db := setupGuildDB(t)
	ctx := context.Background()
	owner := seedUser(t, db, "owner")

	g := &Guild{Name: "Night Owls"}
	require.NoError(t, Create(ctx, db, g, owner.ID, 25))
	assert.NotEmpty(t, g.ID)
	assert.Equal(t, 25, g.MemberLimit)
	assert.Equal(t, "public", g.Privacy)

	m, err := Membership(ctx, db, g.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, m.Role)

	n, err := MemberCount(ctx, db, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestJoin(t *testing.T) {
	db := setupGuildDB(t)
	ctx := context.Background()
	owner := seedUser(t, db, "owner")
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	g := &Guild{Name: "Small", MemberLimit: 2}
	require.NoError(t, Create(ctx, db, g, owner.ID, 50))

	m, err := Join(ctx, db, g.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, RoleMember, m.Role)

	_, err = Join(ctx, db, g.ID, alice.ID)
	assert.ErrorIs(t, err, ErrAlreadyMember)

	_, err = Join(ctx, db, g.ID, bob.ID)
	assert.ErrorIs(t, err, ErrGuildFull)

	_, err = Join(ctx, db, uuid.NewString(), bob.ID)
	assert.ErrorIs(t, err, ErrGuildNotFound)
}

func TestLeave(t *testing.T) {
	db := setupGuildDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	owner := seedUser(t, db, "owner")
	alice := seedUser(t, db, "alice")

	g := &Guild{Name: "Leavers"}
	require.NoError(t, Create(ctx, db, g, owner.ID, 50))
	_, err := Join(ctx, db, g.ID, alice.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, Leave(ctx, db, g.ID, owner.ID, now), ErrAdminCannotLeave)

	require.NoError(t, AppointQuestMaster(ctx, db, g.ID, owner.ID, alice.ID, now))
	require.NoError(t, Leave(ctx, db, g.ID, alice.ID, now.Add(time.Hour)))

	_, err = Membership(ctx, db, g.ID, alice.ID)
	assert.ErrorIs(t, err, ErrNotMember)
	assert.ErrorIs(t, Leave(ctx, db, g.ID, alice.ID, now), ErrNotMember)

	terms, err := QuestMasterHistory(ctx, db, g.ID)
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.NotNil(t, terms[0].EndedAt, "leaving closes the quest master term")
}

func TestAppointQuestMaster(t *testing.T) {
	db := setupGuildDB(t)
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	owner := seedUser(t, db, "owner")
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	g := &Guild{Name: "Council"}
	require.NoError(t, Create(ctx, db, g, owner.ID, 50))
	for _, u := range []*user.User{alice, bob} {
		_, err := Join(ctx, db, g.ID, u.ID)
		require.NoError(t, err)
	}

	assert.ErrorIs(t, AppointQuestMaster(ctx, db, g.ID, alice.ID, bob.ID, start), ErrForbidden)
	assert.ErrorIs(t, AppointQuestMaster(ctx, db, g.ID, owner.ID, owner.ID, start), ErrInvalidAppointee)

	require.NoError(t, AppointQuestMaster(ctx, db, g.ID, owner.ID, alice.ID, start))
	require.NoError(t, AppointQuestMaster(ctx, db, g.ID, owner.ID, bob.ID, start.Add(24*time.Hour)))

	a, err := Membership(ctx, db, g.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, RoleMember, a.Role)
	b, err := Membership(ctx, db, g.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, RoleQuestMaster, b.Role)
	assert.True(t, b.Role.CanManageQuests())

	terms, err := QuestMasterHistory(ctx, db, g.ID)
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, bob.ID, terms[0].UserID)
	assert.Nil(t, terms[0].EndedAt)
	assert.Equal(t, alice.ID, terms[1].UserID)
	assert.NotNil(t, terms[1].EndedAt)
}

func TestListAndMembers(t *testing.T) {
	db := setupGuildDB(t)
	ctx := context.Background()
	owner := seedUser(t, db, "owner")
	alice := seedUser(t, db, "alice")

	first := &Guild{Name: "First"}
	second := &Guild{Name: "Second"}
	require.NoError(t, Create(ctx, db, first, owner.ID, 50))
	require.NoError(t, Create(ctx, db, second, owner.ID, 50))
	_, err := Join(ctx, db, first.ID, alice.ID)
	require.NoError(t, err)
	require.NoError(t, db.Model(&user.User{}).Where("id = ?", alice.ID).Update("quest_points", 120).Error)

	list, err := List(ctx, db, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	byID := map[string]Summary{}
	for _, s := range list {
		byID[s.ID] = s
	}
	assert.EqualValues(t, 2, byID[first.ID].MemberCount)
	assert.True(t, byID[first.ID].IsMember)
	assert.EqualValues(t, 1, byID[second.ID].MemberCount)
	assert.False(t, byID[second.ID].IsMember)

	members, err := Members(ctx, db, first.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "alice", members[0].Username)
	assert.Equal(t, 120, members[0].QuestPoints)
	assert.Equal(t, RoleAdmin, members[1].Role)
}
