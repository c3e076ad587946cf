package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"guildquest/internal/dbutil"
)

// Room is one of a guild's two chat rooms.
type Room string

const (
	RoomNormal Room = "normal"
	RoomQuest  Room = "quest"
)

func (r Room) Valid() bool {
	return r == RoomNormal || r == RoomQuest
}

var (
	ErrEmptyMessage   = errors.New("message content or file is required")
	ErrMessageTooLong = errors.New("message is too long")
	ErrInvalidRoom    = errors.New("chatroom must be normal or quest")
	ErrNotFound       = errors.New("message not found")
	ErrNotAuthor      = errors.New("only the author can delete a message")
)

type Message struct {
	ID           string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	GuildID      string         `json:"group_id" gorm:"column:group_id;type:varchar(36);not null;index:idx_messages_room"`
	UserID       string         `json:"user_id" gorm:"type:varchar(36);not null"`
	ChatroomType Room           `json:"chatroom_type" gorm:"type:varchar(8);not null;default:'normal';index:idx_messages_room"`
	Content      string         `json:"content" gorm:"type:text"`
	FileURL      string         `json:"file_url"`
	FileType     string         `json:"file_type" gorm:"size:64"`
	CreatedAt    time.Time      `json:"created_at" gorm:"index"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.ChatroomType == "" {
		m.ChatroomType = RoomNormal
	}
	return nil
}

// View is a message with its author's public profile.
type View struct {
	Message
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// NewMessage is what a member posts.
type NewMessage struct {
	GuildID  string
	UserID   string
	Room     Room
	Content  string
	FileURL  string
	FileType string
}

// Validate trims n and enforces the content rules. maxChars <= 0 disables the cap.
func (n *NewMessage) Validate(maxChars int) error {
	if n.Room == "" {
		n.Room = RoomNormal
	}
	if !n.Room.Valid() {
		return ErrInvalidRoom
	}
	n.Content = strings.TrimSpace(n.Content)
	n.FileURL = strings.TrimSpace(n.FileURL)
	if n.Content == "" && n.FileURL == "" {
		return ErrEmptyMessage
	}
	if maxChars > 0 && utf8.RuneCountInString(n.Content) > maxChars {
		return ErrMessageTooLong
	}
	return nil
}

// Send validates and stores a message.
func Send(ctx context.Context, db *gorm.DB, n NewMessage, maxChars int) (*Message, error) {
	if err := n.Validate(maxChars); err != nil {
		return nil, err
	}
	m := &Message{
		GuildID:      n.GuildID,
		UserID:       n.UserID,
		ChatroomType: n.Room,
		Content:      n.Content,
		FileURL:      n.FileURL,
		FileType:     n.FileType,
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// History returns the latest limit messages of a room, oldest first.
func History(ctx context.Context, db *gorm.DB, guildID string, room Room, limit int) ([]View, error) {
	if !room.Valid() {
		return nil, ErrInvalidRoom
	}
	var rows []View
	q := db.WithContext(ctx).
		Model(&Message{}).
		Select("messages.*, users.username, users.avatar_url").
		Joins("LEFT JOIN users ON users.id = messages.user_id").
		Where("messages.group_id = ? AND messages.chatroom_type = ?", guildID, room).
		Order("messages.created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return Chronological(rows), nil
}

// Chronological reverses a newest-first page in place.
func Chronological(rows []View) []View {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows
}

// Delete soft-deletes a message. Only its author may delete it.
func Delete(ctx context.Context, db *gorm.DB, id, userID string) (*Message, error) {
	var m Message
	if err := db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if dbutil.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if m.UserID != userID {
		return nil, ErrNotAuthor
	}
	if err := db.WithContext(ctx).Delete(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}
