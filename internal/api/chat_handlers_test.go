package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildquest/internal/chat"
	"guildquest/internal/user"
)

func TestSendAndListMessages(t *testing.T) {
	s := newTestServer(t)
	owner := seedUser(t, "owner", user.RoleUser)
	member := seedUser(t, "member", user.RoleUser)
	g := seedGuild(t, "Wardens", owner, member)
	path := "/guilds/" + g.ID + "/messages"
	ownerToken, memberToken := s.login(owner), s.login(member)

	w := s.do(http.MethodPost, path, ownerToken, SendMessageRequest{Room: chat.RoomNormal, Content: "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "empty_message", errorCode(t, w))

	w = s.do(http.MethodPost, path, ownerToken, SendMessageRequest{Room: "lobby", Content: "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_room", errorCode(t, w))

	w = s.do(http.MethodPost, path, ownerToken, SendMessageRequest{Content: strings.Repeat("x", s.cfg.Chat.MaxMessageChars+1)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "message_too_long", errorCode(t, w))

	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, path, ownerToken, SendMessageRequest{Content: "first"}).Code)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, path, memberToken, SendMessageRequest{Content: "second"}).Code)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, path, memberToken, SendMessageRequest{Room: chat.RoomQuest, Content: "quest talk"}).Code)

	w = s.do(http.MethodGet, path, memberToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	msgs := decode[[]chat.View](t, w)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "owner", msgs[0].Username)
	assert.Equal(t, "second", msgs[1].Content)

	w = s.do(http.MethodGet, path+"?room=quest", memberToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	quests := decode[[]chat.View](t, w)
	require.Len(t, quests, 1)
	assert.Equal(t, "quest talk", quests[0].Content)

	outsider := seedUser(t, "outsider", user.RoleUser)
	w = s.do(http.MethodGet, path, s.login(outsider), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDeleteMessageHandler(t *testing.T) {
	s := newTestServer(t)
	owner := seedUser(t, "owner", user.RoleUser)
	member := seedUser(t, "member", user.RoleUser)
	g := seedGuild(t, "Wardens", owner, member)
	path := "/guilds/" + g.ID + "/messages"

	w := s.do(http.MethodPost, path, s.login(member), SendMessageRequest{Content: "oops"})
	require.Equal(t, http.StatusCreated, w.Code)
	msg := decode[chat.Message](t, w)

	w = s.do(http.MethodDelete, "/messages/"+msg.ID, s.login(owner), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "not_author", errorCode(t, w))

	w = s.do(http.MethodDelete, "/messages/"+msg.ID, s.login(member), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodDelete, "/messages/"+msg.ID, s.login(member), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, path, s.login(member), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]chat.View](t, w))
}
