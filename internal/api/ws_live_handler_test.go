package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"guildquest/internal/live"
	"guildquest/internal/user"
)

func TestWSLiveHandler_Rejects(t *testing.T) {
	s := newTestServer(t)
	owner := seedUser(t, "owner", user.RoleUser)
	outsider := seedUser(t, "outsider", user.RoleUser)
	g := seedGuild(t, "Wardens", owner)

	w := s.do(http.MethodGet, "/ws/live?guild_id="+g.ID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/ws/live?guild_id="+g.ID+"&token=garbage", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/ws/live?token="+s.login(owner), "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/ws/live?guild_id="+g.ID+"&token="+s.login(outsider), "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWSLiveHandler_StreamsGuildEvents(t *testing.T) {
	s := newTestServerWithLogger(t, zap.NewNop())
	owner := seedUser(t, "owner", user.RoleUser)
	member := seedUser(t, "member", user.RoleUser)
	g := seedGuild(t, "Wardens", owner, member)
	other := seedGuild(t, "Elsewhere", member)
	ownerToken, memberToken := s.login(owner), s.login(member)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/live?guild_id=" + g.ID + "&tables=messages&token=" + ownerToken
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/guilds/"+other.ID+"/messages", memberToken, SendMessageRequest{Content: "elsewhere"}).Code)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/guilds/"+g.ID+"/quests", ownerToken,
		CreateQuestRequest{Title: "Patrol", Description: "Walk the wall"}).Code)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/guilds/"+g.ID+"/messages", memberToken, SendMessageRequest{Content: "hello"}).Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var e live.Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, live.TableMessages, e.Table)
	assert.Equal(t, live.ActionInsert, e.Action)
	assert.Equal(t, g.ID, e.GuildID)
	assert.Contains(t, string(e.Record), "hello")
}
