package live

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"guildquest/internal/review"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "channel closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func assertQuiet(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFilter_Match(t *testing.T) {
	e := Event{Table: TableQuests, GuildID: "g1"}
	assert.True(t, Filter{}.Match(e))
	assert.True(t, Filter{GuildID: "g1"}.Match(e))
	assert.False(t, Filter{GuildID: "g2"}.Match(e))
	assert.True(t, Filter{Tables: []string{TableMessages, TableQuests}}.Match(e))
	assert.False(t, Filter{GuildID: "g1", Tables: []string{TableMessages}}.Match(e))
}

func TestMemoryBus_DeliversMatchingEvents(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g1, err := bus.Subscribe(ctx, Filter{GuildID: "g1"})
	require.NoError(t, err)
	all, err := bus.Subscribe(ctx, Filter{})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, Event{Table: TableMessages, GuildID: "g2", RecordID: "m1"}))
	require.NoError(t, bus.Publish(ctx, Event{Table: TableQuests, GuildID: "g1", RecordID: "q1"}))

	assert.Equal(t, "q1", recv(t, g1).RecordID)
	assertQuiet(t, g1)
	assert.Equal(t, "m1", recv(t, all).RecordID)
	assert.Equal(t, "q1", recv(t, all).RecordID)
}

func TestMemoryBus_CancelClosesChannel(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

func TestMemoryBus_Closed(t *testing.T) {
	bus := NewMemoryBus()
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(context.Background(), Event{}), ErrBusClosed)
	_, err := bus.Subscribe(context.Background(), Filter{})
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestPublisher_SubmissionChanged(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := bus.Subscribe(ctx, Filter{Tables: []string{TableSubmissions}})
	require.NoError(t, err)

	p := NewPublisher(bus, zaptest.NewLogger(t))
	p.SubmissionChanged(ctx, review.Submission{ID: "s1", GuildID: "g1", Status: review.StatusCompleted}, review.ActionUpdate)

	e := recv(t, ch)
	assert.Equal(t, "s1", e.RecordID)
	assert.Equal(t, "g1", e.GuildID)
	assert.Equal(t, review.ActionUpdate, e.Action)
	assert.Contains(t, string(e.Record), `"status":"completed"`)
}

func TestPublisher_ClosedBusDoesNotFail(t *testing.T) {
	bus := NewMemoryBus()
	require.NoError(t, bus.Close())
	p := NewPublisher(bus, zaptest.NewLogger(t))
	p.Publish(context.Background(), TableMessages, review.ActionInsert, "g1", "m1", map[string]string{"content": "hi"})

	var nilPub *Publisher
	nilPub.Publish(context.Background(), TableMessages, review.ActionInsert, "g1", "m1", nil)
}

// Only runs when a Redis server is reachable, e.g. TEST_REDIS_ADDR=localhost:6379.
func TestRedisBus_RoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run Redis pub/sub test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	defer rdb.Close()

	bus := NewRedisBus(rdb, zaptest.NewLogger(t))
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, Filter{GuildID: "g1"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, Event{Table: TableQuests, GuildID: "g2", RecordID: "other"}))
	require.NoError(t, bus.Publish(ctx, Event{Table: TableQuests, GuildID: "g1", RecordID: "mine"}))

	assert.Equal(t, "mine", recv(t, ch).RecordID)
	cancel()
	for range ch {
	}
}
