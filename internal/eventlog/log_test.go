package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flitsinc/agentboard/internal/agents"
	"github.com/flitsinc/agentboard/internal/state"
	"github.com/flitsinc/agentboard/internal/testutil"
)

func TestAppendCreatesPlaceholderAgent(t *testing.T) {
	store, _ := testutil.OpenTestStore(t)
	ctx := context.Background()
	log := NewLog(store, nil)

	evt, err := log.Append(ctx, Input{AgentID: "newcomer", Type: TypeThought, Message: "hello", Metadata: Metadata{"mood": "curious"}})
	require.NoError(t, err)
	assert.NotZero(t, evt.ID)
	assert.Len(t, evt.UID, 26)
	assert.Equal(t, store.Now(), evt.CreatedAt)

	agent, err := agents.Load(ctx, store.DB(), "newcomer")
	require.NoError(t, err)
	assert.Equal(t, "newcomer", agent.Name)
	assert.Equal(t, agents.PlaceholderRole, agent.Role)
	assert.Equal(t, agents.StatusOffline, agent.Status)

	items, err := log.Recent(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "newcomer", items[0].AgentName)
	assert.Equal(t, Metadata{"mood": "curious"}, items[0].Metadata)
}

func TestAppendValidatesRequiredFields(t *testing.T) {
	store, _ := testutil.OpenTestStore(t)
	log := NewLog(store, nil)

	_, err := log.Append(context.Background(), Input{AgentID: "main"})
	require.ErrorIs(t, err, state.ErrValidation)
	assert.Contains(t, err.Error(), "type and message")
}

func TestAppendDefaultsMetadataToEmptyObject(t *testing.T) {
	store, _ := testutil.OpenTestStore(t)
	ctx := context.Background()
	log := NewLog(store, nil)

	_, err := log.Append(ctx, Input{AgentID: "main", Type: "note", Message: "m"})
	require.NoError(t, err)

	var raw string
	require.NoError(t, store.DB().QueryRowContext(ctx, `SELECT metadata FROM events`).Scan(&raw))
	assert.Equal(t, "{}", raw)
}

func TestMalformedMetadataReadsAsEmpty(t *testing.T) {
	store, _ := testutil.OpenTestStore(t)
	ctx := context.Background()
	log := NewLog(store, nil)

	_, err := log.Append(ctx, Input{AgentID: "main", Type: "note", Message: "m"})
	require.NoError(t, err)
	_, err = store.DB().ExecContext(ctx, `UPDATE events SET metadata = '{broken'`)
	require.NoError(t, err)

	items, err := log.Recent(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, Metadata{}, items[0].Metadata)
}

func TestRecentOrderingFilterAndPaging(t *testing.T) {
	store, clock := testutil.OpenTestStore(t)
	ctx := context.Background()
	log := NewLog(store, nil)

	for i, agent := range []string{"main", "writer", "main", "writer", "main"} {
		clock.Advance(time.Second)
		_, err := log.Append(ctx, Input{AgentID: agent, Type: "note", Message: string(rune('a' + i))})
		require.NoError(t, err)
	}

	all, err := log.Recent(ctx, Query{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "e", all[0].Message)
	assert.Equal(t, "a", all[4].Message)

	page, err := log.Recent(ctx, Query{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "d", page[0].Message)
	assert.Equal(t, "c", page[1].Message)

	mains, err := log.Recent(ctx, Query{AgentID: "main"})
	require.NoError(t, err)
	require.Len(t, mains, 3)
	for _, e := range mains {
		assert.Equal(t, "main", e.AgentID)
	}
}

func TestRecentBreaksTimestampTiesByID(t *testing.T) {
	store, _ := testutil.OpenTestStore(t)
	ctx := context.Background()
	log := NewLog(store, nil)

	first, err := log.Append(ctx, Input{AgentID: "main", Type: "note", Message: "first"})
	require.NoError(t, err)
	second, err := log.Append(ctx, Input{AgentID: "main", Type: "note", Message: "second"})
	require.NoError(t, err)
	require.Equal(t, first.CreatedAt, second.CreatedAt)

	items, err := log.Recent(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, second.ID, items[0].ID)
}

func TestWindowExcludesOldEvents(t *testing.T) {
	store, clock := testutil.OpenTestStore(t)
	ctx := context.Background()
	log := NewLog(store, nil)

	start := clock.Now()
	_, err := log.Append(ctx, Input{AgentID: "main", Type: "note", Message: "old"})
	require.NoError(t, err)

	clock.Advance(5 * time.Hour)
	_, err = log.Append(ctx, Input{AgentID: "main", Type: "note", Message: "fresh"})
	require.NoError(t, err)

	now := start.Add(7 * time.Hour)
	window, err := log.Window(ctx, now, 6, 30)
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "fresh", window[0].Message)

	all, err := log.Recent(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestWindowCapsResults(t *testing.T) {
	store, clock := testutil.OpenTestStore(t)
	ctx := context.Background()
	log := NewLog(store, nil)

	for i := 0; i < 40; i++ {
		clock.Advance(time.Second)
		_, err := log.Append(ctx, Input{AgentID: "main", Type: "note", Message: "tick"})
		require.NoError(t, err)
	}

	window, err := log.Window(ctx, clock.Now(), 6, 30)
	require.NoError(t, err)
	assert.Len(t, window, 30)
	assert.Equal(t, clock.Now(), window[0].CreatedAt)
}

func TestRecordStatusAppendsStatusChange(t *testing.T) {
	store, _ := testutil.OpenTestStore(t)
	ctx := context.Background()
	log := NewLog(store, nil)

	working := agents.StatusWorking
	agent, evt, err := log.RecordStatus(ctx, "engineering", agents.Update{Status: &working, CurrentTask: state.Some("build api")})
	require.NoError(t, err)
	assert.Equal(t, agents.StatusWorking, agent.Status)
	require.NotNil(t, evt)
	assert.Equal(t, TypeStatusChange, evt.Type)
	assert.Equal(t, "Status: working — build api", evt.Message)

	name := "Donatello"
	_, evt, err = log.RecordStatus(ctx, "engineering", agents.Update{Name: &name})
	require.NoError(t, err)
	assert.Nil(t, evt)

	items, err := log.Recent(ctx, Query{AgentID: "engineering"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Donatello", items[0].AgentName)
}

func TestRecordStatusInvalidStatusWritesNothing(t *testing.T) {
	store, _ := testutil.OpenTestStore(t)
	ctx := context.Background()
	log := NewLog(store, nil)

	bogus := agents.Status("asleep")
	_, _, err := log.RecordStatus(ctx, "engineering", agents.Update{Status: &bogus})
	require.ErrorIs(t, err, state.ErrValidation)

	_, err = agents.Load(ctx, store.DB(), "engineering")
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestStatusMessage(t *testing.T) {
	task := "review"
	assert.Equal(t, "Status: idle", StatusMessage(agents.StatusIdle, nil))
	assert.Equal(t, "Status: working — review", StatusMessage(agents.StatusWorking, &task))
}
