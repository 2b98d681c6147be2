package agents

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flitsinc/agentboard/internal/state"
	"github.com/flitsinc/agentboard/internal/testutil"
)

func ptr[T any](v T) *T { return &v }

func TestSeedIsIdempotentAndResyncsNames(t *testing.T) {
	store, clock := testutil.OpenTestStore(t)
	ctx := context.Background()

	reg := NewRegistry(store, nil, nil)
	require.NoError(t, reg.Seed(ctx))

	main, err := reg.Get(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, "Winston", main.Name)
	assert.Equal(t, StatusIdle, main.Status)

	eng, err := reg.Get(ctx, "engineering")
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, eng.Status)

	clock.Advance(time.Minute)
	_, err = reg.Upsert(ctx, "engineering", Update{
		Name:        ptr("Donnie"),
		Status:      ptr(StatusWorking),
		CurrentTask: state.Some("ship it"),
	})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	require.NoError(t, reg.Seed(ctx))

	eng, err = reg.Get(ctx, "engineering")
	require.NoError(t, err)
	assert.Equal(t, "Donatello", eng.Name)
	assert.Equal(t, "Full-Stack Dev Lead", eng.Role)
	assert.Equal(t, StatusWorking, eng.Status)
	require.NotNil(t, eng.CurrentTask)
	assert.Equal(t, "ship it", *eng.CurrentTask)
}

func TestSeedKeepsTimestampWhenRosterUnchanged(t *testing.T) {
	store, clock := testutil.OpenTestStore(t)
	ctx := context.Background()
	reg := NewRegistry(store, nil, nil)
	require.NoError(t, reg.Seed(ctx))

	before, err := reg.Get(ctx, "legal")
	require.NoError(t, err)

	clock.Advance(time.Hour)
	require.NoError(t, reg.Seed(ctx))

	after, err := reg.Get(ctx, "legal")
	require.NoError(t, err)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestListActiveFollowsRosterOrder(t *testing.T) {
	store, _ := testutil.OpenTestStore(t)
	ctx := context.Background()

	roster := Roster{
		{ID: "zeta", Name: "Zeta", Role: "Last"},
		{ID: "alpha", Name: "Alpha", Role: "First"},
	}
	reg := NewRegistry(store, roster, nil)
	require.NoError(t, reg.Seed(ctx))

	_, err := reg.Upsert(ctx, "retired", Update{Status: ptr(StatusIdle)})
	require.NoError(t, err)

	list, err := reg.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "zeta", list[0].ID)
	assert.Equal(t, "alpha", list[1].ID)

	retired, err := reg.Get(ctx, "retired")
	require.NoError(t, err)
	assert.Equal(t, "retired", retired.Name)
	assert.Equal(t, PlaceholderRole, retired.Role)
}

func TestUpsertDefaultsAndPartialUpdates(t *testing.T) {
	store, clock := testutil.OpenTestStore(t)
	ctx := context.Background()
	reg := NewRegistry(store, Roster{}, nil)

	created, err := reg.Upsert(ctx, "scout", Update{})
	require.NoError(t, err)
	assert.Equal(t, "scout", created.Name)
	assert.Equal(t, PlaceholderRole, created.Role)
	assert.Equal(t, StatusOffline, created.Status)
	assert.Nil(t, created.CurrentTask)

	clock.Advance(time.Minute)
	updated, err := reg.Upsert(ctx, "scout", Update{Status: ptr(StatusWorking), CurrentTask: state.Some("mapping")})
	require.NoError(t, err)
	assert.Equal(t, "scout", updated.Name)
	assert.Equal(t, StatusWorking, updated.Status)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	clock.Advance(time.Minute)
	renamed, err := reg.Upsert(ctx, "scout", Update{Role: ptr("Scout")})
	require.NoError(t, err)
	assert.Equal(t, "Scout", renamed.Role)
	assert.Equal(t, StatusWorking, renamed.Status)
	require.NotNil(t, renamed.CurrentTask)
	assert.Equal(t, "mapping", *renamed.CurrentTask)

	cleared, err := reg.Upsert(ctx, "scout", Update{Status: ptr(StatusIdle), CurrentTask: state.Null[string]()})
	require.NoError(t, err)
	assert.Nil(t, cleared.CurrentTask)

	stored, err := reg.Get(ctx, "scout")
	require.NoError(t, err)
	assert.Equal(t, cleared, stored)
}

func TestUpsertRejectsUnknownStatus(t *testing.T) {
	store, _ := testutil.OpenTestStore(t)
	reg := NewRegistry(store, Roster{}, nil)

	_, err := reg.Upsert(context.Background(), "scout", Update{Status: ptr(Status("sleeping"))})
	assert.ErrorIs(t, err, state.ErrValidation)

	_, err = reg.Upsert(context.Background(), " ", Update{})
	assert.ErrorIs(t, err, state.ErrValidation)
}

func TestGetMissingAgent(t *testing.T) {
	store, _ := testutil.OpenTestStore(t)
	reg := NewRegistry(store, Roster{}, nil)

	_, err := reg.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestEffectiveStatusStaleness(t *testing.T) {
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	agent := Agent{ID: "engineering", Status: StatusWorking, CurrentTask: ptr("X"), UpdatedAt: updated}

	status, task := EffectiveStatus(agent, updated.Add(21*time.Minute))
	assert.Equal(t, StatusIdle, status)
	assert.Nil(t, task)

	status, task = EffectiveStatus(agent, updated.Add(19*time.Minute))
	assert.Equal(t, StatusWorking, status)
	require.NotNil(t, task)
	assert.Equal(t, "X", *task)

	// exactly at the threshold is not yet stale
	status, _ = EffectiveStatus(agent, updated.Add(StaleThreshold))
	assert.Equal(t, StatusWorking, status)

	agent.Status = StatusActive
	status, _ = EffectiveStatus(agent, updated.Add(time.Hour))
	assert.Equal(t, StatusIdle, status)

	agent.Status = StatusWaiting
	status, task = EffectiveStatus(agent, updated.Add(time.Hour))
	assert.Equal(t, StatusWaiting, status)
	assert.Equal(t, "X", *task)
}

func TestStalenessLeavesStoredRecordAlone(t *testing.T) {
	store, clock := testutil.OpenTestStore(t)
	ctx := context.Background()
	reg := NewRegistry(store, Roster{}, nil)

	_, err := reg.Upsert(ctx, "engineering", Update{Status: ptr(StatusWorking), CurrentTask: state.Some("X")})
	require.NoError(t, err)

	now := clock.Advance(21 * time.Minute)
	stored, err := reg.Get(ctx, "engineering")
	require.NoError(t, err)

	status, _ := EffectiveStatus(stored, now)
	assert.Equal(t, StatusIdle, status)

	again, err := reg.Get(ctx, "engineering")
	require.NoError(t, err)
	assert.Equal(t, StatusWorking, again.Status)
	require.NotNil(t, again.CurrentTask)
	assert.Equal(t, "X", *again.CurrentTask)
}

func TestConcurrentUpsertsLastWriteWins(t *testing.T) {
	store, _ := testutil.OpenTestStore(t)
	ctx := context.Background()
	reg := NewRegistry(store, nil, nil)
	require.NoError(t, reg.Seed(ctx))

	const writers = 20
	tasks := make(map[string]bool, writers)
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		task := fmt.Sprintf("task-%d", i)
		tasks[task] = true
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Upsert(ctx, "engineering", Update{Status: ptr(StatusWorking), CurrentTask: state.Some(task)})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := reg.Get(ctx, "engineering")
	require.NoError(t, err)
	assert.Equal(t, StatusWorking, stored.Status)
	assert.Equal(t, "Donatello", stored.Name)
	require.NotNil(t, stored.CurrentTask)
	assert.True(t, tasks[*stored.CurrentTask], *stored.CurrentTask)
}
