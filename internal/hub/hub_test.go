package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"queue-system/internal/services"
	"queue-system/internal/status"
	"queue-system/internal/store"
	"queue-system/models"
)

func staticSnapshot(snap models.Snapshot) SnapshotFunc {
	return func(context.Context, models.ServiceScope) (models.Snapshot, error) {
		return snap, nil
	}
}

func mustScope(t *testing.T, tenant, server string) models.ServiceScope {
	t.Helper()
	scope, err := models.NewServiceScope(tenant, server)
	require.NoError(t, err)
	return scope
}

func readFrame(t *testing.T, sink *ChannelSink) models.Snapshot {
	t.Helper()
	select {
	case snap := <-sink.Snapshots():
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("no frame arrived")
		return models.Snapshot{}
	}
}

func TestHubSubscribeDeliversInitialSnapshot(t *testing.T) {
	scope := mustScope(t, "clinic_a", "desk1")
	base := models.Snapshot{ScopeID: scope.ID(), NowServingToken: 7, AvgServiceSeconds: 30}
	h := New(services.NewScopeLocker(), staticSnapshot(base), nil)

	sink := NewChannelSink(scope.ID(), 4)
	id, err := h.Subscribe(context.Background(), scope, nil, sink)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	frame := readFrame(t, sink)
	assert.Equal(t, 7, frame.NowServingToken)
	assert.Nil(t, frame.ViewerTicket)
	assert.Nil(t, frame.EstimatedWaitSeconds)
	assert.Equal(t, 1, h.SubscriberCount(scope.ID()))
}

func TestHubPersonalizesForViewer(t *testing.T) {
	scope := mustScope(t, "clinic_a", "desk1")
	base := models.Snapshot{ScopeID: scope.ID(), NowServingToken: 7, AvgServiceSeconds: 30}
	h := New(services.NewScopeLocker(), staticSnapshot(base), nil)

	ticket := 10
	sink := NewChannelSink(scope.ID(), 4)
	_, err := h.Subscribe(context.Background(), scope, &ticket, sink)
	require.NoError(t, err)

	frame := readFrame(t, sink)
	require.NotNil(t, frame.ViewerTicket)
	assert.Equal(t, 10, *frame.ViewerTicket)
	require.NotNil(t, frame.EstimatedWaitSeconds)
	assert.Equal(t, 90, *frame.EstimatedWaitSeconds, "3 tickets ahead at 30s each")
}

func TestHubPublishFansOutPerScope(t *testing.T) {
	scopeA := mustScope(t, "clinic_a", "desk1")
	scopeB := mustScope(t, "clinic_b", "")
	h := New(services.NewScopeLocker(), staticSnapshot(models.Snapshot{}), nil)
	ctx := context.Background()

	plain := NewChannelSink(scopeA.ID(), 4)
	_, err := h.Subscribe(ctx, scopeA, nil, plain)
	require.NoError(t, err)

	ticket := 9
	viewer := NewChannelSink(scopeA.ID(), 4)
	_, err = h.Subscribe(ctx, scopeA, &ticket, viewer)
	require.NoError(t, err)

	other := NewChannelSink(scopeB.ID(), 4)
	_, err = h.Subscribe(ctx, scopeB, nil, other)
	require.NoError(t, err)

	// Drain the initial frames.
	readFrame(t, plain)
	readFrame(t, viewer)
	readFrame(t, other)

	h.Publish(ctx, scopeA, models.Snapshot{ScopeID: scopeA.ID(), NowServingToken: 5, AvgServiceSeconds: 10})

	got := readFrame(t, plain)
	assert.Equal(t, 5, got.NowServingToken)
	assert.Nil(t, got.ViewerTicket)

	got = readFrame(t, viewer)
	require.NotNil(t, got.ViewerTicket)
	assert.Equal(t, 9, *got.ViewerTicket)
	require.NotNil(t, got.EstimatedWaitSeconds)
	assert.Equal(t, 40, *got.EstimatedWaitSeconds)

	select {
	case frame := <-other.Snapshots():
		t.Fatalf("scope B must not see scope A frames, got %+v", frame)
	case <-time.After(50 * time.Millisecond):
	}
}

// flakySink accepts the initial frame then reports itself closed.
type flakySink struct {
	writes int
	closed bool
}

func (f *flakySink) Write(models.Snapshot) error {
	f.writes++
	if f.writes > 1 {
		return status.ErrSubscriberClosed
	}
	return nil
}

func (f *flakySink) Close() { f.closed = true }

func TestHubFailingSubscriberDoesNotStopOthers(t *testing.T) {
	scope := mustScope(t, "clinic_a", "desk1")
	h := New(services.NewScopeLocker(), staticSnapshot(models.Snapshot{}), nil)
	ctx := context.Background()

	bad := &flakySink{}
	_, err := h.Subscribe(ctx, scope, nil, bad)
	require.NoError(t, err)

	good := NewChannelSink(scope.ID(), 4)
	_, err = h.Subscribe(ctx, scope, nil, good)
	require.NoError(t, err)
	readFrame(t, good)

	h.Publish(ctx, scope, models.Snapshot{ScopeID: scope.ID(), NowServingToken: 3})

	got := readFrame(t, good)
	assert.Equal(t, 3, got.NowServingToken)
	assert.True(t, bad.closed, "failed sink must be torn down")
	assert.Equal(t, 1, h.SubscriberCount(scope.ID()))
}

func TestHubSlowSubscriberLosesFramesNotMembership(t *testing.T) {
	scope := mustScope(t, "clinic_a", "desk1")
	h := New(services.NewScopeLocker(), staticSnapshot(models.Snapshot{}), nil)
	ctx := context.Background()

	// Buffer of one and nobody consuming.
	sink := NewChannelSink(scope.ID(), 1)
	_, err := h.Subscribe(ctx, scope, nil, sink)
	require.NoError(t, err)

	h.Publish(ctx, scope, models.Snapshot{NowServingToken: 1})
	h.Publish(ctx, scope, models.Snapshot{NowServingToken: 2})
	h.Publish(ctx, scope, models.Snapshot{NowServingToken: 3})

	assert.Equal(t, 1, h.SubscriberCount(scope.ID()), "drops must not evict")

	// Only the initial frame fit; everything later was shed.
	frame := readFrame(t, sink)
	assert.Equal(t, 0, frame.NowServingToken)
	select {
	case extra := <-sink.Snapshots():
		t.Fatalf("expected dropped frames, got %+v", extra)
	default:
	}
}

func TestHubUnsubscribeIdempotent(t *testing.T) {
	scope := mustScope(t, "clinic_a", "desk1")
	h := New(services.NewScopeLocker(), staticSnapshot(models.Snapshot{}), nil)

	sink := NewChannelSink(scope.ID(), 4)
	id, err := h.Subscribe(context.Background(), scope, nil, sink)
	require.NoError(t, err)

	h.Unsubscribe(scope, id)
	h.Unsubscribe(scope, id)
	h.Unsubscribe(scope, "never-existed")

	assert.Zero(t, h.SubscriberCount(scope.ID()))
	select {
	case <-sink.Done():
	default:
		t.Fatal("unsubscribe must close the sink")
	}
}

func TestHubCloseDrainsEverything(t *testing.T) {
	h := New(services.NewScopeLocker(), staticSnapshot(models.Snapshot{}), nil)
	ctx := context.Background()

	scopeA := mustScope(t, "clinic_a", "")
	scopeB := mustScope(t, "clinic_b", "")
	sinkA := NewChannelSink(scopeA.ID(), 4)
	sinkB := NewChannelSink(scopeB.ID(), 4)

	_, err := h.Subscribe(ctx, scopeA, nil, sinkA)
	require.NoError(t, err)
	_, err = h.Subscribe(ctx, scopeB, nil, sinkB)
	require.NoError(t, err)

	h.Close()

	assert.Zero(t, h.SubscriberCount(scopeA.ID()))
	assert.Zero(t, h.SubscriberCount(scopeB.ID()))
	<-sinkA.Done()
	<-sinkB.Done()
}

func TestHubSubscribeRejectsInvalidScope(t *testing.T) {
	h := New(services.NewScopeLocker(), staticSnapshot(models.Snapshot{}), nil)

	_, err := h.Subscribe(context.Background(), models.ServiceScope{TenantID: "bad scope"}, nil, NewChannelSink("x", 1))

	assert.ErrorIs(t, err, status.ErrScopeInvalid)
}

func TestHubSubscribeDuringServeBurst(t *testing.T) {
	// Wire a real engine and hub through the same locker: a subscriber
	// arriving mid-burst must get a coherent initial frame and only newer
	// tokens after it.
	ctx := context.Background()
	locker := services.NewScopeLocker()
	mem := store.NewMemory()
	scope := mustScope(t, "clinic_a", "desk1")

	h := New(locker, nil, nil)
	engine := services.NewEngine(mem, locker, clockz.NewFakeClock(), time.UTC, h)
	h.snapshot = engine.Snapshot

	const serves = 20
	done := make(chan struct{})
	go func() {
		defer close(done)
		for n := 1; n <= serves; n++ {
			if _, err := engine.OnServe(ctx, scope, n); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	sink := NewChannelSink(scope.ID(), serves+4)
	_, err := h.Subscribe(ctx, scope, nil, sink)
	require.NoError(t, err)
	<-done

	var frames []models.Snapshot
drain:
	for {
		select {
		case snap := <-sink.Snapshots():
			frames = append(frames, snap)
		default:
			break drain
		}
	}

	require.NotEmpty(t, frames, "initial frame must always arrive")
	prev := frames[0].NowServingToken
	for _, frame := range frames[1:] {
		assert.GreaterOrEqual(t, frame.NowServingToken, prev,
			"frames after the initial snapshot must never move backwards")
		prev = frame.NowServingToken
	}
	assert.Equal(t, serves, frames[len(frames)-1].NowServingToken)
}
