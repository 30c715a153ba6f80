package distributed

import (
	"context"
	"sync"
	"testing"
	"time"

	"worklens/internal/core/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingRelay struct {
	mu         sync.Mutex
	terminated []domain.TerminateReason
	notified   []string
	online     bool
}

func (r *recordingRelay) ForceTerminate(sourceID, by domain.SubjectID, reason domain.TerminateReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminated = append(r.terminated, reason)
}

func (r *recordingRelay) Notify(sourceID domain.SubjectID, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.online {
		return domain.ErrNotDelivered
	}
	r.notified = append(r.notified, event)
	return nil
}

func (r *recordingRelay) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.terminated), len(r.notified)
}

func TestEventBus_DeliversToOtherInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	logger := zap.NewNop().Sugar()

	local := NewEventBus(client, "wl:", "instance-a", logger)
	remote := NewEventBus(client, "wl:", "instance-b", logger)

	localRelay := &recordingRelay{online: true}
	remoteRelay := &recordingRelay{online: true}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = local.Subscribe(ctx, RelayEventHandler(localRelay, localRelay)) }()
	go func() { _ = remote.Subscribe(ctx, RelayEventHandler(remoteRelay, remoteRelay)) }()
	<-local.Ready()
	<-remote.Ready()

	require.NoError(t, local.PublishSourceRemoved(ctx, "s1", "boss"))
	require.NoError(t, local.PublishIntervalAssigned(ctx, "s1", 300))

	assert.Eventually(t, func() bool {
		terminated, notified := remoteRelay.counts()
		return terminated == 1 && notified == 1
	}, time.Second, 10*time.Millisecond)

	// the publishing instance ignores its own events
	terminated, notified := localRelay.counts()
	assert.Zero(t, terminated)
	assert.Zero(t, notified)

	remoteRelay.mu.Lock()
	assert.Equal(t, domain.ReasonSourceRemoved, remoteRelay.terminated[0])
	assert.Equal(t, domain.EventIntervalAssigned, remoteRelay.notified[0])
	remoteRelay.mu.Unlock()

	assert.NoError(t, local.Close())
}

func TestRelayEventHandler(t *testing.T) {
	relay := &recordingRelay{}
	handle := RelayEventHandler(relay, relay)

	// a source that is not connected here is not an error
	assert.NoError(t, handle(&Event{Type: EventIntervalAssigned, SourceID: "s1", Payload: []byte(`{"sourceId":"s1","intervalSeconds":120}`)}))
	assert.Error(t, handle(&Event{Type: EventIntervalAssigned, Payload: []byte(`{`)}))
	assert.Error(t, handle(&Event{Type: "unknown"}))
}
