package services

import (
	"context"
	"testing"

	"worklens/internal/core/domain"
	"worklens/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePublisher struct {
	removed  []domain.SubjectID
	interval map[domain.SubjectID]int
}

func (p *fakePublisher) PublishSourceRemoved(_ context.Context, sourceID, _ domain.SubjectID) error {
	p.removed = append(p.removed, sourceID)
	return nil
}

func (p *fakePublisher) PublishIntervalAssigned(_ context.Context, sourceID domain.SubjectID, seconds int) error {
	if p.interval == nil {
		p.interval = make(map[domain.SubjectID]int)
	}
	p.interval[sourceID] = seconds
	return nil
}

func newIntervalService(t *testing.T) (*IntervalService, *fixture) {
	t.Helper()
	f := newFixture(t)
	svc := NewIntervalService(memory.NewMemoryIntervalRepository(), f.team, f.relay, f.audit,
		[]int{2, 3, 4, 5}, zap.NewNop().Sugar())
	return svc, f
}

func TestInterval_ScenarioC(t *testing.T) {
	svc, f := newIntervalService(t)
	ctx := context.Background()

	src := newChannel("src", identityS)
	require.NoError(t, f.relay.Register(ctx, src))

	seconds, err := svc.Assign(ctx, identityV, sourceS, 5)
	require.NoError(t, err)
	assert.Equal(t, 300, seconds)

	pushed := src.events(domain.EventIntervalAssigned)
	require.Len(t, pushed, 1)
	assert.Equal(t, domain.IntervalAssigned{SourceID: sourceS, IntervalSeconds: 300},
		decode[domain.IntervalAssigned](t, pushed[0]))

	entries := f.audit.all()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditIntervalAssigned, entries[0].Type)
	assert.Equal(t, managerV, entries[0].Details.Actor)
	assert.Equal(t, sourceS, entries[0].Details.Target)
	assert.Equal(t, 5, entries[0].Details.Params["minutes"])

	got, err := svc.Get(ctx, identityS, sourceS)
	require.NoError(t, err)
	assert.True(t, got.Assigned)
	require.NotNil(t, got.IntervalSeconds)
	assert.Equal(t, 300, *got.IntervalSeconds)
}

func TestInterval_RejectsUnknownCadence(t *testing.T) {
	svc, f := newIntervalService(t)

	for _, minutes := range []int{0, 1, 6, -5} {
		_, err := svc.Assign(context.Background(), identityV, sourceS, minutes)
		assert.ErrorIs(t, err, domain.ErrInvalidInterval, "minutes=%d", minutes)
		assert.Contains(t, err.Error(), "intervalMinutes must be one of 2, 3, 4, 5")
	}
	assert.Empty(t, f.audit.all())
}

func TestInterval_Forbidden(t *testing.T) {
	svc, f := newIntervalService(t)
	ctx := context.Background()

	_, err := svc.Assign(ctx, identityV2, sourceS, 3)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.Assign(ctx, identityS, sourceS, 3)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	got, err := svc.Get(ctx, identityA, sourceS)
	require.NoError(t, err)
	assert.False(t, got.Assigned)
	assert.Nil(t, got.IntervalSeconds)

	_, err = svc.Get(ctx, identityT, sourceS)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.Get(ctx, identityV2, sourceS)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	assert.Empty(t, f.audit.all())
}

func TestInterval_OfflineSourceStillStored(t *testing.T) {
	svc, _ := newIntervalService(t)
	ctx := context.Background()

	seconds, err := svc.Assign(ctx, identityA, sourceT, 2)
	require.NoError(t, err)
	assert.Equal(t, 120, seconds)

	got, err := svc.Get(ctx, identityT, sourceT)
	require.NoError(t, err)
	assert.Equal(t, 120, *got.IntervalSeconds)
}

func TestInterval_UndeliveredPushGoesToPublisher(t *testing.T) {
	svc, f := newIntervalService(t)
	pub := &fakePublisher{}
	svc.SetPublisher(pub)
	ctx := context.Background()

	_, err := svc.Assign(ctx, identityV, sourceS, 4)
	require.NoError(t, err)
	assert.Equal(t, 240, pub.interval[sourceS])

	// delivered locally: nothing is published
	pub.interval = nil
	require.NoError(t, f.relay.Register(ctx, newChannel("src", identityS)))
	_, err = svc.Assign(ctx, identityV, sourceS, 2)
	require.NoError(t, err)
	assert.Empty(t, pub.interval)
}

func TestInterval_AllowedMinutesIsACopy(t *testing.T) {
	svc, _ := newIntervalService(t)
	allowed := svc.AllowedMinutes()
	allowed[0] = 99
	assert.Equal(t, []int{2, 3, 4, 5}, svc.AllowedMinutes())
}
