package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"worklens/internal/core/domain"
	"worklens/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	sourceS   domain.SubjectID = "s@example.com"
	sourceT   domain.SubjectID = "t@example.com"
	managerV  domain.SubjectID = "v@example.com"
	managerV2 domain.SubjectID = "v2@example.com"
	adminA    domain.SubjectID = "admin@example.com"
)

var (
	identityS  = domain.Identity{SubjectID: sourceS, Role: domain.RoleSource}
	identityT  = domain.Identity{SubjectID: sourceT, Role: domain.RoleSource}
	identityV  = domain.Identity{SubjectID: managerV, Role: domain.RoleTeamViewer}
	identityV2 = domain.Identity{SubjectID: managerV2, Role: domain.RoleTeamViewer}
	identityA  = domain.Identity{SubjectID: adminA, Role: domain.RoleGlobalViewer}
)

type fakeChannel struct {
	id       string
	identity domain.Identity
	capacity int

	mu   sync.Mutex
	msgs []domain.Envelope
}

func newChannel(id string, identity domain.Identity) *fakeChannel {
	return &fakeChannel{id: id, identity: identity}
}

func (c *fakeChannel) ID() string                { return c.id }
func (c *fakeChannel) Identity() domain.Identity { return c.identity }

func (c *fakeChannel) Send(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capacity > 0 && len(c.msgs) >= c.capacity {
		return false
	}
	var env domain.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		panic(err)
	}
	c.msgs = append(c.msgs, env)
	return true
}

func (c *fakeChannel) all() []domain.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Envelope(nil), c.msgs...)
}

func (c *fakeChannel) events(name string) []domain.Envelope {
	var out []domain.Envelope
	for _, env := range c.all() {
		if env.Event == name {
			out = append(out, env)
		}
	}
	return out
}

func (c *fakeChannel) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = nil
}

func decode[T any](t *testing.T, env domain.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

type recordedAudit struct {
	Type    domain.AuditType
	Details domain.AuditDetails
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []recordedAudit
}

func (a *fakeAudit) Append(_ context.Context, t domain.AuditType, d domain.AuditDetails) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, recordedAudit{Type: t, Details: d})
}

func (a *fakeAudit) all() []recordedAudit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]recordedAudit(nil), a.entries...)
}

type fixture struct {
	team    *TeamService
	relay   *RelayService
	audit   *fakeAudit
	metrics *MetricsService
}

// newFixture seeds S in V's team and T in V2's team.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := memory.NewMemoryDirectory()
	for _, acc := range []*domain.Account{
		{SubjectID: managerV, Role: domain.RoleTeamViewer},
		{SubjectID: managerV2, Role: domain.RoleTeamViewer},
		{SubjectID: adminA, Role: domain.RoleGlobalViewer},
		{SubjectID: sourceS, Role: domain.RoleSource, Manager: managerV},
		{SubjectID: sourceT, Role: domain.RoleSource, Manager: managerV2},
	} {
		require.NoError(t, dir.Put(ctx, acc))
	}

	logger := zap.NewNop().Sugar()
	team := NewTeamService(dir, logger)
	audit := &fakeAudit{}
	metrics := NewMetricsService()
	return &fixture{
		team:    team,
		relay:   NewRelayService(team, audit, metrics, logger),
		audit:   audit,
		metrics: metrics,
	}
}
