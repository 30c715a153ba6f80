package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkSessionActiveSeconds(t *testing.T) {
	t0 := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	s := &WorkSession{StartedAt: t0, IsActive: true}

	assert.Equal(t, int64(90), s.ActiveSeconds(t0.Add(90*time.Second)))
	assert.Equal(t, int64(0), s.ActiveSeconds(t0.Add(-time.Second)))

	end := t0.Add(600 * time.Second)
	s.EndedAt = &end
	assert.Equal(t, int64(600), s.ActiveSeconds(t0.Add(time.Hour)))
}

func TestWorkSessionCloneIsDeep(t *testing.T) {
	end := time.Now()
	s := &WorkSession{ID: "a", EndedAt: &end}
	c := s.Clone()
	*c.EndedAt = end.Add(time.Hour)
	assert.Equal(t, end, *s.EndedAt)
}

func TestSessionFilterMatches(t *testing.T) {
	t0 := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	s := &WorkSession{SourceID: "s1", StartedAt: t0}

	assert.True(t, SessionFilter{}.Matches(s))
	assert.True(t, SessionFilter{From: t0, To: t0}.Matches(s))
	assert.False(t, SessionFilter{From: t0.Add(time.Second)}.Matches(s))
	assert.False(t, SessionFilter{To: t0.Add(-time.Second)}.Matches(s))
	assert.False(t, SessionFilter{SourceID: "s2"}.Matches(s))
}
