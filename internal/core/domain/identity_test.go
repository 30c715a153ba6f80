package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleSource, ParseRole("employee"))
	assert.Equal(t, RoleTeamViewer, ParseRole(" Manager "))
	assert.Equal(t, RoleGlobalViewer, ParseRole("super_admin"))
	assert.Equal(t, RoleNone, ParseRole("admin"))
	assert.Equal(t, "manager", RoleTeamViewer.String())
	assert.True(t, RoleGlobalViewer.IsViewer())
	assert.False(t, RoleSource.IsViewer())
}

func TestAccountJSONRole(t *testing.T) {
	var acc Account
	require.NoError(t, json.Unmarshal([]byte(`{"email":"a@x.io","role":"manager"}`), &acc))
	assert.Equal(t, RoleTeamViewer, acc.Role)

	out, err := json.Marshal(acc)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"role":"manager"`)

	assert.Error(t, json.Unmarshal([]byte(`{"role":"root"}`), &acc))
}

func TestScope(t *testing.T) {
	team := Scope{Sources: map[SubjectID]struct{}{"s1": {}}}
	assert.True(t, team.Contains("s1"))
	assert.False(t, team.Contains("s2"))
	assert.False(t, team.Empty())

	assert.True(t, Scope{All: true}.Contains("anything"))
	assert.True(t, Scope{}.Empty())
}

func TestIdentityAuthenticated(t *testing.T) {
	assert.False(t, Anonymous.Authenticated())
	assert.False(t, Identity{SubjectID: "x"}.Authenticated())
	assert.True(t, Identity{SubjectID: "x", Role: RoleSource}.Authenticated())
}
