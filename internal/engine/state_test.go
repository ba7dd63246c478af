package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growifyai/blueprint/internal/manifest"
)

func TestStateRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", ".blueprint")

	st := NewState("demo")
	st.DeployID = "deploy-1"
	st.Databases["rust-todo-db"] = DatabaseState{
		Plan: manifest.PlanFree,
		Connection: manifest.ConnectionInfo{
			Host: "localhost", Port: 54321, User: "todo_user", Password: "pw", Database: "todos",
		},
	}
	st.Services["rust-todo-api"] = ServiceState{Type: manifest.TypeWeb, Plan: manifest.PlanFree, Host: "localhost", Port: 10001, PIDs: []int{4242}}
	st.Generated["API_SECRET"] = "abc123"

	require.NoError(t, st.Save(dir))

	loaded, err := LoadState(dir, "demo")
	require.NoError(t, err)
	assert.Equal(t, st, loaded)
}

func TestLoadStateMissing(t *testing.T) {
	st, err := LoadState(t.TempDir(), "demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", st.Project)
	assert.Empty(t, st.Databases)
	assert.Empty(t, st.Services)
}

func TestRemoveState(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewState("demo").Save(dir))
	require.NoError(t, Remove(dir))
	require.NoError(t, Remove(dir)) // already gone

	st, err := LoadState(dir, "demo")
	require.NoError(t, err)
	assert.Empty(t, st.DeployID)
}
