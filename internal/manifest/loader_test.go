package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	bp, err := Load(filepath.Join("testdata", "blueprint.yaml"))
	require.NoError(t, err)

	require.Len(t, bp.Databases, 1)
	db := bp.Databases[0]
	require.Equal(t, "rust-todo-db", db.Name)
	require.Equal(t, "todos", db.DatabaseName)
	require.Equal(t, "todo_user", db.User)
	require.Equal(t, PlanFree, db.Plan)

	require.Len(t, bp.Services, 1)
	svc := bp.Services[0]
	require.Equal(t, TypeWeb, svc.Type)
	require.Equal(t, "rust-todo-api", svc.Name)
	require.Equal(t, "rust", svc.Runtime)
	require.Equal(t, "cargo build --release", svc.BuildCommand)
	require.Equal(t, "./target/release/rust-todo-api", svc.StartCommand)

	require.Len(t, svc.EnvVars, 2)
	require.Equal(t, "DATABASE_URL", svc.EnvVars[0].Key)
	require.NotNil(t, svc.EnvVars[0].FromDatabase)
	require.Equal(t, "rust-todo-db", svc.EnvVars[0].FromDatabase.Name)
	require.Equal(t, "connectionString", svc.EnvVars[0].FromDatabase.Property)
	require.Equal(t, "RUST_LOG", svc.EnvVars[1].Key)
	require.NotNil(t, svc.EnvVars[1].Value)
	require.Equal(t, "info", *svc.EnvVars[1].Value)

	require.NoError(t, bp.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	bp, err := Load(filepath.Join("testdata", "blueprint.yaml"))
	require.NoError(t, err)

	out, err := bp.Marshal()
	require.NoError(t, err)

	// Re-parse the serialized form and compare structurally.
	path := filepath.Join(t.TempDir(), "blueprint.yaml")
	require.NoError(t, os.WriteFile(path, out, 0o644))

	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, bp, again)
	require.NoError(t, again.Validate())
}
