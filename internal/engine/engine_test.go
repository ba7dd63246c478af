package engine

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growifyai/blueprint/internal/manifest"
)

// fakeCloud records provisioning calls instead of touching AWS.
type fakeCloud struct {
	databases map[string]manifest.ConnectionInfo
	deleted   []string
	uploads   []string
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{databases: map[string]manifest.ConnectionInfo{}}
}

func (f *fakeCloud) CreateDatabase(_ context.Context, db manifest.Database, password string) (manifest.ConnectionInfo, error) {
	info := manifest.ConnectionInfo{
		Host:     db.Name + ".rds.test",
		Port:     5432,
		User:     db.User,
		Password: password,
		Database: db.DatabaseName,
	}
	f.databases[db.Name] = info
	return info, nil
}

func (f *fakeCloud) DeleteDatabase(_ context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeCloud) CreateRedis(_ context.Context, svc manifest.Service) (manifest.Endpoint, error) {
	return manifest.Endpoint{Host: svc.Name + ".cache.test", Port: 6379}, nil
}

func (f *fakeCloud) DeleteRedis(_ context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeCloud) UploadArtifact(_ context.Context, bucket, key string, _ io.Reader) error {
	f.uploads = append(f.uploads, fmt.Sprintf("s3://%s/%s", bucket, key))
	return nil
}

func paidBlueprint() *manifest.Blueprint {
	return &manifest.Blueprint{
		Databases: []manifest.Database{
			{Name: "orders-db", DatabaseName: "orders", User: "orders_user", Plan: manifest.PlanStarter},
		},
		Services: []manifest.Service{
			{
				Type:         manifest.TypeWeb,
				Name:         "orders-api",
				Runtime:      "go",
				BuildCommand: "true",
				StartCommand: "sleep 30",
				Plan:         manifest.PlanStarter,
				EnvVars: []manifest.EnvVar{
					{Key: "DATABASE_URL", FromDatabase: &manifest.DatabaseRef{Name: "orders-db", Property: "connectionString"}},
					{Key: "API_SECRET", GenerateValue: true},
				},
			},
		},
	}
}

func testEngine(t *testing.T, cloud CloudProvisioner) *Engine {
	t.Helper()

	eng := New("test", nil)
	eng.StateDir = t.TempDir()
	eng.WorkDir = t.TempDir()
	eng.NewCloud = func(context.Context) (CloudProvisioner, error) {
		return cloud, nil
	}
	return eng
}

func TestApplyAndDestroy(t *testing.T) {
	cloud := newFakeCloud()
	eng := testEngine(t, cloud)
	bp := paidBlueprint()

	require.NoError(t, eng.Apply(context.Background(), bp))

	st, err := LoadState(eng.StateDir, "test")
	require.NoError(t, err)
	assert.NotEmpty(t, st.DeployID)

	db := st.Databases["orders-db"]
	assert.Equal(t, "orders-db.rds.test", db.Connection.Host)
	assert.Equal(t, "orders_user", db.Connection.User)
	assert.NotEmpty(t, db.Connection.Password)

	svc := st.Services["orders-api"]
	assert.NotZero(t, svc.Port)
	require.Len(t, svc.PIDs, 1)
	assert.NotEmpty(t, st.Generated["API_SECRET"])

	require.NoError(t, eng.Destroy(context.Background()))
	assert.Contains(t, cloud.deleted, "orders-db")

	st, err = LoadState(eng.StateDir, "test")
	require.NoError(t, err)
	assert.Empty(t, st.Databases)
}

func TestApplyRejectsInvalidBlueprint(t *testing.T) {
	eng := testEngine(t, newFakeCloud())
	bp := paidBlueprint()
	bp.Services[0].EnvVars[0].FromDatabase.Name = "missing-db"

	err := eng.Apply(context.Background(), bp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown database "missing-db"`)
}

func TestApplyReusesPasswordAndPort(t *testing.T) {
	cloud := newFakeCloud()
	eng := testEngine(t, cloud)
	bp := paidBlueprint()

	require.NoError(t, eng.Apply(context.Background(), bp))
	first, err := LoadState(eng.StateDir, "test")
	require.NoError(t, err)

	require.NoError(t, eng.Apply(context.Background(), bp))
	second, err := LoadState(eng.StateDir, "test")
	require.NoError(t, err)

	assert.Equal(t, first.Databases["orders-db"].Connection.Password,
		second.Databases["orders-db"].Connection.Password)
	assert.Equal(t, first.Services["orders-api"].Port, second.Services["orders-api"].Port)
	assert.Equal(t, first.Generated["API_SECRET"], second.Generated["API_SECRET"])
	assert.NotEqual(t, first.DeployID, second.DeployID)
}

func TestApplyUploadsDeployRecord(t *testing.T) {
	cloud := newFakeCloud()
	eng := testEngine(t, cloud)
	eng.ArtifactBucket = "deploy-records"

	require.NoError(t, eng.Apply(context.Background(), paidBlueprint()))

	require.Len(t, cloud.uploads, 1)
	assert.Contains(t, cloud.uploads[0], "s3://deploy-records/deploys/")
	assert.Contains(t, cloud.uploads[0], "orders-api.json")
}

func TestApplyFailsOnBuildError(t *testing.T) {
	eng := testEngine(t, newFakeCloud())
	bp := paidBlueprint()
	bp.Services[0].BuildCommand = "false"

	err := eng.Apply(context.Background(), bp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build failed")
}

func TestResolveAgainstRecordedState(t *testing.T) {
	cloud := newFakeCloud()
	eng := testEngine(t, cloud)
	bp := paidBlueprint()

	// Before any apply there is nothing to resolve against.
	_, err := eng.Resolve(bp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has not been provisioned")

	require.NoError(t, eng.Apply(context.Background(), bp))
	st, err := LoadState(eng.StateDir, "test")
	require.NoError(t, err)

	resolved, err := eng.Resolve(bp)
	require.NoError(t, err)

	vars := resolved.Services[0].EnvVars
	require.Len(t, vars, 2)
	assert.Nil(t, vars[0].FromDatabase)
	require.NotNil(t, vars[0].Value)
	assert.Equal(t, cloud.databases["orders-db"].ConnectionString(), *vars[0].Value)
	require.NotNil(t, vars[1].Value)
	assert.Equal(t, st.Generated["API_SECRET"], *vars[1].Value)
}

func TestStatus(t *testing.T) {
	eng := testEngine(t, newFakeCloud())
	require.NoError(t, eng.Apply(context.Background(), paidBlueprint()))

	// No docker manager attached, so only state is reported.
	containers, st, err := eng.Status(context.Background())
	require.NoError(t, err)
	assert.Empty(t, containers)
	require.Contains(t, st.Services, "orders-api")
	assert.NotEmpty(t, st.Services["orders-api"].PIDs)
}

func TestReusedPort(t *testing.T) {
	prior := NewState("test")
	prior.Services["cache"] = ServiceState{Type: manifest.TypeRedis, Plan: manifest.PlanFree, Port: 6380}

	port, err := reusedPort(prior, "cache")
	require.NoError(t, err)
	assert.Equal(t, 6380, port)

	port, err = reusedPort(prior, "never-provisioned")
	require.NoError(t, err)
	assert.NotZero(t, port)
}

func TestFreePort(t *testing.T) {
	a, err := freePort()
	require.NoError(t, err)
	assert.Greater(t, a, 0)
}
