package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string {
	return &s
}

func todoBlueprint() *Blueprint {
	return &Blueprint{
		Databases: []Database{
			{Name: "rust-todo-db", DatabaseName: "todos", User: "todo_user", Plan: PlanFree},
		},
		Services: []Service{
			{
				Type:         TypeWeb,
				Name:         "rust-todo-api",
				Runtime:      "rust",
				BuildCommand: "cargo build --release",
				StartCommand: "./target/release/rust-todo-api",
				Plan:         PlanFree,
				EnvVars: []EnvVar{
					{Key: "DATABASE_URL", FromDatabase: &DatabaseRef{Name: "rust-todo-db", Property: "connectionString"}},
					{Key: "RUST_LOG", Value: strPtr("info")},
				},
			},
		},
	}
}

func TestValidateOK(t *testing.T) {
	require.NoError(t, todoBlueprint().Validate())
}

func TestValidateUnknownDatabaseReference(t *testing.T) {
	bp := todoBlueprint()
	bp.Services[0].EnvVars[0].FromDatabase.Name = "missing-db"

	err := bp.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown database "missing-db"`)
}

func TestValidateViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Blueprint)
		want   string
	}{
		{
			name: "duplicate database name",
			mutate: func(bp *Blueprint) {
				bp.Databases = append(bp.Databases, bp.Databases[0])
			},
			want: `duplicate database name "rust-todo-db"`,
		},
		{
			name: "duplicate service name",
			mutate: func(bp *Blueprint) {
				bp.Services = append(bp.Services, bp.Services[0])
			},
			want: `duplicate service name "rust-todo-api"`,
		},
		{
			name: "unknown plan",
			mutate: func(bp *Blueprint) {
				bp.Databases[0].Plan = "enterprise"
			},
			want: `unknown plan "enterprise"`,
		},
		{
			name: "unknown service type",
			mutate: func(bp *Blueprint) {
				bp.Services[0].Type = "cron"
			},
			want: `unknown type "cron"`,
		},
		{
			name: "unknown runtime",
			mutate: func(bp *Blueprint) {
				bp.Services[0].Runtime = "cobol"
			},
			want: `unknown runtime "cobol"`,
		},
		{
			name: "missing start command",
			mutate: func(bp *Blueprint) {
				bp.Services[0].StartCommand = ""
			},
			want: "startCommand is required",
		},
		{
			name: "missing database user",
			mutate: func(bp *Blueprint) {
				bp.Databases[0].User = ""
			},
			want: "user is required",
		},
		{
			name: "unknown database property",
			mutate: func(bp *Blueprint) {
				bp.Services[0].EnvVars[0].FromDatabase.Property = "socket"
			},
			want: `unknown database property "socket"`,
		},
		{
			name: "env var without key",
			mutate: func(bp *Blueprint) {
				bp.Services[0].EnvVars[1].Key = ""
			},
			want: "key is required",
		},
		{
			name: "env var with two sources",
			mutate: func(bp *Blueprint) {
				bp.Services[0].EnvVars[0].Value = strPtr("postgres://literal")
			},
			want: "exactly one of",
		},
		{
			name: "env var with no source",
			mutate: func(bp *Blueprint) {
				bp.Services[0].EnvVars[1].Value = nil
			},
			want: "exactly one of",
		},
		{
			name: "unknown group reference",
			mutate: func(bp *Blueprint) {
				bp.Services[0].EnvVars = append(bp.Services[0].EnvVars, EnvVar{FromGroup: "shared"})
			},
			want: `fromGroup references unknown group "shared"`,
		},
		{
			name: "unknown service reference",
			mutate: func(bp *Blueprint) {
				bp.Services[0].EnvVars = append(bp.Services[0].EnvVars, EnvVar{
					Key:         "CACHE_HOST",
					FromService: &ServiceRef{Name: "cache", Type: TypeRedis, Property: "host"},
				})
			},
			want: `fromService references unknown service "cache"`,
		},
		{
			name: "service reference type mismatch",
			mutate: func(bp *Blueprint) {
				bp.Services = append(bp.Services, Service{Type: TypeRedis, Name: "cache", Plan: PlanFree})
				bp.Services[0].EnvVars = append(bp.Services[0].EnvVars, EnvVar{
					Key:         "CACHE_HOST",
					FromService: &ServiceRef{Name: "cache", Type: TypeWeb, Property: "host"},
				})
			},
			want: "does not match service",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bp := todoBlueprint()
			tt.mutate(bp)

			err := bp.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateCollectsAllViolations(t *testing.T) {
	bp := todoBlueprint()
	bp.Databases[0].Plan = "enterprise"
	bp.Services[0].StartCommand = ""

	err := bp.Validate()
	require.Error(t, err)

	verr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Len(t, verr.Violations, 2)
}

func TestValidateEmptyLiteralValue(t *testing.T) {
	bp := todoBlueprint()
	bp.Services[0].EnvVars = append(bp.Services[0].EnvVars, EnvVar{Key: "FEATURE_FLAGS", Value: strPtr("")})

	require.NoError(t, bp.Validate())
}

func TestValidateGroupEntriesMustBeLiteral(t *testing.T) {
	bp := todoBlueprint()
	bp.EnvVarGroups = []EnvVarGroup{
		{Name: "shared", EnvVars: []EnvVar{{Key: "SECRET", GenerateValue: true}}},
	}

	err := bp.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be literal key/value pairs")
}
