package docker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/growifyai/blueprint/internal/manifest"
)

const (
	postgresPort     = 5432
	redisPort        = 6379
	defaultPGVersion = "16"
	readyTimeout     = 60 * time.Second
)

// ProvisionPostgres starts a PostgreSQL container for the database
// declaration, waits until it accepts connections, and returns the
// computed connection info. The password is generated by the engine;
// the document never carries it.
func (m *Manager) ProvisionPostgres(ctx context.Context, project string, db manifest.Database, password string, hostPort int) (manifest.ConnectionInfo, error) {
	version := db.PostgresMajorVersion
	if version == "" {
		version = defaultPGVersion
	}
	image := fmt.Sprintf("postgres:%s", version)

	if err := m.EnsureImage(ctx, image); err != nil {
		return manifest.ConnectionInfo{}, err
	}

	env := []string{
		"POSTGRES_DB=" + db.DatabaseName,
		"POSTGRES_USER=" + db.User,
		"POSTGRES_PASSWORD=" + password,
	}

	if _, err := m.StartContainer(ctx, project, db.Name, image, hostPort, postgresPort, env); err != nil {
		return manifest.ConnectionInfo{}, err
	}

	info := manifest.ConnectionInfo{
		Host:     "localhost",
		Port:     hostPort,
		User:     db.User,
		Password: password,
		Database: db.DatabaseName,
	}

	if err := waitReady(ctx, info); err != nil {
		return manifest.ConnectionInfo{}, fmt.Errorf("database %s did not become ready: %w", db.Name, err)
	}

	m.log.WithField("database", db.Name).Info("database ready")
	return info, nil
}

// ProvisionRedis starts a redis container for a redis-type service and
// returns its endpoint.
func (m *Manager) ProvisionRedis(ctx context.Context, project string, svc manifest.Service, hostPort int) (manifest.Endpoint, error) {
	const image = "redis:7"

	if err := m.EnsureImage(ctx, image); err != nil {
		return manifest.Endpoint{}, err
	}

	if _, err := m.StartContainer(ctx, project, svc.Name, image, hostPort, redisPort, nil); err != nil {
		return manifest.Endpoint{}, err
	}

	return manifest.Endpoint{Host: "localhost", Port: hostPort}, nil
}

// waitReady polls the database until a ping succeeds or the timeout
// elapses. Postgres restarts once during its init sequence, so early
// failures are expected.
func waitReady(ctx context.Context, info manifest.ConnectionInfo) error {
	deadline := time.Now().Add(readyTimeout)

	var lastErr error
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := sql.Open("postgres", info.ConnectionString()+"?sslmode=disable")
		if err != nil {
			lastErr = err
		} else {
			err = conn.PingContext(ctx)
			conn.Close()
			if err == nil {
				return nil
			}
			lastErr = err
		}

		time.Sleep(time.Second)
	}

	return lastErr
}
