// Package engine implements the provisioning sequence for a blueprint:
// provision databases, compute connection strings, resolve service
// environments, then build and start each service. The sequence is
// strictly ordered; nothing here runs concurrently.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/growifyai/blueprint/internal/docker"
	"github.com/growifyai/blueprint/internal/manifest"
)

// CloudProvisioner creates and destroys paid-plan resources. The AWS
// implementation lives in internal/cloud; tests substitute their own.
type CloudProvisioner interface {
	CreateDatabase(ctx context.Context, db manifest.Database, password string) (manifest.ConnectionInfo, error)
	DeleteDatabase(ctx context.Context, name string) error
	CreateRedis(ctx context.Context, svc manifest.Service) (manifest.Endpoint, error)
	DeleteRedis(ctx context.Context, name string) error
	UploadArtifact(ctx context.Context, bucket, key string, body io.Reader) error
}

// Engine applies and destroys blueprints.
type Engine struct {
	Project  string
	Docker   *docker.Manager
	StateDir string
	WorkDir  string

	// ArtifactBucket, when set, receives a deploy record per service
	// after a successful build.
	ArtifactBucket string

	// NewCloud constructs the paid-plan backend on first use, so local
	// free-plan applies never touch AWS credentials.
	NewCloud func(ctx context.Context) (CloudProvisioner, error)

	cloud CloudProvisioner
	log   *logrus.Entry
}

// New returns an engine for the given project.
func New(project string, mgr *docker.Manager) *Engine {
	return &Engine{
		Project:  project,
		Docker:   mgr,
		StateDir: ".blueprint",
		WorkDir:  ".",
		log:      logrus.WithField("project", project),
	}
}

func (e *Engine) logger() *logrus.Entry {
	if e.log == nil {
		e.log = logrus.WithField("project", e.Project)
	}
	return e.log
}

func (e *Engine) getCloud(ctx context.Context) (CloudProvisioner, error) {
	if e.cloud != nil {
		return e.cloud, nil
	}
	if e.NewCloud == nil {
		return nil, fmt.Errorf("paid plans require a cloud backend")
	}
	c, err := e.NewCloud(ctx)
	if err != nil {
		return nil, err
	}
	e.cloud = c
	return c, nil
}

// Apply provisions everything the blueprint declares. The order is
// fixed: databases first, then redis services, then env resolution,
// then build and start for each runnable service. Build completes
// before start begins.
func (e *Engine) Apply(ctx context.Context, bp *manifest.Blueprint) error {
	if err := bp.Validate(); err != nil {
		return err
	}

	prior, err := LoadState(e.StateDir, e.Project)
	if err != nil {
		return err
	}

	st := NewState(e.Project)
	st.DeployID = uuid.NewString()
	resolver := manifest.NewResolver(bp, prior.Generated)

	e.logger().WithField("deploy", st.DeployID).Info("starting apply")

	if e.needsDocker(bp) {
		if e.Docker == nil {
			return fmt.Errorf("free plans require a docker daemon")
		}
		if err := e.Docker.EnsureNetwork(ctx, docker.NetworkName(e.Project)); err != nil {
			return err
		}
	}

	// Every web service gets a port up front so fromService references
	// resolve regardless of declaration order.
	for _, svc := range bp.Services {
		if svc.Type != manifest.TypeWeb {
			continue
		}
		port, err := reusedPort(prior, svc.Name)
		if err != nil {
			return err
		}
		resolver.SetService(svc.Name, manifest.Endpoint{Host: "localhost", Port: port})
		st.Services[svc.Name] = ServiceState{Type: svc.Type, Plan: svc.Plan, Host: "localhost", Port: port}
	}

	for _, db := range bp.Databases {
		info, err := e.provisionDatabase(ctx, prior, db)
		if err != nil {
			return err
		}
		resolver.SetDatabase(db.Name, info)
		st.Databases[db.Name] = DatabaseState{Plan: db.Plan, Connection: info}
	}

	for _, svc := range bp.Services {
		if svc.Type != manifest.TypeRedis {
			continue
		}
		ep, err := e.provisionRedis(ctx, prior, svc)
		if err != nil {
			return err
		}
		resolver.SetService(svc.Name, manifest.Endpoint{Host: ep.Host, Port: ep.Port})
		st.Services[svc.Name] = ServiceState{Type: svc.Type, Plan: svc.Plan, Host: ep.Host, Port: ep.Port}
	}

	for _, svc := range bp.Services {
		if !svc.HasCommands() {
			continue
		}

		env, err := resolver.ServiceEnv(&svc)
		if err != nil {
			return err
		}
		if svc.Type == manifest.TypeWeb {
			env = append(env, fmt.Sprintf("PORT=%d", st.Services[svc.Name].Port))
		}

		if err := e.buildService(ctx, svc, env, st.DeployID); err != nil {
			return err
		}

		pids, err := e.startService(svc, env)
		if err != nil {
			return err
		}

		ss := st.Services[svc.Name]
		ss.Type = svc.Type
		ss.Plan = svc.Plan
		ss.PIDs = pids
		st.Services[svc.Name] = ss
	}

	st.Generated = resolver.Generated()
	if err := st.Save(e.StateDir); err != nil {
		return err
	}

	e.logger().WithField("deploy", st.DeployID).Info("apply complete")
	return nil
}

func (e *Engine) needsDocker(bp *manifest.Blueprint) bool {
	for _, db := range bp.Databases {
		if db.Plan == manifest.PlanFree {
			return true
		}
	}
	for _, svc := range bp.Services {
		if svc.Type == manifest.TypeRedis && svc.Plan == manifest.PlanFree {
			return true
		}
	}
	return false
}

func (e *Engine) provisionDatabase(ctx context.Context, prior *State, db manifest.Database) (manifest.ConnectionInfo, error) {
	// Reuse the previous password so connection strings stay stable
	// across redeploys.
	password := prior.Databases[db.Name].Connection.Password
	if password == "" {
		var err error
		if password, err = manifest.GenerateSecret(); err != nil {
			return manifest.ConnectionInfo{}, err
		}
	}

	if db.Plan == manifest.PlanFree {
		port := prior.Databases[db.Name].Connection.Port
		if port == 0 {
			var err error
			if port, err = freePort(); err != nil {
				return manifest.ConnectionInfo{}, err
			}
		}
		return e.Docker.ProvisionPostgres(ctx, e.Project, db, password, port)
	}

	cloud, err := e.getCloud(ctx)
	if err != nil {
		return manifest.ConnectionInfo{}, err
	}
	return cloud.CreateDatabase(ctx, db, password)
}

func (e *Engine) provisionRedis(ctx context.Context, prior *State, svc manifest.Service) (manifest.Endpoint, error) {
	if svc.Plan == manifest.PlanFree {
		// Keep the endpoint stable across redeploys, like web and
		// database ports.
		port, err := reusedPort(prior, svc.Name)
		if err != nil {
			return manifest.Endpoint{}, err
		}
		return e.Docker.ProvisionRedis(ctx, e.Project, svc, port)
	}

	cloud, err := e.getCloud(ctx)
	if err != nil {
		return manifest.Endpoint{}, err
	}
	return cloud.CreateRedis(ctx, svc)
}

// reusedPort returns the service's port from the prior apply, or a
// fresh one if this is its first provisioning.
func reusedPort(prior *State, name string) (int, error) {
	if port := prior.Services[name].Port; port != 0 {
		return port, nil
	}
	return freePort()
}

// deployRecord is what gets uploaded to the artifact bucket after each
// successful build.
type deployRecord struct {
	DeployID     string    `json:"deploy_id"`
	Project      string    `json:"project"`
	Service      string    `json:"service"`
	Runtime      string    `json:"runtime"`
	BuildCommand string    `json:"build_command"`
	StartCommand string    `json:"start_command"`
	BuiltAt      time.Time `json:"built_at"`
}

func (e *Engine) buildService(ctx context.Context, svc manifest.Service, env []string, deployID string) error {
	if svc.BuildCommand == "" {
		return nil
	}

	e.logger().WithField("service", svc.Name).Info("building")

	cmd := exec.CommandContext(ctx, "sh", "-c", svc.BuildCommand)
	cmd.Dir = e.WorkDir
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("build failed for service %s: %w", svc.Name, err)
	}

	if e.ArtifactBucket == "" {
		return nil
	}

	cloud, err := e.getCloud(ctx)
	if err != nil {
		return err
	}
	rec, err := json.Marshal(deployRecord{
		DeployID:     deployID,
		Project:      e.Project,
		Service:      svc.Name,
		Runtime:      svc.Runtime,
		BuildCommand: svc.BuildCommand,
		StartCommand: svc.StartCommand,
		BuiltAt:      time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	key := fmt.Sprintf("deploys/%s/%s.json", deployID, svc.Name)
	return cloud.UploadArtifact(ctx, e.ArtifactBucket, key, bytes.NewReader(rec))
}

// startService launches the service's start command in the background,
// one process per instance, with output captured to a per-service log
// file. The processes outlive this invocation; pids go into state.
func (e *Engine) startService(svc manifest.Service, env []string) ([]int, error) {
	instances := svc.NumInstances
	if instances < 1 || svc.Type == manifest.TypeWeb {
		instances = 1
	}

	logDir := filepath.Join(e.StateDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(logDir, svc.Name+".log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file for %s: %w", svc.Name, err)
	}
	defer logFile.Close()

	var pids []int
	for i := 0; i < instances; i++ {
		e.logger().WithFields(logrus.Fields{"service": svc.Name, "instance": i}).Info("starting")

		cmd := exec.Command("sh", "-c", svc.StartCommand)
		cmd.Dir = e.WorkDir
		cmd.Env = append(os.Environ(), env...)
		cmd.Stdout = logFile
		cmd.Stderr = logFile
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("failed to start service %s: %w", svc.Name, err)
		}

		pids = append(pids, cmd.Process.Pid)
		if err := cmd.Process.Release(); err != nil {
			return nil, fmt.Errorf("failed to detach service %s: %w", svc.Name, err)
		}
	}

	return pids, nil
}

// Destroy tears down everything recorded in state: service processes,
// local containers, cloud resources, and the project network.
func (e *Engine) Destroy(ctx context.Context) error {
	st, err := LoadState(e.StateDir, e.Project)
	if err != nil {
		return err
	}

	for name, svc := range st.Services {
		for _, pid := range svc.PIDs {
			proc, err := os.FindProcess(pid)
			if err != nil {
				continue
			}
			if err := proc.Kill(); err != nil {
				e.logger().WithFields(logrus.Fields{"service": name, "pid": pid}).WithError(err).Warn("failed to kill process")
			}
		}

		if svc.Type != manifest.TypeRedis {
			continue
		}
		if svc.Plan == manifest.PlanFree {
			if e.Docker != nil {
				if err := e.Docker.StopAndRemoveContainer(ctx, e.Project, name); err != nil {
					e.logger().WithField("service", name).WithError(err).Warn("failed to remove container")
				}
			}
			continue
		}
		cloud, err := e.getCloud(ctx)
		if err != nil {
			return err
		}
		if err := cloud.DeleteRedis(ctx, name); err != nil {
			e.logger().WithField("service", name).WithError(err).Warn("failed to delete cache cluster")
		}
	}

	for name, db := range st.Databases {
		if db.Plan == manifest.PlanFree {
			if e.Docker != nil {
				if err := e.Docker.StopAndRemoveContainer(ctx, e.Project, name); err != nil {
					e.logger().WithField("database", name).WithError(err).Warn("failed to remove container")
				}
			}
			continue
		}
		cloud, err := e.getCloud(ctx)
		if err != nil {
			return err
		}
		if err := cloud.DeleteDatabase(ctx, name); err != nil {
			e.logger().WithField("database", name).WithError(err).Warn("failed to delete db instance")
		}
	}

	if e.Docker != nil {
		if err := e.Docker.RemoveNetwork(ctx, docker.NetworkName(e.Project)); err != nil {
			e.logger().WithError(err).Warn("failed to remove network")
		}
	}

	return Remove(e.StateDir)
}

// Resolve substitutes the blueprint's deferred references with the
// values recorded by the last apply and returns the concrete document.
// References to resources that have not been provisioned yet are
// errors.
func (e *Engine) Resolve(bp *manifest.Blueprint) (*manifest.Blueprint, error) {
	if err := bp.Validate(); err != nil {
		return nil, err
	}

	st, err := LoadState(e.StateDir, e.Project)
	if err != nil {
		return nil, err
	}

	resolver := manifest.NewResolver(bp, st.Generated)
	for name, db := range st.Databases {
		resolver.SetDatabase(name, db.Connection)
	}
	for name, svc := range st.Services {
		if svc.Port != 0 {
			resolver.SetService(name, manifest.Endpoint{Host: svc.Host, Port: svc.Port})
		}
	}

	return resolver.ResolveBlueprint()
}

// Status returns the project's containers and recorded deploy state.
// Containers are skipped when no docker manager is attached.
func (e *Engine) Status(ctx context.Context) ([]types.Container, *State, error) {
	st, err := LoadState(e.StateDir, e.Project)
	if err != nil {
		return nil, nil, err
	}

	var containers []types.Container
	if e.Docker != nil {
		containers, err = e.Docker.ListContainers(ctx, e.Project)
		if err != nil {
			return nil, nil, err
		}
	}

	return containers, st, nil
}

// freePort asks the kernel for an unused TCP port.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to allocate port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
