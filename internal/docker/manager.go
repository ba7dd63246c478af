package docker

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/sirupsen/logrus"
)

// Manager handles all interactions with the Docker daemon. It backs the
// free plan: databases and redis services become labeled containers on a
// per-project bridge network.
type Manager struct {
	cli *client.Client
	log *logrus.Entry
}

// NewManager creates a Docker client connected to the local daemon.
// FromEnv honors DOCKER_HOST and friends, or falls back to the unix
// socket.
func NewManager() (*Manager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Manager{
		cli: cli,
		log: logrus.WithField("component", "docker"),
	}, nil
}

// NetworkName returns the bridge network name for a project.
func NetworkName(project string) string {
	return fmt.Sprintf("blueprint-%s", project)
}

// ContainerName returns the container name for a resource within a
// project.
func ContainerName(project, resource string) string {
	return fmt.Sprintf("blueprint-%s-%s", project, resource)
}

// EnsureImage pulls the image if needed. The pull stream must be drained
// or the daemon may cancel the download.
func (m *Manager) EnsureImage(ctx context.Context, imageName string) error {
	m.log.WithField("image", imageName).Info("pulling image")

	reader, err := m.cli.ImagePull(ctx, imageName, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageName, err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("error reading pull output: %w", err)
	}

	return nil
}

// EnsureNetwork creates the project's bridge network if it doesn't
// exist.
func (m *Manager) EnsureNetwork(ctx context.Context, networkName string) error {
	networks, err := m.cli.NetworkList(ctx, types.NetworkListOptions{})
	if err != nil {
		return fmt.Errorf("failed to list networks: %w", err)
	}

	for _, net := range networks {
		if net.Name == networkName {
			return nil
		}
	}

	m.log.WithField("network", networkName).Info("creating network")
	_, err = m.cli.NetworkCreate(ctx, networkName, types.NetworkCreate{
		Driver: "bridge",
	})
	if err != nil {
		return fmt.Errorf("failed to create network %s: %w", networkName, err)
	}

	return nil
}

// StartContainer creates and starts a labeled container on the project
// network, publishing hostPort to containerPort. Any previous container
// with the same name is removed first.
func (m *Manager) StartContainer(ctx context.Context, project, resource, imageName string,
	hostPort, containerPort int, envVars []string) (string, error) {

	containerName := ContainerName(project, resource)

	portSpec := fmt.Sprintf("%d:%d", hostPort, containerPort)
	mappings, err := nat.ParsePortSpec(portSpec)
	if err != nil {
		return "", fmt.Errorf("invalid port mapping %s: %w", portSpec, err)
	}

	portBindings := nat.PortMap{}
	exposedPorts := nat.PortSet{}
	for _, pm := range mappings {
		exposedPorts[pm.Port] = struct{}{}
		portBindings[pm.Port] = []nat.PortBinding{
			{
				HostIP:   "0.0.0.0",
				HostPort: pm.Binding.HostPort,
			},
		}
	}

	config := &container.Config{
		Image: imageName,
		Labels: map[string]string{
			"blueprint.project":  project,
			"blueprint.resource": resource,
			"blueprint.managed":  "true",
		},
		ExposedPorts: exposedPorts,
		Env:          envVars,
	}

	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
	}

	networkConfig := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			NetworkName(project): {},
		},
	}

	// Remove any stale container from a previous apply. The error is
	// ignored because the container usually doesn't exist.
	_ = m.cli.ContainerRemove(ctx, containerName, container.RemoveOptions{Force: true})

	m.log.WithField("container", containerName).Info("creating container")
	resp, err := m.cli.ContainerCreate(ctx, config, hostConfig, networkConfig, nil, containerName)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := m.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	return resp.ID, nil
}

// ListContainers returns the containers belonging to a project.
func (m *Manager) ListContainers(ctx context.Context, project string) ([]types.Container, error) {
	filterArgs := filters.NewArgs()
	filterArgs.Add("label", fmt.Sprintf("blueprint.project=%s", project))

	return m.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
}

// StopAndRemoveContainer stops and deletes a resource's container. Data
// volumes are kept.
func (m *Manager) StopAndRemoveContainer(ctx context.Context, project, resource string) error {
	containerName := ContainerName(project, resource)

	m.log.WithField("container", containerName).Info("stopping container")
	if err := m.cli.ContainerStop(ctx, containerName, container.StopOptions{}); err != nil {
		m.log.WithField("container", containerName).WithError(err).Warn("failed to stop container")
	}

	if err := m.cli.ContainerRemove(ctx, containerName, container.RemoveOptions{
		RemoveVolumes: false,
		Force:         true,
	}); err != nil {
		return fmt.Errorf("failed to remove %s: %w", containerName, err)
	}

	return nil
}

// RemoveNetwork deletes the project network.
func (m *Manager) RemoveNetwork(ctx context.Context, networkName string) error {
	m.log.WithField("network", networkName).Info("removing network")
	return m.cli.NetworkRemove(ctx, networkName)
}
