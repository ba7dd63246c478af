package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/growifyai/blueprint/internal/manifest"
)

const stateFile = "state.json"

// State records what an apply created so later invocations can resolve,
// inspect, and tear it down. It lives in the project's state directory
// and contains credentials, so it is written owner-only.
type State struct {
	DeployID  string                   `json:"deploy_id"`
	Project   string                   `json:"project"`
	Databases map[string]DatabaseState `json:"databases"`
	Services  map[string]ServiceState  `json:"services"`
	Generated map[string]string        `json:"generated,omitempty"`
}

// DatabaseState is the provisioned form of a database declaration.
type DatabaseState struct {
	Plan       string                  `json:"plan"`
	Connection manifest.ConnectionInfo `json:"connection"`
}

// ServiceState is the provisioned form of a service declaration.
type ServiceState struct {
	Type string `json:"type"`
	Plan string `json:"plan"`
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
	PIDs []int  `json:"pids,omitempty"`
}

// NewState returns an empty state for a project.
func NewState(project string) *State {
	return &State{
		Project:   project,
		Databases: map[string]DatabaseState{},
		Services:  map[string]ServiceState{},
		Generated: map[string]string{},
	}
}

// LoadState reads the state file from dir. A missing file yields an
// empty state, not an error.
func LoadState(dir, project string) (*State, error) {
	data, err := os.ReadFile(filepath.Join(dir, stateFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewState(project), nil
		}
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	if st.Databases == nil {
		st.Databases = map[string]DatabaseState{}
	}
	if st.Services == nil {
		st.Services = map[string]ServiceState{}
	}
	if st.Generated == nil {
		st.Generated = map[string]string{}
	}
	return &st, nil
}

// Save writes the state file to dir, creating the directory if needed.
func (s *State) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, stateFile), data, 0o600); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	return nil
}

// Remove deletes the state file.
func Remove(dir string) error {
	err := os.Remove(filepath.Join(dir, stateFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove state: %w", err)
	}
	return nil
}
