package manifest

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
)

// ConnectionInfo holds the computed connection parameters of a
// provisioned database. The provisioning engine fills this in; the
// document itself never carries credentials.
type ConnectionInfo struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// ConnectionString renders the standard postgres URL form.
func (c ConnectionInfo) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.Database)
}

// Property returns the named computed property of the database.
func (c ConnectionInfo) Property(name string) (string, error) {
	switch name {
	case "connectionString":
		return c.ConnectionString(), nil
	case "host":
		return c.Host, nil
	case "port":
		return strconv.Itoa(c.Port), nil
	case "user":
		return c.User, nil
	case "password":
		return c.Password, nil
	case "database":
		return c.Database, nil
	default:
		return "", fmt.Errorf("unknown database property %q", name)
	}
}

// Endpoint is the resolved network address of a provisioned service.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Property returns the named property of the endpoint.
func (e Endpoint) Property(name string) (string, error) {
	switch name {
	case "host":
		return e.Host, nil
	case "port":
		return strconv.Itoa(e.Port), nil
	case "hostport":
		return fmt.Sprintf("%s:%d", e.Host, e.Port), nil
	default:
		return "", fmt.Errorf("unknown service property %q", name)
	}
}

// Resolver substitutes deferred references with the concrete values the
// engine computed while provisioning. Generated values are created once
// per key and reused, so repeated resolution within one apply is stable.
type Resolver struct {
	bp        *Blueprint
	databases map[string]ConnectionInfo
	services  map[string]Endpoint
	generated map[string]string
}

// NewResolver creates a resolver for the given blueprint. Previously
// generated values (from a prior apply's state) may be seeded so secrets
// survive redeploys; pass nil to start fresh.
func NewResolver(bp *Blueprint, generated map[string]string) *Resolver {
	if generated == nil {
		generated = map[string]string{}
	}
	return &Resolver{
		bp:        bp,
		databases: map[string]ConnectionInfo{},
		services:  map[string]Endpoint{},
		generated: generated,
	}
}

// SetDatabase records the connection info of a provisioned database.
func (r *Resolver) SetDatabase(name string, info ConnectionInfo) {
	r.databases[name] = info
}

// SetService records the endpoint of a provisioned service.
func (r *Resolver) SetService(name string, ep Endpoint) {
	r.services[name] = ep
}

// Generated returns the values created by generateValue during this
// apply, keyed by env var name, for persisting in state.
func (r *Resolver) Generated() map[string]string {
	return r.generated
}

// ServiceEnv resolves the service's env var list into an ordered slice
// of KEY=VALUE strings. Unresolved references are errors.
func (r *Resolver) ServiceEnv(svc *Service) ([]string, error) {
	vars, err := r.serviceEnvVars(svc)
	if err != nil {
		return nil, err
	}

	env := make([]string, 0, len(vars))
	for _, ev := range vars {
		env = append(env, ev.Key+"="+*ev.Value)
	}
	return env, nil
}

// serviceEnvVars resolves the service's env var list into literal
// entries, expanding groups in place and preserving declaration order.
func (r *Resolver) serviceEnvVars(svc *Service) ([]EnvVar, error) {
	var vars []EnvVar
	for _, ev := range svc.EnvVars {
		if ev.FromGroup != "" {
			g := r.bp.Group(ev.FromGroup)
			if g == nil {
				return nil, fmt.Errorf("service %q: unknown env var group %q", svc.Name, ev.FromGroup)
			}
			for _, gv := range g.EnvVars {
				if gv.Value == nil {
					return nil, fmt.Errorf("service %q: group %q entry %s has no value", svc.Name, g.Name, gv.Key)
				}
				vars = append(vars, gv)
			}
			continue
		}

		val, err := r.resolve(ev)
		if err != nil {
			return nil, fmt.Errorf("service %q: %w", svc.Name, err)
		}
		vars = append(vars, EnvVar{Key: ev.Key, Value: &val})
	}
	return vars, nil
}

// ResolveBlueprint returns a copy of the document with every deferred
// reference replaced by its concrete value and env var groups expanded
// in place. The result round-trips as a plain literal document.
func (r *Resolver) ResolveBlueprint() (*Blueprint, error) {
	out := *r.bp
	out.EnvVarGroups = nil
	out.Services = make([]Service, len(r.bp.Services))

	for i := range r.bp.Services {
		svc := r.bp.Services[i]
		vars, err := r.serviceEnvVars(&svc)
		if err != nil {
			return nil, err
		}
		svc.EnvVars = vars
		out.Services[i] = svc
	}
	return &out, nil
}

func (r *Resolver) resolve(ev EnvVar) (string, error) {
	switch {
	case ev.FromDatabase != nil:
		info, ok := r.databases[ev.FromDatabase.Name]
		if !ok {
			return "", fmt.Errorf("env var %s: database %q has not been provisioned", ev.Key, ev.FromDatabase.Name)
		}
		return info.Property(ev.FromDatabase.Property)
	case ev.FromService != nil:
		ep, ok := r.services[ev.FromService.Name]
		if !ok {
			return "", fmt.Errorf("env var %s: service %q has not been provisioned", ev.Key, ev.FromService.Name)
		}
		return ep.Property(ev.FromService.Property)
	case ev.GenerateValue:
		if val, ok := r.generated[ev.Key]; ok {
			return val, nil
		}
		val, err := GenerateSecret()
		if err != nil {
			return "", err
		}
		r.generated[ev.Key] = val
		return val, nil
	default:
		if ev.Value == nil {
			return "", fmt.Errorf("env var %s has no value", ev.Key)
		}
		return *ev.Value, nil
	}
}

// GenerateSecret returns a random 32-character hex string, used for
// generateValue env vars and database passwords.
func GenerateSecret() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
