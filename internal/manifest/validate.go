package manifest

import (
	"fmt"
	"strings"
)

// Service types the engine knows how to provision.
const (
	TypeWeb    = "web"
	TypeWorker = "worker"
	TypeRedis  = "redis"
	TypeStatic = "static"
)

// Plans. The free plan provisions locally; paid plans provision through
// the cloud backend.
const (
	PlanFree     = "free"
	PlanStarter  = "starter"
	PlanStandard = "standard"
	PlanPro      = "pro"
)

var (
	serviceTypes = map[string]bool{TypeWeb: true, TypeWorker: true, TypeRedis: true, TypeStatic: true}
	plans        = map[string]bool{PlanFree: true, PlanStarter: true, PlanStandard: true, PlanPro: true}
	runtimes     = map[string]bool{"rust": true, "go": true, "node": true, "python": true, "ruby": true, "elixir": true, "docker": true}

	// Computed properties a fromDatabase reference may name.
	databaseProperties = map[string]bool{
		"connectionString": true,
		"host":             true,
		"port":             true,
		"user":             true,
		"password":         true,
		"database":         true,
	}

	// Properties a fromService reference may name.
	serviceProperties = map[string]bool{
		"host":     true,
		"port":     true,
		"hostport": true,
	}
)

// ValidationError collects every structural violation found in a
// blueprint so the caller can report them all at once.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid blueprint: %s", strings.Join(e.Violations, "; "))
}

// Validate checks the structural properties of the document: name
// uniqueness, reference integrity, enum membership, and env var source
// exclusivity. It returns a *ValidationError listing every violation,
// or nil if the blueprint is well formed.
func (b *Blueprint) Validate() error {
	var v []string

	dbNames := map[string]bool{}
	for _, db := range b.Databases {
		if db.Name == "" {
			v = append(v, "database with empty name")
			continue
		}
		if dbNames[db.Name] {
			v = append(v, fmt.Sprintf("duplicate database name %q", db.Name))
		}
		dbNames[db.Name] = true

		if db.DatabaseName == "" {
			v = append(v, fmt.Sprintf("database %q: databaseName is required", db.Name))
		}
		if db.User == "" {
			v = append(v, fmt.Sprintf("database %q: user is required", db.Name))
		}
		if !plans[db.Plan] {
			v = append(v, fmt.Sprintf("database %q: unknown plan %q", db.Name, db.Plan))
		}
	}

	svcNames := map[string]bool{}
	svcTypes := map[string]string{}
	for _, svc := range b.Services {
		if svc.Name == "" {
			v = append(v, "service with empty name")
			continue
		}
		if svcNames[svc.Name] {
			v = append(v, fmt.Sprintf("duplicate service name %q", svc.Name))
		}
		svcNames[svc.Name] = true
		svcTypes[svc.Name] = svc.Type

		if !serviceTypes[svc.Type] {
			v = append(v, fmt.Sprintf("service %q: unknown type %q", svc.Name, svc.Type))
		}
		if !plans[svc.Plan] {
			v = append(v, fmt.Sprintf("service %q: unknown plan %q", svc.Name, svc.Plan))
		}
		if svc.HasCommands() {
			if svc.Runtime == "" {
				v = append(v, fmt.Sprintf("service %q: runtime is required for %s services", svc.Name, svc.Type))
			} else if !runtimes[svc.Runtime] {
				v = append(v, fmt.Sprintf("service %q: unknown runtime %q", svc.Name, svc.Runtime))
			}
			if svc.StartCommand == "" {
				v = append(v, fmt.Sprintf("service %q: startCommand is required for %s services", svc.Name, svc.Type))
			}
		}
	}

	groupNames := map[string]bool{}
	for _, g := range b.EnvVarGroups {
		if g.Name == "" {
			v = append(v, "env var group with empty name")
			continue
		}
		if groupNames[g.Name] {
			v = append(v, fmt.Sprintf("duplicate env var group name %q", g.Name))
		}
		groupNames[g.Name] = true

		for _, ev := range g.EnvVars {
			if ev.Key == "" || ev.Value == nil || ev.FromDatabase != nil || ev.FromService != nil || ev.FromGroup != "" || ev.GenerateValue {
				v = append(v, fmt.Sprintf("env var group %q: entries must be literal key/value pairs", g.Name))
				break
			}
		}
	}

	for _, svc := range b.Services {
		for i, ev := range svc.EnvVars {
			where := fmt.Sprintf("service %q envVars[%d]", svc.Name, i)
			v = append(v, validateEnvVar(where, ev, dbNames, svcTypes, groupNames)...)
		}
	}

	if len(v) > 0 {
		return &ValidationError{Violations: v}
	}
	return nil
}

func validateEnvVar(where string, ev EnvVar, dbNames map[string]bool, svcTypes map[string]string, groupNames map[string]bool) []string {
	var v []string

	// fromGroup entries stand alone; everything else needs a key and
	// exactly one source.
	if ev.FromGroup != "" {
		if ev.Key != "" || ev.Value != nil || ev.GenerateValue || ev.FromDatabase != nil || ev.FromService != nil {
			v = append(v, fmt.Sprintf("%s: fromGroup cannot be combined with other fields", where))
		}
		if !groupNames[ev.FromGroup] {
			v = append(v, fmt.Sprintf("%s: fromGroup references unknown group %q", where, ev.FromGroup))
		}
		return v
	}

	if ev.Key == "" {
		v = append(v, fmt.Sprintf("%s: key is required", where))
	}

	sources := 0
	if ev.Value != nil {
		sources++
	}
	if ev.GenerateValue {
		sources++
	}
	if ev.FromDatabase != nil {
		sources++
	}
	if ev.FromService != nil {
		sources++
	}
	if sources != 1 {
		v = append(v, fmt.Sprintf("%s: exactly one of value, generateValue, fromDatabase, fromService is required", where))
	}

	if ref := ev.FromDatabase; ref != nil {
		if !dbNames[ref.Name] {
			v = append(v, fmt.Sprintf("%s: fromDatabase references unknown database %q", where, ref.Name))
		}
		if !databaseProperties[ref.Property] {
			v = append(v, fmt.Sprintf("%s: unknown database property %q", where, ref.Property))
		}
	}

	if ref := ev.FromService; ref != nil {
		typ, ok := svcTypes[ref.Name]
		if !ok {
			v = append(v, fmt.Sprintf("%s: fromService references unknown service %q", where, ref.Name))
		} else if ref.Type != "" && ref.Type != typ {
			v = append(v, fmt.Sprintf("%s: fromService type %q does not match service %q (type %q)", where, ref.Type, ref.Name, typ))
		}
		if !serviceProperties[ref.Property] {
			v = append(v, fmt.Sprintf("%s: unknown service property %q", where, ref.Property))
		}
	}

	return v
}
