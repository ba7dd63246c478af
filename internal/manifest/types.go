package manifest

// Blueprint represents the root of blueprint.yaml: the declarative
// description of the databases and services the provisioning engine
// should create and wire together.
type Blueprint struct {
	Databases    []Database    `yaml:"databases,omitempty" mapstructure:"databases"`
	Services     []Service     `yaml:"services,omitempty" mapstructure:"services"`
	EnvVarGroups []EnvVarGroup `yaml:"envVarGroups,omitempty" mapstructure:"envVarGroups"`
}

// Database declares a managed PostgreSQL instance.
type Database struct {
	Name                 string   `yaml:"name" mapstructure:"name"`                 // unique across the document
	DatabaseName         string   `yaml:"databaseName" mapstructure:"databaseName"` // logical database inside the engine
	User                 string   `yaml:"user" mapstructure:"user"`
	Plan                 string   `yaml:"plan" mapstructure:"plan"`
	PostgresMajorVersion string   `yaml:"postgresMajorVersion,omitempty" mapstructure:"postgresMajorVersion"`
	IPAllowList          []string `yaml:"ipAllowList,omitempty" mapstructure:"ipAllowList"`
}

// Service declares a deployable service. For web and worker services the
// engine runs buildCommand to completion, then startCommand. Redis
// services have no commands; they are provisioned like databases.
type Service struct {
	Type         string   `yaml:"type" mapstructure:"type"`
	Name         string   `yaml:"name" mapstructure:"name"` // unique across the document
	Runtime      string   `yaml:"runtime,omitempty" mapstructure:"runtime"`
	BuildCommand string   `yaml:"buildCommand,omitempty" mapstructure:"buildCommand"`
	StartCommand string   `yaml:"startCommand,omitempty" mapstructure:"startCommand"`
	Plan         string   `yaml:"plan" mapstructure:"plan"`
	NumInstances int      `yaml:"numInstances,omitempty" mapstructure:"numInstances"`
	EnvVars      []EnvVar `yaml:"envVars,omitempty" mapstructure:"envVars"`
}

// EnvVar is one entry of a service's ordered environment list. Exactly
// one source must be set: a literal Value (which may be the empty
// string, hence the pointer), a deferred FromDatabase or FromService
// reference resolved at deploy time, a FromGroup import, or
// GenerateValue for an engine-generated secret.
type EnvVar struct {
	Key           string       `yaml:"key,omitempty" mapstructure:"key"`
	Value         *string      `yaml:"value,omitempty" mapstructure:"value"`
	GenerateValue bool         `yaml:"generateValue,omitempty" mapstructure:"generateValue"`
	FromDatabase  *DatabaseRef `yaml:"fromDatabase,omitempty" mapstructure:"fromDatabase"`
	FromService   *ServiceRef  `yaml:"fromService,omitempty" mapstructure:"fromService"`
	FromGroup     string       `yaml:"fromGroup,omitempty" mapstructure:"fromGroup"`
}

// DatabaseRef is a deferred reference to a computed property of a
// database declared in the same document.
type DatabaseRef struct {
	Name     string `yaml:"name" mapstructure:"name"`
	Property string `yaml:"property" mapstructure:"property"`
}

// ServiceRef is a deferred reference to a property of another service
// declared in the same document.
type ServiceRef struct {
	Name     string `yaml:"name" mapstructure:"name"`
	Type     string `yaml:"type" mapstructure:"type"`
	Property string `yaml:"property" mapstructure:"property"`
}

// EnvVarGroup is a named set of literal env vars that services import
// with fromGroup.
type EnvVarGroup struct {
	Name    string   `yaml:"name" mapstructure:"name"`
	EnvVars []EnvVar `yaml:"envVars" mapstructure:"envVars"`
}

// Database returns the database declaration with the given name, or nil.
func (b *Blueprint) Database(name string) *Database {
	for i := range b.Databases {
		if b.Databases[i].Name == name {
			return &b.Databases[i]
		}
	}
	return nil
}

// Service returns the service declaration with the given name, or nil.
func (b *Blueprint) Service(name string) *Service {
	for i := range b.Services {
		if b.Services[i].Name == name {
			return &b.Services[i]
		}
	}
	return nil
}

// Group returns the env var group with the given name, or nil.
func (b *Blueprint) Group(name string) *EnvVarGroup {
	for i := range b.EnvVarGroups {
		if b.EnvVarGroups[i].Name == name {
			return &b.EnvVarGroups[i]
		}
	}
	return nil
}

// HasCommands reports whether the engine runs build/start commands for
// this service type. Redis and static services are provisioned, not run.
func (s *Service) HasCommands() bool {
	return s.Type == TypeWeb || s.Type == TypeWorker
}
