package harness

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"
)

// Scenario is one conformance test.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Registry overrides the deployment; unset fields use the test
	// fixtures (registry 0x5011 deployed by 0xD0).
	Registry *RegistrySetup `yaml:"registry,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// RegistrySetup describes the registry deployment.
type RegistrySetup struct {
	Address  string `yaml:"address,omitempty"`
	Deployer string `yaml:"deployer,omitempty"`
	Cost     uint64 `yaml:"cost,omitempty"`
}

// Step is exactly one of: a call, a batch of calls sealed into one block,
// a ledger rewind, or a projector sync.
type Step struct {
	Call        string            `yaml:"call,omitempty"`
	From        string            `yaml:"from,omitempty"`
	Args        map[string]string `yaml:"args,omitempty"`
	Bind        string            `yaml:"bind,omitempty"`
	ExpectError string            `yaml:"expect_error,omitempty"`

	Batch  []Step  `yaml:"batch,omitempty"`
	Rewind *uint64 `yaml:"rewind,omitempty"`
	Sync   bool    `yaml:"sync,omitempty"`
}

// Assertion checks the final indexed or registry state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Kind restricts entity_count and selects the kind for entity_exists.
	Kind string `yaml:"kind,omitempty"`

	// Count is the expected entity_count.
	Count int `yaml:"count,omitempty"`

	// Fields is a subset match on an entity's payload (entity_exists).
	Fields map[string]string `yaml:"fields,omitempty"`

	// Accessor, Args, and Expect describe a registry read (accessor).
	Accessor string   `yaml:"accessor,omitempty"`
	Args     []string `yaml:"args,omitempty"`
	Expect   string   `yaml:"expect,omitempty"`

	// Address, Root, and Depth describe a lineage walk (lineage).
	Address string `yaml:"address,omitempty"`
	Root    string `yaml:"root,omitempty"`
	Depth   int    `yaml:"depth,omitempty"`

	// Kinds is the expected subsequence of stored entity kinds (event_order).
	Kinds []string `yaml:"kinds,omitempty"`
}

// Assertion types.
const (
	AssertEntityCount  = "entity_count"
	AssertEntityExists = "entity_exists"
	AssertAccessor     = "accessor"
	AssertLineage      = "lineage"
	AssertEventOrder   = "event_order"
	AssertStateMatches = "state_matches"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce  sync.Once
	schemaValue cue.Value
	schemaErr   error
)

func scenarioSchema() (cue.Value, error) {
	schemaOnce.Do(func() {
		v := cuecontext.New().CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile scenario schema: %w", err)
			return
		}
		schemaValue = v.LookupPath(cue.ParsePath("#Scenario"))
	})
	return schemaValue, schemaErr
}

// LoadScenario reads, schema-checks, and decodes a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(path, data)
}

// ParseScenario schema-checks and decodes scenario YAML. name labels
// errors.
func ParseScenario(name string, data []byte) (*Scenario, error) {
	if err := validateSchema(name, data); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

func validateSchema(name string, data []byte) error {
	schema, err := scenarioSchema()
	if err != nil {
		return err
	}
	file, err := cueyaml.Extract(name, data)
	if err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	v := schema.Context().BuildFile(file)
	if err := v.Err(); err != nil {
		return err
	}
	return schema.Unify(v).Validate(cue.Concrete(true))
}
