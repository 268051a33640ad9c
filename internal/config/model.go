package config

import (
	"errors"
	"fmt"
	"regexp"
)

// Model is the unified, format-agnostic representation of one pipeline
// configuration.
type Model struct {
	Pipeline Pipeline
	Defaults Defaults
	// Stages keep the order in which they were declared; that order is the
	// configured stage list.
	Stages []*Stage
	Notify *Notify
}

// Pipeline holds the global switches of a run.
type Pipeline struct {
	Name         string
	InputDirs    []string
	MetadataFile string

	DisableImplicitStages bool
	DisablePreReqStages   bool
	ReportNumReads        bool
	Multiplexed           bool
	MultiLineSeqs         bool
	PairedReads           bool
	DeleteTempFiles       bool

	MaxResolutionDepth  int
	ScriptPermissions   string
	PipelinePermissions string
}

// Defaults overrides the identifiers of stages the plan builder inserts on
// its own. Empty fields keep the built-in choice.
type Defaults struct {
	MetadataImporter string
	Demultiplexer    string
	FastaConverter   string
	ReadCounter      string
	Gunzipper        string
}

// Stage is one configured stage.
type Stage struct {
	ID        string
	Timeout   int
	BatchSize int
	Props     map[string]string
}

// Notify configures the socket.io notification sink.
type Notify struct {
	URL                string
	Namespace          string
	Event              string
	InsecureSkipVerify bool
}

var pipelineName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Validate checks the model for errors a loader cannot catch on its own.
func (m *Model) Validate() error {
	var errs []error
	if !pipelineName.MatchString(m.Pipeline.Name) {
		errs = append(errs, fmt.Errorf("pipeline name %q must be a plain directory name", m.Pipeline.Name))
	}
	if m.Pipeline.MaxResolutionDepth < 0 {
		errs = append(errs, errors.New("max_resolution_depth cannot be negative"))
	}
	seen := make(map[string]bool, len(m.Stages))
	for _, s := range m.Stages {
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("stage %q is declared more than once", s.ID))
		}
		seen[s.ID] = true
		if s.Timeout < 0 || s.BatchSize < 0 {
			errs = append(errs, fmt.Errorf("stage %q: timeout and batch_size cannot be negative", s.ID))
		}
	}
	if len(m.Stages) == 0 {
		errs = append(errs, errors.New("at least one stage block is required"))
	}
	if m.Notify != nil && m.Notify.URL == "" {
		errs = append(errs, errors.New("notify block requires a url"))
	}
	return errors.Join(errs...)
}

// StageIDs returns the configured stage identifiers in order.
func (m *Model) StageIDs() []string {
	ids := make([]string, len(m.Stages))
	for i, s := range m.Stages {
		ids[i] = s.ID
	}
	return ids
}

// Stage returns the configured stage with the given identifier.
func (m *Model) Stage(id string) (*Stage, bool) {
	for _, s := range m.Stages {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}
