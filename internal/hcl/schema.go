package hcl

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes the top-level blocks of any file. Unknown blocks and
// attributes are decode errors.
type fileRoot struct {
	Pipeline *pipelineBlock `hcl:"pipeline,block"`
	Defaults *defaultsBlock `hcl:"defaults,block"`
	Stages   []*stageBlock  `hcl:"stage,block"`
	Notify   *notifyBlock   `hcl:"notify,block"`
}

type pipelineBlock struct {
	Name         string   `hcl:"name"`
	InputDirs    []string `hcl:"input_dirs,optional"`
	MetadataFile string   `hcl:"metadata_file,optional"`

	DisableImplicitStages bool  `hcl:"disable_implicit_stages,optional"`
	DisablePreReqStages   bool  `hcl:"disable_prereq_stages,optional"`
	ReportNumReads        *bool `hcl:"report_num_reads,optional"`
	Multiplexed           bool  `hcl:"multiplexed,optional"`
	MultiLineSeqs         bool  `hcl:"multi_line_seqs,optional"`
	PairedReads           bool  `hcl:"paired_reads,optional"`
	DeleteTempFiles       bool  `hcl:"delete_temp_files,optional"`

	MaxResolutionDepth  int     `hcl:"max_resolution_depth,optional"`
	ScriptPermissions   *string `hcl:"script_permissions,optional"`
	PipelinePermissions string  `hcl:"pipeline_permissions,optional"`
}

type defaultsBlock struct {
	MetadataImporter string `hcl:"metadata_importer,optional"`
	Demultiplexer    string `hcl:"demultiplexer,optional"`
	FastaConverter   string `hcl:"fasta_converter,optional"`
	ReadCounter      string `hcl:"read_counter,optional"`
	Gunzipper        string `hcl:"gunzipper,optional"`
}

type stageBlock struct {
	ID         string         `hcl:"id,label"`
	Timeout    int            `hcl:"timeout,optional"`
	BatchSize  int            `hcl:"batch_size,optional"`
	Properties hcl.Expression `hcl:"properties,optional"`
}

type notifyBlock struct {
	URL                string `hcl:"url"`
	Namespace          string `hcl:"namespace,optional"`
	Event              string `hcl:"event,optional"`
	InsecureSkipVerify bool   `hcl:"insecure_skip_verify,optional"`
}
