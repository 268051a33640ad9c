// Package scriptgen writes the MAIN_ and worker scripts of script-driven
// stages. Every generated script records its own progress through the
// marker files read by the monitor package.
package scriptgen

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/specialistvlad/biolockgo/internal/stage"
	"github.com/specialistvlad/biolockgo/internal/status"
)

// ErrNoCommands is returned when a batch would have no work in it.
var ErrNoCommands = errors.New("script batch has no commands")

var workerTmpl = newTemplate("worker", `#!/bin/bash
# Worker {{.Index}} of stage {{.Stage}}
SCRIPT={{.Path | quote}}
touch "${SCRIPT}{{.Started}}"
trap 'echo "line ${LINENO}: ${BASH_COMMAND}" >> "${SCRIPT}{{.Failures}}"; exit 1' ERR
cd {{.WorkDir | quote}}
{{range .Commands}}{{.}}
{{end}}touch "${SCRIPT}{{.Success}}"
`)

var mainTmpl = newTemplate("main", `#!/bin/bash
# Launches every worker of stage {{.Stage}}
SCRIPT={{.Path | quote}}
touch "${SCRIPT}{{.Started}}"
trap 'echo "line ${LINENO}: ${BASH_COMMAND}" >> "${SCRIPT}{{.Failures}}"; exit 1' ERR
{{range .Workers}}bash {{. | quote}} &
{{end}}wait
touch "${SCRIPT}{{.Success}}"
`)

var rTmpl = newTemplate("r", `#!/usr/bin/env Rscript
# Stage {{.Stage}}
script <- {{.Path | rquote}}
file.create(paste0(script, "{{.Started}}"))
ok <- tryCatch({
{{.Body}}
  TRUE
}, error = function(e) {
  cat(conditionMessage(e), file = paste0(script, "{{.Failures}}"), sep = "\n", append = TRUE)
  FALSE
})
if (isTRUE(ok)) file.create(paste0(script, "{{.Success}}"))
`)

var funcs = template.FuncMap{"quote": Quote, "rquote": rQuote}

func newTemplate(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(funcs).Parse(text))
}

type markers struct {
	Started  string
	Success  string
	Failures string
}

var suffixes = markers{
	Started:  status.ScriptStartedSuffix,
	Success:  status.ScriptSuccessSuffix,
	Failures: status.ScriptFailuresSuffix,
}

// MainScriptName is the MAIN_ script name of a stage with the given extension.
func MainScriptName(d stage.Descriptor, ext string) string {
	return stage.MainScriptPrefix + d.Name() + ext
}

// WorkerScriptName names worker i, e.g. "03.1_RdpClassifier.sh".
func WorkerScriptName(d stage.Descriptor, i int) string {
	ordinal, _, _ := strings.Cut(d.Name(), "_")
	return fmt.Sprintf("%s.%d_%s.sh", ordinal, i, d.ID)
}

// WriteBatch splits commands into worker scripts of sc.BatchSize commands
// each (one command per worker when unset), writes the MAIN_ script that
// launches them and returns its path.
func WriteBatch(sc *stage.Context, commands []string) (string, error) {
	if len(commands) == 0 {
		return "", ErrNoCommands
	}
	dir := sc.ScriptDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	size := sc.BatchSize
	if size <= 0 {
		size = 1
	}

	var workers []string
	for i := 0; i*size < len(commands); i++ {
		end := min((i+1)*size, len(commands))
		path := filepath.Join(dir, WorkerScriptName(sc.Stage, i))
		err := render(workerTmpl, path, struct {
			markers
			Index    int
			Stage    string
			Path     string
			WorkDir  string
			Commands []string
		}{suffixes, i, sc.Stage.Name(), path, sc.TempDir(), commands[i*size : end]})
		if err != nil {
			return "", err
		}
		workers = append(workers, path)
	}

	main := filepath.Join(dir, MainScriptName(sc.Stage, ".sh"))
	err := render(mainTmpl, main, struct {
		markers
		Stage   string
		Path    string
		Workers []string
	}{suffixes, sc.Stage.Name(), main, workers})
	if err != nil {
		return "", err
	}
	return main, nil
}

// WriteRScript writes a single MAIN_ R script around body and returns its path.
func WriteRScript(sc *stage.Context, body string) (string, error) {
	dir := sc.ScriptDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	main := filepath.Join(dir, MainScriptName(sc.Stage, ".R"))
	err := render(rTmpl, main, struct {
		markers
		Stage string
		Path  string
		Body  string
	}{suffixes, sc.Stage.Name(), main, body})
	if err != nil {
		return "", err
	}
	return main, nil
}

func render(t *template.Template, path string, data any) error {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o750); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Quote wraps s in single quotes for bash.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func rQuote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}
