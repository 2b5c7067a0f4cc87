package experiment

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

const (
	logFileName       = "log.txt"
	parameterFileName = "parameters.json"
)

// Experiment owns the output directory of one run: the serialized
// parameters, the log file, and any artifacts (checkpoints, plots,
// submissions) produced while it is open.
type Experiment struct {
	Tag    string
	Dir    string
	Params *Params

	logFile *os.File
	prevOut io.Writer
}

// New creates the experiment directory `<tag>_<yymmdd-HHMMSS>` under
// logDir, persists the parameters, and tees the standard logger into a log
// file inside the directory.
func New(tag, logDir string, params *Params) (*Experiment, error) {
	if tag == "" {
		return nil, fmt.Errorf("experiment: tag must not be empty")
	}

	name := fmt.Sprintf("%v_%v", tag, time.Now().Format("060102-150405"))
	dir := filepath.Join(logDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("experiment: unable to create directory %v: %w", dir, err)
	}

	if err := params.Save(filepath.Join(dir, parameterFileName)); err != nil {
		return nil, fmt.Errorf("experiment: unable to save parameters: %w", err)
	}

	logFile, err := os.Create(filepath.Join(dir, logFileName))
	if err != nil {
		return nil, fmt.Errorf("experiment: unable to create log file: %w", err)
	}

	prevOut := log.Writer()
	log.SetOutput(io.MultiWriter(prevOut, logFile))
	log.Printf("using experiment directory %v", dir)

	return &Experiment{
		Tag:     tag,
		Dir:     dir,
		Params:  params,
		logFile: logFile,
		prevOut: prevOut,
	}, nil
}

// ArtifactPath returns the path of a file inside the experiment directory.
func (e *Experiment) ArtifactPath(name string) string {
	return filepath.Join(e.Dir, name)
}

// Close detaches the log file from the standard logger and closes it.
func (e *Experiment) Close() error {
	log.SetOutput(e.prevOut)

	return e.logFile.Close()
}
