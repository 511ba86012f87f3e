package harmonize

import (
	"errors"
	"fmt"

	"github.com/aalabel/aalabel-cli/internal/generation"
)

// Stage names the pipeline step a section failed in.
type Stage string

const (
	StageRetrieval  Stage = "retrieval"
	StageGeneration Stage = "generation"
	StageParsing    Stage = "parsing"
)

// StageError reports which section and which stage failed. It wraps the
// underlying typed error, which stays reachable through errors.As.
type StageError struct {
	Section string
	Stage   Stage
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("harmonize: section %s failed at %s: %v", e.Section, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// generationStage separates unparseable output from backend failures.
func generationStage(err error) Stage {
	var me *generation.MalformedGenerationError
	if errors.As(err, &me) {
		return StageParsing
	}
	return StageGeneration
}
