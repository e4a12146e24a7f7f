package spec

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingArtifact classifies MissingArtifactError values.
	ErrMissingArtifact = errors.New("missing artifact")

	// ErrMalformed classifies MalformedError values.
	ErrMalformed = errors.New("malformed specification")
)

// ArtifactKind names the input file a MissingArtifactError is about.
type ArtifactKind string

const (
	ArtifactModule        ArtifactKind = "module"
	ArtifactSpecification ArtifactKind = "specification"
)

// MissingArtifactError reports a target module or specification file that
// does not exist.
type MissingArtifactError struct {
	Kind ArtifactKind
	Path string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("%s does not exist", e.Path)
}

// Is reports ErrMissingArtifact.
func (e *MissingArtifactError) Is(target error) bool { return target == ErrMissingArtifact }

// MalformedError reports a specification document whose shape is wrong.
type MalformedError struct {
	Path   string // empty when the node was not read from a file
	Line   int    // 1-indexed, 0 when unknown
	Reason string
}

func (e *MalformedError) Error() string {
	switch {
	case e.Path != "" && e.Line > 0:
		return fmt.Sprintf("malformed specification %s:%d: %s", e.Path, e.Line, e.Reason)
	case e.Path != "":
		return fmt.Sprintf("malformed specification %s: %s", e.Path, e.Reason)
	case e.Line > 0:
		return fmt.Sprintf("malformed specification at line %d: %s", e.Line, e.Reason)
	}
	return "malformed specification: " + e.Reason
}

// Is reports ErrMalformed.
func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }
