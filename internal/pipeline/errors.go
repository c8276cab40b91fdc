package pipeline

import "fmt"

// MissingArtifactError is returned when a job declares an input artifact that
// was never produced, or whose retention window has passed.
type MissingArtifactError struct {
	Artifact string
	Job      string
	Expired  bool
}

func (e *MissingArtifactError) Error() string {
	if e.Expired {
		return fmt.Sprintf("artifact %q required by job %q has expired", e.Artifact, e.Job)
	}
	return fmt.Sprintf("artifact %q required by job %q was not produced", e.Artifact, e.Job)
}
