package workflow

import (
	"fmt"
	"time"

	"github.com/pmezard/go-difflib/difflib"
)

// revisionDiff returns a unified diff between two versions of an artifact,
// or "" when they are identical.
func revisionDiff(name string, prev *Artifact, next string, at time.Time) (string, error) {
	if prev == nil || prev.Content == next {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(prev.Content),
		B:        difflib.SplitLines(next),
		FromFile: fmt.Sprintf("%s@%s", name, prev.Timestamp.Format(time.RFC3339)),
		ToFile:   fmt.Sprintf("%s@%s", name, at.Format(time.RFC3339)),
		Context:  3,
	})
}
