package agent

import (
	"regexp"

	"github.com/starford/quill/internal/notes"
)

var writeSuccessRe = regexp.MustCompile(`(?s)^Successfully wrote \d+ characters to '(.+)'\.$`)

// extractWrittenFilename scans capability results from newest to oldest and
// returns the filename of the most recent successful write. Only whole
// results matching the write success text count; planner prose and failure
// results never match. Run uses it to cross-check the structured write
// records against the text the planner saw.
func extractWrittenFilename(t Transcript) (string, bool) {
	for i := len(t) - 1; i >= 0; i-- {
		turn := t[i]
		if turn.Role != RoleCapability || turn.Failed {
			continue
		}
		if m := writeSuccessRe.FindStringSubmatch(turn.Content); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// lastWrite returns the filename of the last recorded write.
func lastWrite(writes []notes.Write) string {
	if len(writes) == 0 {
		return ""
	}
	return writes[len(writes)-1].Filename
}
