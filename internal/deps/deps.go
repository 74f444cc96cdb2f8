package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Requirement defines an external dependency avatarforge relies on. Command is
// resolved through PATH unless it is a path.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// FileRequirement is a model or weights file that must exist on disk.
type FileRequirement struct {
	Name        string
	Path        string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch resolved, err := exec.LookPath(cmd); {
		case cmd == "":
			status.Detail = "command not configured"
		case err != nil:
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
		default:
			status.Command = resolved
			status.Available = true
		}
		results = append(results, status)
	}
	return results
}

// CheckFiles reports whether each file exists and is a non-empty regular file.
func CheckFiles(requirements []FileRequirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		path := strings.TrimSpace(req.Path)
		status := Status{
			Name:        req.Name,
			Command:     path,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if path == "" {
			status.Detail = "path not configured"
			results = append(results, status)
			continue
		}
		info, err := os.Stat(path)
		switch {
		case err != nil:
			status.Detail = fmt.Sprintf("file %q not found", path)
		case !info.Mode().IsRegular():
			status.Detail = fmt.Sprintf("%q is not a regular file", path)
		case info.Size() == 0:
			status.Detail = fmt.Sprintf("file %q is empty", path)
		default:
			status.Available = true
		}
		results = append(results, status)
	}
	return results
}

// Missing returns the required dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}
