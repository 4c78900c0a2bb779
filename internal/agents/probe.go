package agents

import (
	"os"
	"os/exec"
)

// Available reports whether headless execution is usable for this spec:
// the executable resolves on PATH and, when a credential is required,
// the environment variable is non-empty.
//
// Results are deliberately not cached: PATH and the environment can
// change between calls (a user exporting a key mid-session).
func (s Spec) Available() bool {
	if _, err := exec.LookPath(s.Executable); err != nil {
		return false
	}
	if s.RequiredEnv != "" && os.Getenv(s.RequiredEnv) == "" {
		return false
	}
	return true
}

// Availability is the probe result exposed through the API.
type Availability struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Available bool   `json:"available"`
	// MissingEnv names the unset credential variable when that is the
	// reason headless execution is unusable.
	MissingEnv string `json:"missing_env,omitempty"`
}

// Probe returns the availability of every cataloged backend.
func (c *Catalog) Probe() []Availability {
	specs := c.List()
	out := make([]Availability, 0, len(specs))
	for _, spec := range specs {
		a := Availability{ID: spec.ID, Name: spec.Name, Available: spec.Available()}
		if !a.Available && spec.RequiredEnv != "" && os.Getenv(spec.RequiredEnv) == "" {
			a.MissingEnv = spec.RequiredEnv
		}
		out = append(out, a)
	}
	return out
}
