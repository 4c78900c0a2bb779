package agents

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/taskpilot/taskpilot/internal/adapter"
	"github.com/taskpilot/taskpilot/internal/process"
)

// Catalog is the immutable set of backend specs, keyed by tool ID.
type Catalog struct {
	specs map[string]Spec
}

// DefaultCatalog returns the built-in specs for the supported backends.
func DefaultCatalog() *Catalog {
	specs := map[string]Spec{
		adapter.ToolClaude: {
			ID:         adapter.ToolClaude,
			Name:       "Claude Code",
			Executable: "claude",
			BaseArgs:   []string{"-p", "--output-format", "stream-json", "--verbose"},
			ResumeFlag: NewParam("--resume"),
			AllowFlag:  NewParam("--allowedTools"),
			StdinMode:  process.StdinNone,
		},
		adapter.ToolCodex: {
			ID:         adapter.ToolCodex,
			Name:       "Codex CLI",
			Executable: "codex",
			BaseArgs:   []string{"exec", "--json"},
			ResumeFlag: NewParam("resume"),
			AllowFlag:  NewParam("--full-auto"),
			StdinMode:  process.StdinInherit,
		},
		adapter.ToolGemini: {
			ID:          adapter.ToolGemini,
			Name:        "Gemini CLI",
			Executable:  "gemini",
			BaseArgs:    []string{"--output-format", "stream-json", "--yolo"},
			PromptFlag:  NewParam("--prompt", "{prompt}"),
			ResumeFlag:  NewParam("--resume"),
			StdinMode:   process.StdinNone,
			RequiredEnv: "GEMINI_API_KEY",
		},
		adapter.ToolOpencode: {
			ID:         adapter.ToolOpencode,
			Name:       "OpenCode",
			Executable: "opencode",
			BaseArgs:   []string{"run", "--print-logs", "--format", "json"},
			ResumeFlag: NewParam("--session"),
			StdinMode:  process.StdinNone,
		},
	}
	return &Catalog{specs: specs}
}

// Get returns the spec for a tool ID.
func (c *Catalog) Get(tool string) (Spec, error) {
	spec, ok := c.specs[tool]
	if !ok {
		return Spec{}, fmt.Errorf("unknown tool %q", tool)
	}
	return spec, nil
}

// List returns all specs sorted by ID.
func (c *Catalog) List() []Spec {
	out := make([]Spec, 0, len(c.specs))
	for _, spec := range c.specs {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// specOverride is the yaml shape for per-tool catalog overrides. Flags
// are token lists so a syntax change is pure configuration.
type specOverride struct {
	Executable  string   `yaml:"executable"`
	BaseArgs    []string `yaml:"baseArgs"`
	PromptFlag  []string `yaml:"promptFlag"`
	ResumeFlag  []string `yaml:"resumeFlag"`
	AllowFlag   []string `yaml:"allowFlag"`
	RequiredEnv *string  `yaml:"requiredEnv"`
	StdinWiring string   `yaml:"stdin"` // "none" or "inherit"
}

// LoadOverrides applies a yaml overrides file on top of the built-in
// catalog. Unknown tool keys are rejected so typos surface at startup.
func (c *Catalog) LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read agents file: %w", err)
	}

	var overrides map[string]specOverride
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("failed to parse agents file: %w", err)
	}

	for tool, o := range overrides {
		spec, ok := c.specs[tool]
		if !ok {
			return fmt.Errorf("agents file overrides unknown tool %q", tool)
		}
		if o.Executable != "" {
			spec.Executable = o.Executable
		}
		if o.BaseArgs != nil {
			spec.BaseArgs = o.BaseArgs
		}
		if o.PromptFlag != nil {
			spec.PromptFlag = NewParam(o.PromptFlag...)
		}
		if o.ResumeFlag != nil {
			spec.ResumeFlag = NewParam(o.ResumeFlag...)
		}
		if o.AllowFlag != nil {
			spec.AllowFlag = NewParam(o.AllowFlag...)
		}
		if o.RequiredEnv != nil {
			spec.RequiredEnv = *o.RequiredEnv
		}
		switch o.StdinWiring {
		case "":
		case "none":
			spec.StdinMode = process.StdinNone
		case "inherit":
			spec.StdinMode = process.StdinInherit
		default:
			return fmt.Errorf("agents file: invalid stdin mode %q for tool %q", o.StdinWiring, tool)
		}
		c.specs[tool] = spec
	}
	return nil
}
