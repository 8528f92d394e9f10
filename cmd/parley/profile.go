package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// runProfile is an optional YAML file pre-configuring a run: provider and
// model selection, which thread to resume, and prompts to send before the
// interactive loop starts.
//
// Example:
//
//	provider: anthropic
//	model: claude-sonnet-4-5
//	db: /tmp/scratch.db
//	prompts:
//	  - Summarize the attached notes.
//	  - Now translate the summary to German.
type runProfile struct {
	Provider string   `yaml:"provider"`
	Model    string   `yaml:"model"`
	Thread   string   `yaml:"thread"`
	DB       string   `yaml:"db"`
	Prompts  []string `yaml:"prompts"`
}

func loadProfile(path string) (*runProfile, error) {
	if path == "" {
		return &runProfile{}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	var p runProfile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	return &p, nil
}

// applyProfile fills cli fields the user did not set on the command line.
// Flags win over the profile.
func applyProfile(cli *cliConfig, p *runProfile) {
	if cli.Provider == "" {
		cli.Provider = p.Provider
	}
	if cli.Model == "" {
		cli.Model = p.Model
	}
	if cli.ThreadID == "" {
		cli.ThreadID = p.Thread
	}
	if cli.DBPath == "" {
		cli.DBPath = p.DB
	}
}
