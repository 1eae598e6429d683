package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/speedrun-hq/rerunner/pkg/delay"
	"github.com/speedrun-hq/rerunner/pkg/policy"
)

// policyFile is the YAML layout of POLICY_FILE:
//
//	jobs:
//	  nightly:
//	    max_retries: 3
//	    retry_on_instability: true
//	    delay: {kind: fixed, seconds: 60}
type policyFile struct {
	Jobs map[string]policy.Config `yaml:"jobs"`
}

// delayKeys records which delay keys a job spelled out
type delayKeys struct {
	Jobs map[string]struct {
		Delay *struct {
			Max *int `yaml:"max"`
		} `yaml:"delay"`
	} `yaml:"jobs"`
}

// LoadPolicyFile reads per-job retry policies from a YAML file
func LoadPolicyFile(path string) (map[string]policy.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}
	return ParsePolicies(data)
}

// ParsePolicies decodes per-job retry policies
func ParsePolicies(data []byte) (map[string]policy.Config, error) {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if file.Jobs == nil {
		file.Jobs = map[string]policy.Config{}
	}

	var keys delayKeys
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	for job, cfg := range file.Jobs {
		if cfg.Delay == nil {
			continue
		}
		if d := keys.Jobs[job].Delay; d != nil && d.Max != nil {
			continue
		}
		// an omitted cap uses the default, an explicit zero is kept
		if kind, err := delay.ParseKind(string(cfg.Delay.Kind)); err == nil && kind != delay.KindFixed {
			cfg.Delay.Max = DefaultDelayMax
		}
	}
	return file.Jobs, nil
}
