// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates run configuration for the shapley CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// runValidate is the validator instance for run configurations.
var runValidate *validator.Validate

func init() {
	runValidate = validator.New()
	runValidate.RegisterStructValidation(validateGame, GameConfig{})
}

// RunConfig is the full configuration of one estimation run.
type RunConfig struct {
	// Game selects the value function.
	Game GameConfig `yaml:"game"`

	// Approximator sets the estimator parameters.
	Approximator ApproximatorConfig `yaml:"approximator"`

	// Output controls result rendering.
	Output OutputConfig `yaml:"output"`

	// Logging controls the slog handler.
	Logging LoggingConfig `yaml:"logging"`

	// Telemetry controls trace and metric export.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// GameConfig selects the cooperative game to estimate.
type GameConfig struct {
	// Kind is the game type. Only "dummy" is built in.
	Kind string `yaml:"kind" validate:"required,oneof=dummy"`

	// Players is the player count n.
	Players int `yaml:"players" validate:"min=1,max=4096"`

	// Interaction lists the players that share the dummy game's bonus.
	Interaction []int `yaml:"interaction" validate:"dive,gte=0"`
}

// ApproximatorConfig holds the Owen sampler parameters.
type ApproximatorConfig struct {
	// Anchors is the anchor point count m.
	Anchors int `yaml:"anchors" validate:"min=1"`

	// Budget is the oracle-call ceiling.
	Budget int `yaml:"budget" validate:"gte=0"`

	// Seed fixes the random stream. Nil draws a fresh seed.
	Seed *uint64 `yaml:"seed,omitempty"`

	// Workers is the number of concurrent oracle evaluations.
	Workers int `yaml:"workers" validate:"min=1,max=256"`
}

// OutputConfig controls how results are rendered.
type OutputConfig struct {
	// Format is one of table, yaml, json.
	Format string `yaml:"format" validate:"oneof=table yaml json"`

	// CompareExact adds exact values and absolute errors to the output.
	CompareExact bool `yaml:"compare_exact"`
}

// LoggingConfig configures the structured logger. Dir, when set, adds a
// JSON log file next to the console output.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir,omitempty"`
}

// TelemetryConfig enables the trace and metric exporters.
type TelemetryConfig struct {
	// Stdout exports spans and metrics to stdout.
	Stdout bool `yaml:"stdout"`

	// MetricsFile, when set, receives a Prometheus textfile after the run.
	MetricsFile string `yaml:"metrics_file,omitempty"`
}

// Default returns the configuration used when no file is given: the
// five-player dummy game with players 1 and 2 interacting.
func Default() *RunConfig {
	return &RunConfig{
		Game: GameConfig{
			Kind:        "dummy",
			Players:     5,
			Interaction: []int{1, 2},
		},
		Approximator: ApproximatorConfig{
			Anchors: 10,
			Budget:  1000,
			Workers: 1,
		},
		Output: OutputConfig{
			Format: "table",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML file over Default() and validates the result.
//
// Inputs:
//   - path: Path to the YAML file. Unknown keys are rejected.
//
// Outputs:
//   - *RunConfig: The merged configuration. Nil on error.
//   - error: Read, parse, or ErrInvalidConfig errors.
func Load(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default() and validates the result.
func Parse(data []byte) (*RunConfig, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse the config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field constraint.
func (c *RunConfig) Validate() error {
	if err := runValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]error, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Errorf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return errors.Join(ErrInvalidConfig, errors.Join(msgs...))
		}
		return errors.Join(ErrInvalidConfig, err)
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c *RunConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// validateGame rejects interaction players outside [0, Players).
func validateGame(sl validator.StructLevel) {
	g := sl.Current().Interface().(GameConfig)
	for i, p := range g.Interaction {
		if p >= g.Players {
			sl.ReportError(g.Interaction[i], fmt.Sprintf("Interaction[%d]", i), "Interaction", "ltplayers", "")
		}
	}
}
