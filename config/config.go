// Package config holds the run parameters of a feature selection search.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Sharma-Saravanan/deep-radiomics/svm"
)

var ErrInvalid = errors.New("config: invalid value")

// Config is the full set of run parameters. The zero value is not usable;
// start from Default.
type Config struct {
	DataPath    string   `yaml:"data_path"`
	// LabelColumn must name a header column; empty picks "label" or the first column.
	LabelColumn string   `yaml:"label_column"`
	DropColumns []string `yaml:"drop_columns"`

	PopulationSize int     `yaml:"population_size"`
	Generations    int     `yaml:"generations"`
	CrossoverRate  float64 `yaml:"crossover_rate"`
	MutationRate   float64 `yaml:"mutation_rate"`
	Seed           uint64  `yaml:"seed"`

	Folds       int    `yaml:"folds"`
	Workers     int    `yaml:"workers"`
	FoldSeed    uint64 `yaml:"fold_seed"`
	ShuffleFold bool   `yaml:"shuffle_folds"`
	Memoize     bool   `yaml:"memoize"`

	// ReferenceMin and ReferenceMax bound the hypervolume box, one entry per objective.
	ReferenceMin []float64 `yaml:"reference_min"`
	ReferenceMax []float64 `yaml:"reference_max"`

	Model svm.Params `yaml:"model"`

	PlotDir string `yaml:"plot_dir"`
}

// Default returns the parameters of the reference radiomics run.
func Default() Config {
	return Config{
		DataPath:       "radiomics.csv",
		PopulationSize: 10,
		Generations:    100,
		CrossoverRate:  1.0,
		Seed:           1,
		Folds:          3,
		Workers:        3,
		FoldSeed:       42,
		ShuffleFold:    true,
		Memoize:        true,
		ReferenceMin:   []float64{0, 0},
		ReferenceMax:   []float64{1, 1},
		Model:          svm.DefaultParams(),
		PlotDir:        "plots",
	}
}

// Load overlays the YAML file at path on Default and validates the result.
// Keys that do not map to a field are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalid}, args...)...)
}

// Validate checks every field for a usable value.
func (c Config) Validate() error {
	switch {
	case c.DataPath == "":
		return invalid("data_path is empty")
	case c.PopulationSize < 2:
		return invalid("population_size must be > 1 (got %d)", c.PopulationSize)
	case c.Generations < 1:
		return invalid("generations must be > 0 (got %d)", c.Generations)
	case c.CrossoverRate < 0 || c.CrossoverRate > 1:
		return invalid("crossover_rate must be in [0,1] (got %v)", c.CrossoverRate)
	case c.MutationRate < 0 || c.MutationRate > 1:
		return invalid("mutation_rate must be in [0,1] (got %v)", c.MutationRate)
	case c.Folds < 2:
		return invalid("folds must be > 1 (got %d)", c.Folds)
	case c.Workers < 1:
		return invalid("workers must be > 0 (got %d)", c.Workers)
	case len(c.ReferenceMin) != 2 || len(c.ReferenceMax) != 2:
		return invalid("reference bounds need one entry per objective (2), got %d and %d",
			len(c.ReferenceMin), len(c.ReferenceMax))
	case c.Model.C <= 0:
		return invalid("model.c must be > 0 (got %v)", c.Model.C)
	case c.Model.MaxIterations < 1:
		return invalid("model.max_iterations must be > 0 (got %d)", c.Model.MaxIterations)
	}
	return nil
}
