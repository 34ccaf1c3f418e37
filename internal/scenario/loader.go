// =============================================
// File: internal/scenario/loader.go
// =============================================
package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the on-disk YAML layout.
type fileConfig struct {
	Scenario struct {
		Name        string `yaml:"name"`
		HaltOnError bool   `yaml:"halt_on_error"`
	} `yaml:"scenario"`
	Accounts []struct {
		Name    string `yaml:"name"`
		Balance string `yaml:"balance"`
	} `yaml:"accounts"`
	Steps []struct {
		Name        string `yaml:"name"`
		Type        string `yaml:"type"`
		Actor       string `yaml:"actor"`
		To          string `yaml:"to"`
		Amount      string `yaml:"amount"`
		Duration    string `yaml:"duration"`
		ExpectError string `yaml:"expect_error"`
	} `yaml:"steps"`
}

// Loader turns scenario files into validated Scenario values.
type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	return &Loader{logger: logger.Named("scenario")}
}

// LoadYAML reads and validates a scenario file. Steps that fail
// validation are skipped with a warning rather than aborting the load.
func (l *Loader) LoadYAML(path string) (*Scenario, error) {
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse scenario file: %w", err)
	}
	if len(cfg.Steps) == 0 {
		return nil, fmt.Errorf("no steps found in %s", cleanPath)
	}

	sc := &Scenario{
		Name:        cfg.Scenario.Name,
		HaltOnError: cfg.Scenario.HaltOnError,
	}
	for _, a := range cfg.Accounts {
		sc.Accounts = append(sc.Accounts, Account{Name: a.Name, Balance: a.Balance})
	}

	for i, raw := range cfg.Steps {
		step := Step{
			Name:        raw.Name,
			Type:        StepType(raw.Type),
			Actor:       raw.Actor,
			To:          raw.To,
			Amount:      raw.Amount,
			ExpectError: raw.ExpectError,
		}
		if step.Name == "" {
			step.Name = fmt.Sprintf("step-%d", i+1)
		}
		if raw.Duration != "" {
			d, err := time.ParseDuration(raw.Duration)
			if err != nil {
				l.logger.Warn("Skipping invalid step",
					zap.String("step", step.Name),
					zap.Error(err))
				continue
			}
			step.Duration = d
		}
		if err := step.Validate(); err != nil {
			l.logger.Warn("Skipping invalid step",
				zap.String("step", step.Name),
				zap.Error(err))
			continue
		}
		sc.Steps = append(sc.Steps, step)
	}

	if err := sc.Validate(); err != nil {
		return nil, err
	}
	l.logger.Info("Loaded scenario",
		zap.String("name", sc.Name),
		zap.Int("accounts", len(sc.Accounts)),
		zap.Int("steps", len(sc.Steps)))
	return sc, nil
}
