package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SuiteOptions controls RunSuite.
type SuiteOptions struct {
	// Update rewrites golden files instead of comparing against them.
	Update bool
}

// ScenarioOutcome is the result of one scenario file in a suite.
type ScenarioOutcome struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "match", "updated", "mismatch", or "" when absent
	Errors []string `json:"errors,omitempty"`
}

// SuiteResult summarises a suite run.
type SuiteResult struct {
	Scenarios []ScenarioOutcome `json:"scenarios"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
	Total     int               `json:"total"`
}

// FindScenarios returns the .yaml and .yml files under dir in lexical
// order, filtered by the glob pattern.
func FindScenarios(dir, filter string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("scenarios: %w", err)
	}
	if !info.IsDir() {
		return []string{dir}, nil
	}

	var files []string
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	sort.Strings(files)
	return files, err
}

// GoldenPath returns the golden file next to a scenario file:
// <dir>/golden/<name>.golden.
func GoldenPath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// RunSuite loads and runs every scenario file, comparing each against its
// golden file when one exists.
func RunSuite(paths []string, opts SuiteOptions) *SuiteResult {
	result := &SuiteResult{
		Scenarios: make([]ScenarioOutcome, 0, len(paths)),
		Total:     len(paths),
	}
	for _, path := range paths {
		outcome := runScenarioFile(path, opts)
		if outcome.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, outcome)
	}
	return result
}

func runScenarioFile(path string, opts SuiteOptions) ScenarioOutcome {
	outcome := ScenarioOutcome{Name: filepath.Base(path), Path: path}
	fail := func(format string, args ...any) ScenarioOutcome {
		outcome.Pass = false
		outcome.Errors = append(outcome.Errors, fmt.Sprintf(format, args...))
		return outcome
	}

	scenario, err := LoadScenario(path)
	if err != nil {
		return fail("failed to load scenario: %v", err)
	}
	outcome.Name = scenario.Name

	result, err := Run(scenario)
	if err != nil {
		return fail("execution failed: %v", err)
	}

	snapshot := NewSnapshot(scenario.Name, result)
	data, err := snapshot.Marshal()
	if err != nil {
		return fail("failed to marshal snapshot: %v", err)
	}

	goldenPath := GoldenPath(path)
	if opts.Update {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
			return fail("failed to create golden directory: %v", err)
		}
		if err := os.WriteFile(goldenPath, data, 0o644); err != nil {
			return fail("failed to write golden file: %v", err)
		}
		outcome.Golden = "updated"
	} else if golden, err := os.ReadFile(goldenPath); err == nil {
		if bytes.Equal(golden, data) {
			outcome.Golden = "match"
		} else {
			outcome.Golden = "mismatch"
			outcome.Errors = append(outcome.Errors, "snapshot does not match golden file (run with --update to regenerate)")
		}
	} else if !os.IsNotExist(err) {
		return fail("failed to read golden file: %v", err)
	}

	outcome.Errors = append(outcome.Errors, result.Errors...)
	outcome.Pass = len(outcome.Errors) == 0
	return outcome
}
