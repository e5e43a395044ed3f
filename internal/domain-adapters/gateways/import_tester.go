package gateways

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.trai.ch/zerr"
	"mvdan.cc/sh/v3/syntax"

	"github.com/ochairo/feedstock/internal/domain/entities"
	"github.com/ochairo/feedstock/internal/domain/interfaces"
)

// ImportTester runs a recipe's test section against the installed package
type ImportTester struct {
	executor *ScriptExecutor
	logger   interfaces.Logger
}

// NewImportTester creates an import tester running through executor
func NewImportTester(executor *ScriptExecutor, logger interfaces.Logger) *ImportTester {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &ImportTester{executor: executor, logger: logger}
}

// ImportScript returns the shell command that imports module with $PYTHON
func ImportScript(module string) (string, error) {
	quoted, err := syntax.Quote("import "+module, syntax.LangPOSIX)
	if err != nil {
		return "", fmt.Errorf("cannot quote import %q: %w", module, err)
	}
	return `"$PYTHON" -c ` + quoted, nil
}

// RunTests imports every test.imports module and then runs each
// test.commands entry from workDir, with prefix's site-packages first on
// PYTHONPATH. It stops at the first failure; the
// returned result carries that step's exit code unchanged.
func (it *ImportTester) RunTests(ctx context.Context, recipe *entities.Recipe, workDir, prefix string) (*ExecuteResult, error) {
	env := it.executor.BuildEnv(recipe, workDir, prefix)
	env["PYTHONDONTWRITEBYTECODE"] = "1"
	if paths := SitePackages(prefix); len(paths) > 0 {
		if existing := os.Getenv("PYTHONPATH"); existing != "" {
			paths = append(paths, existing)
		}
		env["PYTHONPATH"] = strings.Join(paths, string(os.PathListSeparator))
	}

	type step struct {
		description string
		script      string
	}
	var steps []step
	for _, module := range recipe.Test.Imports {
		script, err := ImportScript(module)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step{description: "import " + module, script: script})
	}
	for _, command := range recipe.Test.Commands {
		steps = append(steps, step{description: command, script: command})
	}

	last := &ExecuteResult{Success: true}
	var output strings.Builder
	for _, s := range steps {
		result := it.executor.ExecuteScript(ctx, ExecuteScriptConfig{
			Script:      s.script,
			WorkingDir:  workDir,
			Env:         env,
			Description: "test",
		})
		output.WriteString(result.Stdout)

		if !result.Success {
			it.logger.Error("test failed",
				interfaces.F("recipe", recipe.Name),
				interfaces.F("step", s.description),
				interfaces.F("exit_code", result.ExitCode))
			result.Stdout = output.String()
			err := fmt.Errorf("%w: %s: %v", entities.ErrImportTestFailed, s.description, result.Error)
			return result, zerr.With(zerr.With(err, "step", s.description), "exit_code", result.ExitCode)
		}

		it.logger.Info("test passed", interfaces.F("recipe", recipe.Name), interfaces.F("step", s.description))
		last = result
	}

	last.Stdout = output.String()
	return last, nil
}

// Test runs the recipe's tests and reports the failing step's exit status
func (it *ImportTester) Test(ctx context.Context, recipe *entities.Recipe, workDir, prefix string) (int, error) {
	result, err := it.RunTests(ctx, recipe, workDir, prefix)
	if err != nil {
		if result == nil {
			return -1, err
		}
		return result.ExitCode, err
	}
	return 0, nil
}
