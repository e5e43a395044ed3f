package gateways

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.trai.ch/zerr"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/ochairo/feedstock/internal/domain/entities"
	"github.com/ochairo/feedstock/internal/domain/interfaces"
)

const defaultScriptTimeout = 30 * time.Minute

// ScriptExecutor runs recipe scripts through an embedded POSIX shell
// interpreter. External programs such as python are started by the
// interpreter's exec handler.
type ScriptExecutor struct {
	defaultTimeout time.Duration
	python         string
	logger         interfaces.Logger
	stdout         io.Writer
	stderr         io.Writer
}

// NewScriptExecutor creates a new script executor. python is exported to
// scripts as $PYTHON; a zero timeout selects 30 minutes.
func NewScriptExecutor(logger interfaces.Logger, python string, defaultTimeout time.Duration) *ScriptExecutor {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	if python == "" {
		python = "python"
	}
	if defaultTimeout <= 0 {
		defaultTimeout = defaultScriptTimeout
	}
	return &ScriptExecutor{
		defaultTimeout: defaultTimeout,
		python:         python,
		logger:         logger,
	}
}

// StreamOutput copies script output to the given writers as it is produced
// in addition to capturing it.
func (se *ScriptExecutor) StreamOutput(stdout, stderr io.Writer) {
	se.stdout = stdout
	se.stderr = stderr
}

// Python returns the interpreter scripts see as $PYTHON
func (se *ScriptExecutor) Python() string {
	return se.python
}

// ExecuteScriptConfig contains configuration for executing a shell script.
type ExecuteScriptConfig struct {
	Script      string
	WorkingDir  string
	Env         map[string]string
	Timeout     time.Duration
	Description string
}

// ExecuteResult contains the result of script execution
type ExecuteResult struct {
	Success  bool
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	Error    error
}

// ExecuteScript runs a shell script with the given configuration. ExitCode
// carries the script's exit status unchanged; it is -1 when the script could
// not be run to completion (parse error, timeout, cancellation).
func (se *ScriptExecutor) ExecuteScript(ctx context.Context, config ExecuteScriptConfig) *ExecuteResult {
	startTime := time.Now()
	result := &ExecuteResult{ExitCode: -1}

	name := config.Description
	if name == "" {
		name = "script"
	}

	prog, err := syntax.NewParser().Parse(strings.NewReader(config.Script), name)
	if err != nil {
		result.Error = fmt.Errorf("script syntax error: %w", err)
		return result
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = se.defaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	env := os.Environ()
	for key, value := range config.Env {
		env = append(env, key+"="+value)
	}

	var stdout, stderr bytes.Buffer
	opts := []interp.RunnerOption{
		interp.Env(expand.ListEnviron(env...)),
		interp.StdIO(nil, tee(&stdout, se.stdout), tee(&stderr, se.stderr)),
	}
	if config.WorkingDir != "" {
		opts = append(opts, interp.Dir(config.WorkingDir))
	}

	runner, err := interp.New(opts...)
	if err != nil {
		result.Error = fmt.Errorf("failed to create interpreter: %w", err)
		return result
	}

	se.logger.Debug("executing script", interfaces.F("step", name), interfaces.F("dir", config.WorkingDir))

	err = runner.Run(execCtx, prog)
	result.Duration = time.Since(startTime)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if err != nil {
		var exitStatus interp.ExitStatus
		switch {
		case errors.Is(execCtx.Err(), context.DeadlineExceeded):
			result.Error = fmt.Errorf("script execution timeout after %v", timeout)
		case ctx.Err() != nil:
			result.Error = fmt.Errorf("script execution cancelled: %w", ctx.Err())
		case errors.As(err, &exitStatus):
			result.ExitCode = int(exitStatus)
			result.Error = fmt.Errorf("exit status %d", result.ExitCode)
		default:
			result.Error = fmt.Errorf("script execution failed: %w", err)
		}
		return result
	}

	result.Success = true
	result.ExitCode = 0
	return result
}

// ExecuteBuildScript runs the recipe's build script inside the extracted
// source tree with the conventional build variables exported.
func (se *ScriptExecutor) ExecuteBuildScript(
	ctx context.Context,
	recipe *entities.Recipe,
	sourceDir, prefix string,
) *ExecuteResult {
	timeout := se.defaultTimeout
	if recipe.Build.TimeoutMinutes > 0 {
		timeout = time.Duration(recipe.Build.TimeoutMinutes) * time.Minute
	}

	var result *ExecuteResult
	env := se.BuildEnv(recipe, sourceDir, prefix)
	home, err := WriteInstallConfig(prefix)
	if err != nil {
		result = &ExecuteResult{ExitCode: -1, Error: err}
	} else {
		env["HOME"] = home
		result = se.ExecuteScript(ctx, ExecuteScriptConfig{
			Script:      recipe.Build.Script,
			WorkingDir:  sourceDir,
			Env:         env,
			Timeout:     timeout,
			Description: "build",
		})
	}

	if result.Success {
		se.logger.Info("build script completed",
			interfaces.F("recipe", recipe.Name),
			interfaces.F("duration", result.Duration.Round(time.Millisecond)))
	} else {
		se.logger.Error("build script failed",
			interfaces.F("recipe", recipe.Name),
			interfaces.F("exit_code", result.ExitCode),
			interfaces.F("error", result.Error))
	}
	return result
}

// RunBuild runs the recipe's build script and reports its exit status
func (se *ScriptExecutor) RunBuild(ctx context.Context, recipe *entities.Recipe, sourceDir, prefix string) (int, error) {
	result := se.ExecuteBuildScript(ctx, recipe, sourceDir, prefix)
	if !result.Success {
		err := fmt.Errorf("%w: %v", entities.ErrScriptFailed, result.Error)
		return result.ExitCode, zerr.With(zerr.With(err, "recipe", recipe.Name), "exit_code", result.ExitCode)
	}
	return 0, nil
}

// WriteInstallConfig creates a build-scoped home directory next to prefix
// holding a .pydistutils.cfg that points `setup.py install` at prefix, and
// returns the directory.
func WriteInstallConfig(prefix string) (string, error) {
	home := filepath.Join(filepath.Dir(prefix), "home")
	if err := os.MkdirAll(home, 0750); err != nil {
		return "", fmt.Errorf("failed to create build home: %w", err)
	}
	cfg := "[install]\nprefix = " + prefix + "\n"
	if err := os.WriteFile(filepath.Join(home, ".pydistutils.cfg"), []byte(cfg), 0600); err != nil {
		return "", fmt.Errorf("failed to write install config: %w", err)
	}
	return home, nil
}

// SitePackages returns the site-packages directories found under prefix
func SitePackages(prefix string) []string {
	var dirs []string
	for _, pattern := range []string{"lib/python*/site-packages", "lib64/python*/site-packages"} {
		matches, _ := filepath.Glob(filepath.Join(prefix, filepath.FromSlash(pattern)))
		dirs = append(dirs, matches...)
	}
	return dirs
}

// BuildEnv returns the variables exported to build and test scripts.
// PIP_PREFIX sends `pip install .` into prefix.
func (se *ScriptExecutor) BuildEnv(recipe *entities.Recipe, sourceDir, prefix string) map[string]string {
	return map[string]string{
		"PREFIX":       prefix,
		"PIP_PREFIX":   prefix,
		"SRC_DIR":      sourceDir,
		"RECIPE_DIR":   recipe.RecipeDir(),
		"PKG_NAME":     recipe.Name,
		"PKG_VERSION":  recipe.Version,
		"PKG_BUILDNUM": strconv.Itoa(recipe.Build.Number),
		"PYTHON":       se.python,
	}
}

// CheckSyntax reports shell syntax errors in script
func (se *ScriptExecutor) CheckSyntax(script string) error {
	if _, err := syntax.NewParser().Parse(strings.NewReader(script), "build.script"); err != nil {
		return fmt.Errorf("script syntax error: %w", err)
	}
	return nil
}

// ValidateScript performs basic validation on a shell script
func (se *ScriptExecutor) ValidateScript(script string) error {
	if strings.TrimSpace(script) == "" {
		return fmt.Errorf("script is empty")
	}

	if err := se.CheckSyntax(script); err != nil {
		return err
	}

	// Check for potentially dangerous commands (basic security check)
	dangerous := []string{
		"rm -rf /",
		"mkfs",
		"dd if=/dev/zero",
		":(){:|:&};:", // fork bomb
	}

	for _, pattern := range dangerous {
		if strings.Contains(script, pattern) {
			return fmt.Errorf("script contains potentially dangerous pattern: %s", pattern)
		}
	}

	return nil
}

func tee(buf *bytes.Buffer, w io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}
