// Package shell provides the toolchain executor adapter.
package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// stderrTailSize bounds the error output kept for ToolchainError.
const stderrTailSize = 4096

var _ ports.Executor = (*Executor)(nil)

// Executor implements ports.Executor using os/exec.
type Executor struct {
	logger ports.Logger
}

// NewExecutor creates a new Executor.
func NewExecutor(logger ports.Logger) *Executor {
	return &Executor{
		logger: logger,
	}
}

// Run executes the command and waits for it to complete.
// It merges environments with the following priority (low to high):
// 1. os.Environ() (System base)
// 2. cmd.ExtraEnv (resolved build requirements)
// 3. cmd.Env (strategy and recipe variables)
//
// PATH entries from cmd.ExtraEnv are prepended to the system PATH.
// A nil writer sends that stream to the logger line by line.
// Failures are reported as *domain.ToolchainError carrying the tail of stderr.
func (e *Executor) Run(ctx context.Context, cmd domain.Command, stdout, stderr io.Writer) error {
	if len(cmd.Args) == 0 {
		return nil
	}

	name := cmd.Args[0]
	args := cmd.Args[1:]

	cmdEnv := resolveEnvironment(os.Environ(), cmd.ExtraEnv, cmd.Env)

	executable := name
	if !filepath.IsAbs(name) && !strings.ContainsRune(name, filepath.Separator) {
		if lp, err := lookPath(name, cmdEnv); err == nil {
			executable = lp
		}
	}

	c := exec.CommandContext(ctx, executable, args...) //nolint:gosec // recipe provided command

	// exec.CommandContext sets Args[0] to the executable path.
	// Preserve the name as invoked.
	if len(c.Args) > 0 {
		c.Args[0] = name
	}

	if cmd.Dir != "" {
		c.Dir = cmd.Dir
	}
	c.Env = cmdEnv

	stdoutLog := &logWriter{logger: e.logger, level: "info"}
	stderrLog := &logWriter{logger: e.logger, level: "error"}
	tail := &tailBuffer{max: stderrTailSize}

	c.Stdout = orLog(stdout, stdoutLog)
	c.Stderr = io.MultiWriter(orLog(stderr, stderrLog), tail)

	e.logger.Info("running " + cmd.String())
	err := c.Run()
	_ = stdoutLog.Close()
	_ = stderrLog.Close()

	if err == nil {
		return nil
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = errors.Join(err, ctxErr)
	}

	return &domain.ToolchainError{
		Command:  cmd.String(),
		ExitCode: exitCode,
		Stderr:   tail.String(),
		Err:      zerr.With(zerr.Wrap(err, "command failed"), "exit_code", exitCode),
	}
}

func orLog(w io.Writer, fallback *logWriter) io.Writer {
	if w == nil {
		return fallback
	}
	return w
}

type logWriter struct {
	logger ports.Logger
	level  string
	buf    []byte
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	w.buf = append(w.buf, p...)

	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}

		w.logLine(w.buf[:i])
		w.buf = w.buf[i+1:]
	}

	return len(p), nil
}

func (w *logWriter) Close() error {
	if len(w.buf) > 0 {
		w.logLine(w.buf)
		w.buf = nil
	}
	return nil
}

func (w *logWriter) logLine(line []byte) {
	msg := strings.TrimSuffix(string(line), "\r")

	if w.level == "info" {
		w.logger.Info(msg)
	} else {
		w.logger.Error(zerr.New(msg))
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(t.buf))
}

// resolveEnvironment merges environment variables with the defined priority.
// The result is sorted so that identical inputs yield identical environments.
func resolveEnvironment(sysEnv, extraEnv []string, cmdEnv map[string]string) []string {
	envMap := make(map[string]string)
	for _, entry := range sysEnv {
		k, v, ok := strings.Cut(entry, "=")
		if ok {
			envMap[k] = v
		}
	}

	applyExtraEnv(envMap, extraEnv)

	for k, v := range cmdEnv {
		envMap[k] = v
	}

	result := make([]string, 0, len(envMap))
	for k, v := range envMap {
		result = append(result, k+"="+v)
	}
	slices.Sort(result)
	return result
}

func applyExtraEnv(envMap map[string]string, extraEnv []string) {
	for _, entry := range extraEnv {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if k == "PATH" {
			if sysPath, exists := envMap["PATH"]; exists && sysPath != "" {
				envMap[k] = v + string(os.PathListSeparator) + sysPath
				continue
			}
		}
		envMap[k] = v
	}
}

// lookPath searches for an executable in the directories named by the PATH environment variable.
func lookPath(file string, env []string) (string, error) {
	var path string
	for _, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			path = strings.TrimPrefix(e, "PATH=")
			break
		}
	}

	if path == "" {
		return "", exec.ErrNotFound
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		path := filepath.Join(dir, file)
		if err := findExecutable(path); err == nil {
			return path, nil
		}
	}
	return "", exec.ErrNotFound
}

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0o111 != 0 {
		return nil
	}
	return os.ErrPermission
}
