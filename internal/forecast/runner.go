// Package forecast runs the upstream forecasting process and decodes the
// products it writes.
package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/stockcast/internal/domain"
)

const (
	defaultTimeout = 10 * time.Minute
	// waitDelay bounds how long a killed process may keep its pipes open.
	waitDelay   = 5 * time.Second
	stderrLimit = 4 << 10
)

// InputSource fetches the input workbook the process reads.
type InputSource interface {
	Fetch(ctx context.Context, dest string) error
}

// Config describes the process invocation. With an empty OutputPath the
// products are read from standard output.
type Config struct {
	Command    string
	Args       []string
	WorkDir    string
	OutputPath string
	Timeout    time.Duration
	// InputFlag introduces the downloaded workbook path on the command line.
	InputFlag string
	InputPath string
}

// Runner invokes the forecasting process with a hard timeout.
type Runner struct {
	cfg   Config
	input InputSource
}

// NewRunner creates a Runner. input may be nil when the process finds its
// own input.
func NewRunner(cfg Config, input InputSource) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Runner{cfg: cfg, input: input}
}

// Run executes the process and decodes its output. Failures of the process
// itself are reported as *domain.UpstreamError.
func (r *Runner) Run(ctx context.Context) ([]domain.Product, error) {
	if r.cfg.Command == "" {
		return nil, errors.New("forecast command is not configured")
	}

	args := append([]string(nil), r.cfg.Args...)
	if r.input != nil {
		dest := r.cfg.InputPath
		if dest == "" {
			dest = filepath.Join(os.TempDir(), "stockcast-input.xlsx")
		}
		if err := r.input.Fetch(ctx, dest); err != nil {
			return nil, fmt.Errorf("fetch forecast input: %w", err)
		}
		if r.cfg.InputFlag != "" {
			args = append(args, r.cfg.InputFlag)
		}
		args = append(args, dest)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.cfg.Command, args...)
	cmd.Dir = r.cfg.WorkDir
	cmd.WaitDelay = waitDelay
	var stdout bytes.Buffer
	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	started := time.Now()
	log.Info().Str("command", r.cfg.Command).Strs("args", args).Dur("timeout", r.cfg.Timeout).Msg("running forecast process")

	if err := cmd.Run(); err != nil {
		upErr := &domain.UpstreamError{Stderr: stderr.String(), Timeout: r.cfg.Timeout, Err: err}
		var exitErr *exec.ExitError
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			upErr.TimedOut = true
		case errors.As(err, &exitErr):
			upErr.ExitCode = exitErr.ExitCode()
		}
		log.Error().Err(upErr).Dur("elapsed", time.Since(started)).Msg("forecast process failed")
		return nil, upErr
	}
	log.Info().Dur("elapsed", time.Since(started)).Msg("forecast process finished")

	output := stdout.Bytes()
	if r.cfg.OutputPath != "" {
		path := r.cfg.OutputPath
		if !filepath.IsAbs(path) && r.cfg.WorkDir != "" {
			path = filepath.Join(r.cfg.WorkDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &domain.UpstreamError{Stderr: stderr.String(), Err: fmt.Errorf("read forecast output: %w", err)}
		}
		output = data
	}
	return DecodeProducts(output)
}

// DecodeProducts parses the process output: a JSON array of products.
func DecodeProducts(data []byte) ([]domain.Product, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, &domain.UpstreamError{Err: errors.New("forecast output is empty")}
	}
	var products []domain.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, &domain.UpstreamError{Err: fmt.Errorf("decode forecast output: %w", err)}
	}
	return products, nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf   []byte
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
