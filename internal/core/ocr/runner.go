package ocr

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"time"
)

// stderr kept in logs and errors, in bytes
const maxStderrLog = 8 << 10

// Runner executes an external tool (pdftoppm, tesseract). Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, logger *slog.Logger, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

// ExecRunner runs binaries found on PATH.
func ExecRunner() Runner { return execRunner{} }

func (execRunner) Run(ctx context.Context, name string, logger *slog.Logger, args ...string) ([]byte, []byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("tool", name)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	start := time.Now()
	log.Debug("ocr.exec.start", "args", args)
	err := cmd.Run()
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		log.Error("ocr.exec.failed", "error", err, "elapsed_ms", elapsed, "stderr", truncate(stderr.String(), maxStderrLog))
		return stdout.Bytes(), stderr.Bytes(), err
	}
	log.Debug("ocr.exec.ok", "elapsed_ms", elapsed, "stdout_bytes", stdout.Len())
	return stdout.Bytes(), stderr.Bytes(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
