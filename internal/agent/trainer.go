package agent

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mstrand/trainfleet/internal/models"
	"github.com/mstrand/trainfleet/pkg/utils"
)

// Result is what a Trainer hands back after a run. A failed run is a normal
// Result with Success=false and Err set, never a crash of the agent.
type Result struct {
	Success  bool
	Metrics  map[string]float64
	ModelRef string
	Err      string
}

// Trainer runs one training job to completion. Runs may take minutes to
// hours; implementations must honor ctx cancellation.
type Trainer interface {
	Run(ctx context.Context, cfg models.JobConfig) Result
}

// CommandTrainer shells out to an external training program, passing the job
// configuration as flags. The coordinator side never sees any of this; it
// only sees the eventual result report.
type CommandTrainer struct {
	// Command is the base command line, e.g. "python3 train.py".
	Command string
	// WorkDir is the working directory for the training process.
	WorkDir string
	// ModelsDir is scanned after a successful run for the newest .zip
	// artifact, which becomes the result's ModelRef.
	ModelsDir string

	logger *utils.Logger
}

// NewCommandTrainer creates a trainer running the given command
func NewCommandTrainer(command, workDir, modelsDir string) *CommandTrainer {
	return &CommandTrainer{
		Command:   command,
		WorkDir:   workDir,
		ModelsDir: modelsDir,
		logger:    utils.NewLogger("trainer", utils.INFO),
	}
}

// Run executes the training command with the job's hyperparameters appended
func (t *CommandTrainer) Run(ctx context.Context, cfg models.JobConfig) Result {
	parts := strings.Fields(t.Command)
	if len(parts) == 0 {
		return Result{Err: "no training command configured"}
	}

	args := append(parts[1:],
		"--learning-rate", strconv.FormatFloat(cfg.LearningRate, 'g', -1, 64),
		"--batch-size", strconv.Itoa(cfg.BatchSize),
		"--timesteps", strconv.Itoa(cfg.Timesteps),
	)
	for key, value := range cfg.Extra {
		args = append(args, "--"+key, value)
	}

	cmd := exec.CommandContext(ctx, parts[0], args...)
	cmd.Dir = t.WorkDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	t.logger.Info("Starting training: %s %s", parts[0], strings.Join(args, " "))
	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	metrics := map[string]float64{
		"training_time_seconds": elapsed.Seconds(),
	}

	if err != nil {
		t.logger.Error("Training command failed after %v: %v", elapsed, err)
		return Result{
			Metrics: metrics,
			Err:     fmt.Sprintf("%v: %s", err, lastLine(stderr.String())),
		}
	}

	modelRef, err := t.newestModel()
	if err != nil {
		t.logger.Warn("Training succeeded but no model artifact found: %v", err)
	}

	t.logger.Info("Training completed in %v (model: %s)", elapsed, modelRef)
	return Result{
		Success:  true,
		Metrics:  metrics,
		ModelRef: modelRef,
	}
}

// newestModel returns the most recently modified .zip under ModelsDir
func (t *CommandTrainer) newestModel() (string, error) {
	dir := t.ModelsDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(t.WorkDir, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var newest string
	var newestTime time.Time
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".zip") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = filepath.Join(dir, entry.Name())
			newestTime = info.ModTime()
		}
	}

	if newest == "" {
		return "", fmt.Errorf("no model artifacts in %s", dir)
	}
	return newest, nil
}

// lastLine extracts the final non-empty line of command output for error
// summaries.
func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
