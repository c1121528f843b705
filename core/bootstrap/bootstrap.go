package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/gatebot/core/config"
	"github.com/m3rciful/gatebot/core/logger"
)

var errNilStep = errors.New("nil run function")

// Step is a named initialization stage run after the logger is up.
type Step struct {
	Name string
	Run  func() error
}

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config *coreconfig.Config
	Steps  []Step

	LoggerInit func(*coreconfig.Config) error
}

// Result reports what the pipeline did.
type Result struct {
	Steps    []string
	Duration time.Duration
}

// Run initializes the logger and then executes each step in order, stopping
// at the first failure.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	start := time.Now()
	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	res := &Result{}
	for i, step := range opts.Steps {
		name := strings.TrimSpace(step.Name)
		if name == "" {
			name = fmt.Sprintf("step_%d", i+1)
		}
		if step.Run == nil {
			return nil, fmt.Errorf("bootstrap: step %s: %w", name, errNilStep)
		}
		stepStart := time.Now()
		if err := step.Run(); err != nil {
			logger.Error(logger.Background(), "app", "bootstrap.step_fail",
				slog.String("step", name),
				slog.String("err", err.Error()),
			)
			return nil, fmt.Errorf("bootstrap: %s: %w", name, err)
		}
		logger.Debug(logger.Background(), "app", "bootstrap.step",
			slog.String("step", name),
			slog.Duration("duration", logger.Took(stepStart)),
		)
		res.Steps = append(res.Steps, name)
	}
	res.Duration = logger.Took(start)
	return res, nil
}
