// Package wizard implements the interactive prompts behind `sounder init`.
package wizard

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/probeworks/sounder/internal/config"
	"golang.org/x/term"
)

// Answers holds everything collected from the user, ready to serialize
// into a run configuration file.
type Answers struct {
	Run  config.Run
	Path string
}

// Options configures where the wizard reads and writes. Zero values fall
// back to stdin/stdout.
type Options struct {
	In  io.Reader
	Out io.Writer
}

// Collect walks the user through building a run configuration.
func Collect(opts Options) (*Answers, error) {
	in := opts.In
	if in == nil {
		in = os.Stdin
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	ans := &Answers{Path: "run.yaml"}
	run := &ans.Run
	run.Benchmark = "drb"
	run.Execution.Provider = "openai"
	run.Execution.Model = "o3-mini"

	maxConcurrent := "5"
	rpm := "60"

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Benchmark").
				Description("Which dataset format are you running?").
				Options(
					huh.NewOption("Deep Research Bench (JSONL)", "drb"),
					huh.NewOption("DeepConsult (CSV)", "deepconsult"),
				).
				Value(&run.Benchmark),
			huh.NewInput().
				Title("Dataset path").
				Description("Path to the benchmark input file").
				Value(&run.Input).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("dataset path is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Output directory").
				Placeholder("results").
				Value(&run.OutputDir),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Provider").
				Value(&run.Execution.Provider),
			huh.NewInput().
				Title("Model").
				Value(&run.Execution.Model),
			huh.NewInput().
				Title("Max concurrent tasks").
				Value(&maxConcurrent).
				Validate(validatePositiveInt),
			huh.NewInput().
				Title("Requests per minute").
				Value(&rpm).
				Validate(validatePositiveInt),
			huh.NewConfirm().
				Title("Collect trajectories?").
				Value(&run.CollectTrajectory),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Config file path").
				Description("Where to write the run configuration").
				Value(&ans.Path).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("path is required")
					}
					return nil
				}),
		),
	).WithInput(in).WithOutput(out)

	if f, ok := in.(*os.File); !ok || !isTerminal(f) {
		form = form.WithAccessible(true)
	}

	if err := form.Run(); err != nil {
		return nil, err
	}

	run.MaxConcurrent, _ = strconv.Atoi(maxConcurrent)
	run.RequestsPerMinute, _ = strconv.Atoi(rpm)
	return ans, nil
}

func isTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}
