package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// RandomSeed asks the worker to pick its own starting seed.
const RandomSeed = "random"

// MaxSeedLength is the longest seed the worker accepts.
const MaxSeedLength = 8

// SeedAlphabet is the set of characters a seed is drawn from.
const SeedAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// DefaultThreads is used when the thread setting is not one the worker
// accepts.
const DefaultThreads = "32"

// ErrInvalidSeedCount is returned for seed counts that are neither a known
// shorthand nor a positive integer.
var ErrInvalidSeedCount = errors.New("invalid seed count")

var threadGroups = map[string]string{
	"single": "1",
	"1":      "1",
	"16":     "16",
	"32":     "32",
	"64":     "64",
	"128":    "128",
	"256":    "256",
}

var seedCountShorthand = map[string]string{
	"1k":   "1000",
	"100k": "100000",
	"1m":   "1000000",
	"100m": "100000000",
	"1b":   "1000000000",
	"10b":  "10000000000",
	"100b": "100000000000",
}

// WorkerConfig holds the settings that become worker arguments.
type WorkerConfig struct {
	// BinaryPath is the path to the worker executable.
	BinaryPath string

	// WorkDir is the working directory the worker runs in. Empty means the
	// current directory.
	WorkDir string

	// ConfigName identifies the search configuration (--config).
	ConfigName string

	// Template is an optional filter template (-f).
	Template string

	// StartingSeed is "random" or an explicit seed (-s).
	StartingSeed string

	// Threads is the thread-group count (-g).
	Threads string

	// SeedCount is "All", a shorthand such as "100M", or an integer (-n).
	SeedCount string

	// Cutoff is the minimum score to report (-c). 0 omits the flag.
	Cutoff int

	// BatchSize is the GPU batch size (-b). 0 omits the flag.
	BatchSize int
}

// WorkerRunner implements Runner for the seed-search worker.
type WorkerRunner struct {
	config *WorkerConfig
}

// NewWorkerRunner creates a runner for cfg.
func NewWorkerRunner(cfg *WorkerConfig) *WorkerRunner {
	return &WorkerRunner{config: cfg}
}

// Name returns the worker's executable name.
func (r *WorkerRunner) Name() string {
	return ExecutableName(r.config.BinaryPath)
}

// WithSeed returns a runner for the same settings with an explicit starting
// seed and result count bound.
func (r *WorkerRunner) WithSeed(seed string, count int64) *WorkerRunner {
	cfg := *r.config
	cfg.StartingSeed = seed
	cfg.SeedCount = strconv.FormatInt(count, 10)
	return &WorkerRunner{config: &cfg}
}

// BuildCommand creates the exec.Cmd for the worker. The command is not
// started.
func (r *WorkerRunner) BuildCommand(ctx context.Context) (*exec.Cmd, error) {
	args, err := r.Args()
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, r.config.BinaryPath, args...)
	cmd.Dir = r.config.WorkDir
	return cmd, nil
}

// Args constructs the worker command-line arguments.
func (r *WorkerRunner) Args() ([]string, error) {
	cfg := r.config
	var args []string

	if cfg.Template != "" {
		args = append(args, "-f", cfg.Template)
	}

	seed := strings.TrimSpace(cfg.StartingSeed)
	if seed == "" || strings.EqualFold(seed, RandomSeed) {
		args = append(args, "-s", RandomSeed)
	} else {
		args = append(args, "-s", strings.ToUpper(seed))
	}

	args = append(args, "-g", ThreadGroups(cfg.Threads))

	count, all, err := ParseSeedCount(cfg.SeedCount)
	if err != nil {
		return nil, err
	}
	if !all {
		args = append(args, "-n", count)
	}

	args = append(args, "--config", cfg.ConfigName)

	if cfg.Cutoff > 0 {
		args = append(args, "-c", strconv.Itoa(cfg.Cutoff))
	}
	if cfg.BatchSize > 0 {
		args = append(args, "-b", strconv.Itoa(cfg.BatchSize))
	}

	return args, nil
}

// Config returns the worker configuration.
func (r *WorkerRunner) Config() *WorkerConfig {
	return r.config
}

// CommandString returns the command that would be executed.
func (r *WorkerRunner) CommandString() string {
	args, err := r.Args()
	if err != nil {
		return fmt.Sprintf("%s (invalid: %v)", r.config.BinaryPath, err)
	}
	return r.config.BinaryPath + " " + strings.Join(args, " ")
}

// ThreadGroups maps a thread setting to a value the worker accepts, falling
// back to DefaultThreads.
func ThreadGroups(s string) string {
	if v, ok := threadGroups[strings.ToLower(strings.TrimSpace(s))]; ok {
		return v
	}
	return DefaultThreads
}

// ValidThreads reports whether s is an accepted thread setting.
func ValidThreads(s string) bool {
	_, ok := threadGroups[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// ParseSeedCount resolves a seed-count setting. all is true for "All" (and
// the empty string), in which case no -n flag is passed.
func ParseSeedCount(s string) (count string, all bool, err error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "", "all", "all seeds":
		return "", true, nil
	case "single", "1 single seed":
		return "1", false, nil
	}
	if n, ok := seedCountShorthand[v]; ok {
		return n, false, nil
	}
	n, perr := strconv.ParseInt(v, 10, 64)
	if perr != nil || n < 1 {
		return "", false, fmt.Errorf("%w: %q", ErrInvalidSeedCount, s)
	}
	return strconv.FormatInt(n, 10), false, nil
}

// ValidSeed reports whether s is "random" or an explicit seed of 1 to
// MaxSeedLength characters from SeedAlphabet. Lower case is accepted.
func ValidSeed(s string) bool {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, RandomSeed) {
		return true
	}
	if s == "" || len(s) > MaxSeedLength {
		return false
	}
	for _, c := range strings.ToUpper(s) {
		if !strings.ContainsRune(SeedAlphabet, c) {
			return false
		}
	}
	return true
}

// ExecutableName returns the base name of a binary path, handling both
// slash styles.
func ExecutableName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
