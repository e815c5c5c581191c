package process

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

// =============================================================================
// Table-Driven Tests: Args
// =============================================================================

func TestWorkerRunner_Args(t *testing.T) {
	tests := []struct {
		name string
		cfg  WorkerConfig
		want []string
	}{
		{
			name: "minimal random all",
			cfg:  WorkerConfig{ConfigName: "default", SeedCount: "All", Threads: "32"},
			want: []string{"-s", "random", "-g", "32", "--config", "default"},
		},
		{
			name: "explicit seed upper-cased",
			cfg:  WorkerConfig{ConfigName: "c", StartingSeed: "abcd1234", Threads: "64", SeedCount: "100M"},
			want: []string{"-s", "ABCD1234", "-g", "64", "-n", "100000000", "--config", "c"},
		},
		{
			name: "random is case-insensitive",
			cfg:  WorkerConfig{ConfigName: "c", StartingSeed: "Random", Threads: "1"},
			want: []string{"-s", "random", "-g", "1", "--config", "c"},
		},
		{
			name: "template cutoff batch",
			cfg: WorkerConfig{
				ConfigName: "c", Template: "tmpl", StartingSeed: "random",
				Threads: "256", SeedCount: "1K", Cutoff: 3, BatchSize: 8,
			},
			want: []string{"-f", "tmpl", "-s", "random", "-g", "256", "-n", "1000", "--config", "c", "-c", "3", "-b", "8"},
		},
		{
			name: "unknown threads default",
			cfg:  WorkerConfig{ConfigName: "c", Threads: "7"},
			want: []string{"-s", "random", "-g", "32", "--config", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			got, err := NewWorkerRunner(&cfg).Args()
			if err != nil {
				t.Fatalf("Args() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Args() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWorkerRunner_InvalidSeedCount(t *testing.T) {
	r := NewWorkerRunner(&WorkerConfig{ConfigName: "c", SeedCount: "lots"})
	if _, err := r.Args(); !errors.Is(err, ErrInvalidSeedCount) {
		t.Errorf("Args() error = %v, want ErrInvalidSeedCount", err)
	}
	if _, err := r.BuildCommand(context.Background()); err == nil {
		t.Error("BuildCommand() should fail on invalid seed count")
	}
	if !strings.Contains(r.CommandString(), "invalid") {
		t.Errorf("CommandString() = %q, want invalid marker", r.CommandString())
	}
}

func TestWorkerRunner_WithSeed(t *testing.T) {
	base := NewWorkerRunner(&WorkerConfig{
		BinaryPath: "/opt/worker", ConfigName: "c", StartingSeed: "random", Threads: "32", SeedCount: "All",
	})

	step := base.WithSeed("1CAT1", 35)
	args, err := step.Args()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"-s", "1CAT1", "-g", "32", "-n", "35", "--config", "c"}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("Args() = %v, want %v", args, want)
	}

	// Base runner is untouched.
	if base.Config().StartingSeed != "random" {
		t.Errorf("base StartingSeed = %q, want random", base.Config().StartingSeed)
	}
}

func TestWorkerRunner_BuildCommand(t *testing.T) {
	r := NewWorkerRunner(&WorkerConfig{
		BinaryPath: "/opt/worker", WorkDir: "/tmp", ConfigName: "c", Threads: "16",
	})

	cmd, err := r.BuildCommand(context.Background())
	if err != nil {
		t.Fatalf("BuildCommand() error = %v", err)
	}
	if cmd.Path != "/opt/worker" {
		t.Errorf("Path = %q, want /opt/worker", cmd.Path)
	}
	if cmd.Dir != "/tmp" {
		t.Errorf("Dir = %q, want /tmp", cmd.Dir)
	}
	wantArgs := []string{"/opt/worker", "-s", "random", "-g", "16", "--config", "c"}
	if !reflect.DeepEqual(cmd.Args, wantArgs) {
		t.Errorf("Args = %v, want %v", cmd.Args, wantArgs)
	}
	if r.Name() != "worker" {
		t.Errorf("Name() = %q, want worker", r.Name())
	}
	if got := r.CommandString(); got != "/opt/worker -s random -g 16 --config c" {
		t.Errorf("CommandString() = %q", got)
	}
}

// =============================================================================
// Table-Driven Tests: helpers
// =============================================================================

func TestParseSeedCount(t *testing.T) {
	tests := []struct {
		in      string
		count   string
		all     bool
		wantErr bool
	}{
		{"All", "", true, false},
		{"", "", true, false},
		{"All Seeds", "", true, false},
		{"1 Single Seed", "1", false, false},
		{"1K", "1000", false, false},
		{"100k", "100000", false, false},
		{"1M", "1000000", false, false},
		{"100M", "100000000", false, false},
		{"1B", "1000000000", false, false},
		{"10B", "10000000000", false, false},
		{"100B", "100000000000", false, false},
		{"42", "42", false, false},
		{"0", "", false, true},
		{"-3", "", false, true},
		{"many", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			count, all, err := ParseSeedCount(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSeedCount(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if count != tt.count || all != tt.all {
				t.Errorf("ParseSeedCount(%q) = (%q, %v), want (%q, %v)", tt.in, count, all, tt.count, tt.all)
			}
		})
	}
}

func TestThreadGroups(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		valid bool
	}{
		{"Single", "1", true},
		{"1", "1", true},
		{"16", "16", true},
		{"128", "128", true},
		{"256", "256", true},
		{"512", DefaultThreads, false},
		{"", DefaultThreads, false},
	}
	for _, tt := range tests {
		if got := ThreadGroups(tt.in); got != tt.want {
			t.Errorf("ThreadGroups(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if got := ValidThreads(tt.in); got != tt.valid {
			t.Errorf("ValidThreads(%q) = %v, want %v", tt.in, got, tt.valid)
		}
	}
}

func TestExecutableName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/opt/bin/seed-cli", "seed-cli"},
		{`C:\tools\seed-cli.exe`, "seed-cli.exe"},
		{"worker", "worker"},
	}
	for _, tt := range tests {
		if got := ExecutableName(tt.in); got != tt.want {
			t.Errorf("ExecutableName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidSeed(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"random", true},
		{"RANDOM", true},
		{"ABC123", true},
		{"abc123", true},
		{"11CAT111", true},
		{" CAT ", true},
		{"", false},
		{"TOOLONGSD", false},
		{"AB-C", false},
		{"ÄBC", false},
	}
	for _, tt := range tests {
		if got := ValidSeed(tt.in); got != tt.want {
			t.Errorf("ValidSeed(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
