package launch

import (
	"strings"
	"testing"

	"github.com/thomasedgemon/mpigo/config"
)

func TestShellQuoteEscapesSingleQuotes(t *testing.T) {
	got := shellQuote("it's a path")
	want := `'it'\''s a path'`
	if got != want {
		t.Errorf("shellQuote = %q, want %q", got, want)
	}
}

func TestBuildRemoteCommandIncludesAllEnvVars(t *testing.T) {
	cfg := &config.InfraConfig{WorkerExecutable: "mpigo-worker"}
	env := map[string]string{
		"MPI_MASTER_HOST":  "10.0.0.1",
		"MPI_MASTER_PORT":  "5000",
		"MPI_WORLD_SIZE":   "5",
		"MPI_RANK":         "2",
		"MPI_RUN_MODULE":   "workloads",
		"MPI_RUN_FUNCTION": "MatMul",
		"MPI_RUN_ARGS":     "abc123",
	}
	cmd := buildRemoteCommand(cfg, env)
	for k, v := range env {
		if !strings.Contains(cmd, k+"="+shellQuote(v)) {
			t.Errorf("command missing %s=%s: %s", k, v, cmd)
		}
	}
	if !strings.HasSuffix(cmd, "mpigo-worker") {
		t.Errorf("command should end with the worker executable: %s", cmd)
	}
}

func TestBuildRemoteCommandIncludesWorkingDir(t *testing.T) {
	cfg := &config.InfraConfig{WorkerExecutable: "mpigo-worker", WorkingDir: "/srv/job"}
	cmd := buildRemoteCommand(cfg, map[string]string{
		"MPI_MASTER_HOST": "h", "MPI_MASTER_PORT": "1", "MPI_WORLD_SIZE": "1",
		"MPI_RANK": "1", "MPI_RUN_MODULE": "m", "MPI_RUN_FUNCTION": "f", "MPI_RUN_ARGS": "",
	})
	if !strings.HasPrefix(cmd, "cd '/srv/job' && ") {
		t.Errorf("command should cd into working dir first: %s", cmd)
	}
}

func TestWorldSizeFormula(t *testing.T) {
	cfg := &config.InfraConfig{
		Hosts:          []string{"h1", "h2"},
		PerNodeCores:   3,
		NumWorkerNodes: 2,
	}
	worldSize := cfg.NumWorkerNodes*cfg.PerNodeCores + 1
	if worldSize != 7 {
		t.Fatalf("worldSize = %d, want 7", worldSize)
	}
}

func TestLaunchRejectsEmptyHosts(t *testing.T) {
	s := NewSSHLauncher(nil)
	cfg := &config.InfraConfig{PerNodeCores: 1, NumWorkerNodes: 1}
	_, err := s.Launch(cfg, "masterhost", 9000, "mod", "fn", "")
	if err == nil {
		t.Fatal("expected error for empty hosts list")
	}
}
