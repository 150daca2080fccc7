package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestMain(m *testing.M) {
	code := m.Run()
	Clear()
	os.Exit(code)
}

func TestConfigureRejectsEmptyMasterNode(t *testing.T) {
	defer Clear()
	_, err := Configure(Options{PerNodeCores: 4, NumWorkerNodes: 2})
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}

func TestConfigureRejectsZeroCores(t *testing.T) {
	defer Clear()
	_, err := Configure(Options{MasterNode: "host0", NumWorkerNodes: 2})
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}

func TestConfigureInfersWorkerCountFromHosts(t *testing.T) {
	defer Clear()
	cfg, err := Configure(Options{
		MasterNode:   "host0",
		PerNodeCores: 4,
		Hosts:        []string{"host1", "host2", "host3"},
	})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if cfg.NumWorkerNodes != 3 {
		t.Errorf("NumWorkerNodes = %d, want 3", cfg.NumWorkerNodes)
	}
}

func TestConfigureFailsWithoutHostsOrWorkerCount(t *testing.T) {
	defer Clear()
	_, err := Configure(Options{MasterNode: "host0", PerNodeCores: 4})
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}

func TestConfigureRejectsWorkerCountHostMismatch(t *testing.T) {
	defer Clear()
	_, err := Configure(Options{
		MasterNode:     "host0",
		PerNodeCores:   4,
		NumWorkerNodes: 5,
		Hosts:          []string{"host1", "host2"},
	})
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}

func TestConfigureDefaultsSSHPortAndTimeout(t *testing.T) {
	defer Clear()
	cfg, err := Configure(Options{
		MasterNode:     "host0",
		PerNodeCores:   4,
		NumWorkerNodes: 1,
		Hosts:          []string{"host1"},
	})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if cfg.SSHPort != 22 {
		t.Errorf("SSHPort = %d, want 22", cfg.SSHPort)
	}
	if cfg.ConnectTimeout.Seconds() != 10 {
		t.Errorf("ConnectTimeout = %v, want 10s", cfg.ConnectTimeout)
	}
}

func TestCurrentReflectsLastConfigure(t *testing.T) {
	defer Clear()
	if Current() != nil {
		t.Fatalf("expected nil before any Configure call")
	}
	cfg, err := Configure(Options{
		MasterNode:     "host0",
		PerNodeCores:   2,
		NumWorkerNodes: 1,
		Hosts:          []string{"host1"},
	})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if Current() != cfg {
		t.Fatalf("Current() did not return the last Configure result")
	}
	Clear()
	if Current() != nil {
		t.Fatalf("expected nil after Clear")
	}
}

func TestReadHostFileSkipsBlankAndCommentLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts.txt")
	content := "host1\n# a comment\n\nhost2\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	hosts, err := readHostFile(path)
	if err != nil {
		t.Fatalf("readHostFile: %v", err)
	}
	if len(hosts) != 2 || hosts[0] != "host1" || hosts[1] != "host2" {
		t.Errorf("hosts = %v, want [host1 host2]", hosts)
	}
}

func TestLoadFileParsesYAML(t *testing.T) {
	defer Clear()
	dir := t.TempDir()
	path := filepath.Join(dir, "cluster.yaml")
	content := `
master_node: host0
per_node_cores: 4
num_worker_nodes: 2
hosts:
  - host1
  - host2
connect_timeout: 5s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.MasterNode != "host0" || cfg.NumWorkerNodes != 2 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.ConnectTimeout.Seconds() != 5 {
		t.Errorf("ConnectTimeout = %v, want 5s", cfg.ConnectTimeout)
	}
}
