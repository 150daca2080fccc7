package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileOptions mirrors Options but with YAML tags and string durations,
// since cluster configs are hand-written and a raw time.Duration field
// would force users to spell out nanoseconds.
type fileOptions struct {
	MasterNode       string   `yaml:"master_node"`
	PerNodeCores     int      `yaml:"per_node_cores"`
	PerNodeThreads   int      `yaml:"per_node_threads"`
	NumWorkerNodes   int      `yaml:"num_worker_nodes"`
	TimeJob          bool     `yaml:"time_job"`
	ProgressToTerm   bool     `yaml:"progress_to_terminal"`
	Hosts            []string `yaml:"hosts"`
	Hostfile         string   `yaml:"hostfile"`
	SSHUser          string   `yaml:"ssh_user"`
	SSHPort          int      `yaml:"ssh_port"`
	SSHIdentityFile  string   `yaml:"ssh_identity_file"`
	WorkerExecutable string   `yaml:"worker_executable"`
	WorkingDir       string   `yaml:"working_dir"`
	ConnectTimeout   string   `yaml:"connect_timeout"`
}

// LoadFile reads a YAML cluster configuration from path and validates
// it through Configure, so a file-based config is held to the exact
// same invariants as one built with Options directly.
func LoadFile(path string) (*InfraConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var fo fileOptions
	if err := yaml.Unmarshal(data, &fo); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	var timeout time.Duration
	if fo.ConnectTimeout != "" {
		timeout, err = time.ParseDuration(fo.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("config: connect_timeout: %w", err)
		}
	}

	return Configure(Options{
		MasterNode:       fo.MasterNode,
		PerNodeCores:     fo.PerNodeCores,
		PerNodeThreads:   fo.PerNodeThreads,
		NumWorkerNodes:   fo.NumWorkerNodes,
		TimeJob:          fo.TimeJob,
		ProgressToTerm:   fo.ProgressToTerm,
		Hosts:            fo.Hosts,
		Hostfile:         fo.Hostfile,
		SSHUser:          fo.SSHUser,
		SSHPort:          fo.SSHPort,
		SSHIdentityFile:  fo.SSHIdentityFile,
		WorkerExecutable: fo.WorkerExecutable,
		WorkingDir:       fo.WorkingDir,
		ConnectTimeout:   timeout,
	})
}
