// Package config validates and holds the cluster configuration a job
// run needs: master address, per-node core count, worker host list or
// hostfile, and SSH launch parameters.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrConfig wraps every validation failure Configure/LoadFile produce,
// so callers can test for "bad configuration" with errors.Is without
// matching the exact message.
var ErrConfig = errors.New("config: invalid configuration")

// InfraConfig is the validated, immutable record Configure produces.
// The launcher and job lifecycle read it; nothing mutates it after
// construction.
type InfraConfig struct {
	MasterNode       string
	PerNodeCores     int
	PerNodeThreads   int // 0 means unset
	NumWorkerNodes   int
	TimeJob          bool
	ProgressToTerm   bool
	Hosts            []string
	Hostfile         string
	SSHUser          string
	SSHPort          int
	SSHIdentityFile  string
	WorkerExecutable string
	WorkingDir       string
	ConnectTimeout   time.Duration
}

// Options collects Configure's keyword-style parameters. Zero values
// mean "not provided," mirroring the original's Optional[...] = None
// defaults; NumWorkerNodes == 0 means "infer from hosts."
type Options struct {
	MasterNode       string
	PerNodeCores     int
	PerNodeThreads   int
	NumWorkerNodes   int
	TimeJob          bool
	ProgressToTerm   bool
	Hosts            []string
	Hostfile         string
	SSHUser          string
	SSHPort          int
	SSHIdentityFile  string
	WorkerExecutable string
	WorkingDir       string
	ConnectTimeout   time.Duration
}

var (
	mu      sync.Mutex
	current *InfraConfig
)

// Configure validates opts and installs the result as the current
// configuration, replacing any previous one. Validation order matches
// the original implementation exactly: master_node, per_node_cores,
// per_node_threads, host-list assembly (hosts then hostfile), worker
// count inference or mismatch check.
func Configure(opts Options) (*InfraConfig, error) {
	if opts.MasterNode == "" {
		return nil, fmt.Errorf("master_node cannot be empty: %w", ErrConfig)
	}
	if opts.PerNodeCores <= 0 {
		return nil, fmt.Errorf("per_node_cores must be positive: %w", ErrConfig)
	}
	if opts.PerNodeThreads != 0 && opts.PerNodeThreads < 0 {
		return nil, fmt.Errorf("per_node_threads must be positive if set: %w", ErrConfig)
	}

	var hostList []string
	hostList = append(hostList, opts.Hosts...)
	if opts.Hostfile != "" {
		fileHosts, err := readHostFile(opts.Hostfile)
		if err != nil {
			return nil, fmt.Errorf("reading hostfile: %w", err)
		}
		hostList = append(hostList, fileHosts...)
	}

	numWorkerNodes := opts.NumWorkerNodes
	if numWorkerNodes == 0 {
		if len(hostList) == 0 {
			return nil, fmt.Errorf("num_worker_nodes cannot be unset when hosts are not provided: %w", ErrConfig)
		}
		numWorkerNodes = len(hostList)
	}
	if numWorkerNodes <= 0 {
		return nil, fmt.Errorf("num_worker_nodes must be positive: %w", ErrConfig)
	}
	if len(hostList) > 0 && len(hostList) != numWorkerNodes {
		return nil, fmt.Errorf("num_worker_nodes must match number of hosts: %w", ErrConfig)
	}

	sshPort := opts.SSHPort
	if sshPort == 0 {
		sshPort = 22
	}
	executable := opts.WorkerExecutable
	if executable == "" {
		executable = "mpigo-worker"
	}
	connectTimeout := opts.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = 10 * time.Second
	}

	cfg := &InfraConfig{
		MasterNode:       opts.MasterNode,
		PerNodeCores:     opts.PerNodeCores,
		PerNodeThreads:   opts.PerNodeThreads,
		NumWorkerNodes:   numWorkerNodes,
		TimeJob:          opts.TimeJob,
		ProgressToTerm:   opts.ProgressToTerm,
		Hosts:            hostList,
		Hostfile:         opts.Hostfile,
		SSHUser:          opts.SSHUser,
		SSHPort:          sshPort,
		SSHIdentityFile:  opts.SSHIdentityFile,
		WorkerExecutable: executable,
		WorkingDir:       opts.WorkingDir,
		ConnectTimeout:   connectTimeout,
	}

	mu.Lock()
	current = cfg
	mu.Unlock()
	return cfg, nil
}

// Current returns the active configuration, or nil if none has been
// set (or it was cleared).
func Current() *InfraConfig {
	mu.Lock()
	defer mu.Unlock()
	return current
}

// Clear removes the active configuration.
func Clear() {
	mu.Lock()
	current = nil
	mu.Unlock()
}

func readHostFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var hosts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		hosts = append(hosts, line)
	}
	return hosts, scanner.Err()
}
