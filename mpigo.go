// Package mpigo is an MPI-style SPMD runtime: a job function runs
// identically on every rank, exchanging data through a communicator
// that the master process routes over TCP to remote workers launched
// over SSH.
package mpigo

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thomasedgemon/mpigo/comm"
	"github.com/thomasedgemon/mpigo/config"
	"github.com/thomasedgemon/mpigo/internal/launch"
	"github.com/thomasedgemon/mpigo/internal/transport"
	"github.com/thomasedgemon/mpigo/registry"
)

var (
	jobMu        sync.Mutex
	jobActive    bool
	cancelSignal atomic.Bool
	commWorld    atomic.Pointer[commHolder]
)

type commHolder struct {
	c comm.Communicator
}

// CommWorld returns the process's current communicator, or nil if
// none has been installed (no job running, no worker init yet).
func CommWorld() comm.Communicator {
	h := commWorld.Load()
	if h == nil {
		return nil
	}
	return h.c
}

func setCommWorld(c comm.Communicator) {
	commWorld.Store(&commHolder{c: c})
}

func clearCommWorld() {
	commWorld.Store(nil)
}

// transportAccessor is satisfied by *comm.Comm; CancelJob type-asserts
// to it to reach the underlying transport's SendControl.
type transportAccessor interface {
	Transport() comm.Transport
}

func envRank() (uint32, bool) {
	v, ok := os.LookupEnv("MPI_RANK")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// IsWorkerProcess reports whether the current process was launched as
// an MPI worker (MPI_RANK is set in its environment).
func IsWorkerProcess() bool {
	_, ok := envRank()
	return ok
}

// Init connects a worker process to its master using the environment
// variables the launcher set (MPI_RANK, MPI_WORLD_SIZE,
// MPI_MASTER_HOST, MPI_MASTER_PORT), and installs the resulting
// communicator as CommWorld. Run calls this automatically; user code
// only needs it to reach CommWorld before Run is invoked.
func Init() (comm.Communicator, error) {
	rank, ok := envRank()
	if !ok {
		return nil, fmt.Errorf("mpigo: MPI_RANK not set; use Run or a worker entrypoint: %w", ErrJobState)
	}
	sizeStr, ok := os.LookupEnv("MPI_WORLD_SIZE")
	if !ok {
		return nil, fmt.Errorf("mpigo: MPI_WORLD_SIZE not set: %w", ErrJobState)
	}
	size, err := strconv.Atoi(sizeStr)
	if err != nil {
		return nil, fmt.Errorf("mpigo: invalid MPI_WORLD_SIZE: %w", ErrJobState)
	}
	host, ok := os.LookupEnv("MPI_MASTER_HOST")
	if !ok {
		return nil, fmt.Errorf("mpigo: MPI_MASTER_HOST not set: %w", ErrJobState)
	}
	portStr, ok := os.LookupEnv("MPI_MASTER_PORT")
	if !ok {
		return nil, fmt.Errorf("mpigo: MPI_MASTER_PORT not set: %w", ErrJobState)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("mpigo: invalid MPI_MASTER_PORT: %w", ErrJobState)
	}

	wt, err := transport.DialWorker(fmt.Sprintf("%s:%d", host, port), rank, &cancelSignal)
	if err != nil {
		return nil, fmt.Errorf("mpigo: connecting to master: %w", err)
	}
	c := comm.New(rank, uint32(size), wt)
	setCommWorld(c)
	return c, nil
}

// Run invokes fn as an MPI job. On the process that calls it, fn must
// have been registered with registry.Register so its name can be
// handed to remote workers.
//
// A worker process (MPI_RANK set in its environment) also enters Run,
// from the worker entrypoint binary: that branch initializes the worker
// communicator if none is installed and invokes fn directly, bypassing
// the job mutex, which only guards master-side entry, since a worker
// never competes for it and has no job of its own to serialize against.
//
// Requires a prior call to config.Configure or config.LoadFile.
func Run(fn registry.JobFunc, args ...any) (JobResult, error) {
	if IsWorkerProcess() {
		c := CommWorld()
		if c == nil {
			var err error
			c, err = Init()
			if err != nil {
				return JobResult{}, err
			}
		}
		result, err := fn(c, args)
		return JobResult{Result: result}, err
	}

	cfg := config.Current()
	if cfg == nil {
		return JobResult{}, fmt.Errorf("mpigo: Configure must be called before Run: %w", config.ErrConfig)
	}

	jobMu.Lock()
	if jobActive {
		jobMu.Unlock()
		return JobResult{}, fmt.Errorf("mpigo: a job is already running: %w", ErrJobState)
	}
	jobActive = true
	cancelSignal.Store(false)
	jobMu.Unlock()

	result, err := runMaster(cfg, fn, args)

	jobMu.Lock()
	jobActive = false
	jobMu.Unlock()

	return result, err
}

func runMaster(cfg *config.InfraConfig, fn registry.JobFunc, args []any) (JobResult, error) {
	module, function, ok := registry.NameOf(fn)
	if !ok {
		return JobResult{}, fmt.Errorf("mpigo: fn must be registered via registry.Register before Run: %w", ErrJobState)
	}

	var start time.Time
	if cfg.TimeJob {
		start = time.Now()
	}

	encodedArgs, err := transport.EncodeArgs(args)
	if err != nil {
		return JobResult{}, fmt.Errorf("mpigo: encoding args: %w", err)
	}

	expectedWorkers := cfg.NumWorkerNodes * cfg.PerNodeCores
	router, err := transport.NewMasterRouter(cfg.MasterNode, 0, uint32(expectedWorkers+1))
	if err != nil {
		return JobResult{}, fmt.Errorf("mpigo: binding master router: %w", err)
	}

	launcher := launch.NewSSHLauncher(nil)
	worldSize, err := launcher.Launch(cfg, cfg.MasterNode, router.Port(), module, function, encodedArgs)
	if err != nil {
		router.Close()
		return JobResult{}, fmt.Errorf("mpigo: launching workers: %w", err)
	}

	if err := router.AcceptAll(context.Background(), cfg.ConnectTimeout); err != nil {
		router.Close()
		return JobResult{}, fmt.Errorf("mpigo: accepting workers: %w", err)
	}

	c := comm.New(0, uint32(worldSize), router)
	setCommWorld(c)

	result, fnErr := fn(c, args)

	// Teardown always runs, mirroring the original implementation's
	// try/finally: barrier so every worker observes job completion
	// before the router (and thus their sockets) goes away.
	comm.Barrier(c, 0)
	clearCommWorld()
	config.Clear()
	cancelSignal.Store(false)
	router.Close()

	if fnErr != nil {
		return JobResult{}, fnErr
	}

	jr := JobResult{Result: result}
	if cfg.TimeJob {
		jr.Elapsed = time.Since(start)
	}
	return jr, nil
}

// CancelJob sets the cancel signal and, on the master, broadcasts a
// CANCEL control frame to every connected worker. Returns ErrJobState
// if no job is currently active.
func CancelJob() error {
	jobMu.Lock()
	active := jobActive
	jobMu.Unlock()

	c := CommWorld()
	if c == nil || !active {
		return fmt.Errorf("mpigo: no active job to cancel: %w", ErrJobState)
	}

	cancelSignal.Store(true)

	if c.Rank() != 0 {
		return nil
	}
	ta, ok := c.(transportAccessor)
	if !ok {
		return nil
	}
	tr := ta.Transport()
	for r := uint32(1); r < c.Size(); r++ {
		if err := tr.SendControl(r, transport.CancelTag); err != nil {
			return fmt.Errorf("mpigo: broadcasting cancel to rank %d: %w", r, err)
		}
	}
	return nil
}

// CancelRequested reports whether the current job's cancel signal has
// been set. Lock-free: it is safe to poll from a tight loop.
func CancelRequested() bool {
	return cancelSignal.Load()
}

// RaiseIfCancelled returns ErrCancelled if the cancel signal has been
// set, nil otherwise. Job functions call this between units of work to
// cooperatively unwind once cancellation has been requested.
func RaiseIfCancelled() error {
	if cancelSignal.Load() {
		return ErrCancelled
	}
	return nil
}
