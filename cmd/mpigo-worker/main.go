// Command mpigo-worker is the process the SSH launcher starts on each
// remote host: it reads its job assignment from the environment,
// connects back to the master, runs the registered job function, and
// exits.
package main

import (
	"fmt"
	"os"

	"github.com/thomasedgemon/mpigo"
	"github.com/thomasedgemon/mpigo/internal/logging"
	"github.com/thomasedgemon/mpigo/internal/transport"
	"github.com/thomasedgemon/mpigo/registry"

	// Blank-imported so their init() registrations run before Lookup.
	_ "github.com/thomasedgemon/mpigo/workloads"
)

func main() {
	log := logging.NewDefault()

	if !mpigo.IsWorkerProcess() {
		log.Fatal("mpigo-worker: MPI_RANK not set; this binary is launched by the SSH launcher, not run directly")
	}

	module := os.Getenv("MPI_RUN_MODULE")
	function := os.Getenv("MPI_RUN_FUNCTION")
	if module == "" || function == "" {
		log.Fatal("mpigo-worker: MPI_RUN_MODULE and MPI_RUN_FUNCTION must both be set")
	}

	fn, ok := registry.Lookup(module, function)
	if !ok {
		log.Fatalf("mpigo-worker: no job registered for %s.%s", module, function)
	}

	args, err := transport.DecodeArgs(os.Getenv("MPI_RUN_ARGS"))
	if err != nil {
		log.Fatalf("mpigo-worker: decoding job arguments: %v", err)
	}

	// Run's worker branch dials the master via Init on first use.
	if _, err := mpigo.Run(fn, args...); err != nil {
		fmt.Fprintf(os.Stderr, "mpigo-worker: job failed: %v\n", err)
		os.Exit(1)
	}
}
