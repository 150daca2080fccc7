// Package registry maps named job entrypoints to Go functions and
// back, replacing the original implementation's dynamic
// (module, function) import used to hand a job function's name to a
// remote worker process and resolve it again on arrival.
package registry

import (
	"fmt"
	"reflect"
	"sync"
	"time"
)

// JobFunc is a registered job entrypoint: it runs on every rank with
// its communicator and the arguments Run was called with.
type JobFunc func(c Communicator, args []any) (any, error)

// Communicator mirrors comm.Communicator's method set without
// importing comm, so this package has no dependency on comm and
// comm/mpigo can both depend on registry without an import cycle. Any
// *comm.Comm or comm.LocalComm satisfies this interface structurally.
type Communicator interface {
	Rank() uint32
	Size() uint32
	Send(obj any, dest uint32, tag uint32) error
	Recv(source *uint32, tag *uint32, timeout time.Duration) (any, error)
	RecvInto(source *uint32, tag *uint32, timeout time.Duration, out any) error
}

var (
	mu        sync.RWMutex
	byName    = make(map[string]entry)
	byPointer = make(map[uintptr]entry)
)

type entry struct {
	module   string
	function string
	fn       JobFunc
}

// Register associates fn with (module, function) so a worker process
// that receives those two strings over the wire can resolve and invoke
// the same function the master is running.
func Register(module, function string, fn JobFunc) {
	mu.Lock()
	defer mu.Unlock()
	e := entry{module: module, function: function, fn: fn}
	byName[key(module, function)] = e
	byPointer[funcPointer(fn)] = e
}

// Lookup resolves (module, function) to a registered JobFunc.
func Lookup(module, function string) (JobFunc, bool) {
	mu.RLock()
	defer mu.RUnlock()
	e, ok := byName[key(module, function)]
	if !ok {
		return nil, false
	}
	return e.fn, true
}

// NameOf returns the (module, function) a previously-registered fn was
// registered under, identified by pointer equality — the Go analogue
// of Python's fn.__module__/fn.__name__ introspection.
func NameOf(fn JobFunc) (module, function string, ok bool) {
	mu.RLock()
	defer mu.RUnlock()
	e, ok := byPointer[funcPointer(fn)]
	if !ok {
		return "", "", false
	}
	return e.module, e.function, true
}

func key(module, function string) string {
	return fmt.Sprintf("%s.%s", module, function)
}

func funcPointer(fn JobFunc) uintptr {
	return reflect.ValueOf(fn).Pointer()
}
