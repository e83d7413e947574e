// Package jsruntime hosts a single long-lived goja VM behind an actor-style
// mailbox, so the decipher and playerscript packages never pay the cost of
// spinning up a fresh JS heap per call.
package jsruntime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"
)

// ErrClosed is returned by any operation issued after Close.
var ErrClosed = errors.New("jsruntime: host is closed")

type jobKind int

const (
	jobRunProgram jobKind = iota
	jobCallFunction
	jobReset
)

type job struct {
	kind    jobKind
	program *goja.Program
	global  string
	args    []any
	reply   chan result
}

type result struct {
	value goja.Value
	err   error
}

// Host owns one goja.Runtime and serializes every access to it through a
// single worker goroutine, so the VM's heap and global object stay alive
// across calls instead of being recreated each time.
type Host struct {
	mailbox chan job
	done    chan struct{}

	mu sync.Mutex
	vm *goja.Runtime
}

// New starts the worker goroutine and returns a ready Host. mailboxSize
// bounds how many pending jobs may queue before RunProgram, CallFunction or
// Reset blocks; 0 means unbuffered (every such call blocks until the worker
// is free).
func New(mailboxSize int) *Host {
	h := &Host{
		mailbox: make(chan job, mailboxSize),
		done:    make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Host) run() {
	vm := goja.New()
	h.setVM(vm)
	for j := range h.mailbox {
		switch j.kind {
		case jobRunProgram:
			v, err := vm.RunProgram(j.program)
			j.reply <- result{value: v, err: err}
		case jobCallFunction:
			fn, ok := goja.AssertFunction(vm.Get(j.global))
			if !ok {
				j.reply <- result{err: fmt.Errorf("jsruntime: %q is not a function", j.global)}
				continue
			}
			callArgs := make([]goja.Value, len(j.args))
			for i, a := range j.args {
				callArgs[i] = vm.ToValue(a)
			}
			v, err := fn(goja.Undefined(), callArgs...)
			j.reply <- result{value: v, err: err}
		case jobReset:
			vm = goja.New()
			h.setVM(vm)
			j.reply <- result{}
		}
	}
	close(h.done)
}

func (h *Host) setVM(vm *goja.Runtime) {
	h.mu.Lock()
	h.vm = vm
	h.mu.Unlock()
}

// interrupt asks the VM currently installed on the worker to abort its
// in-flight evaluation, the cooperative interruption goja checks for between
// bytecode steps. A no-op if nothing is running.
func (h *Host) interrupt(reason any) {
	h.mu.Lock()
	vm := h.vm
	h.mu.Unlock()
	if vm != nil {
		vm.Interrupt(reason)
	}
}

// Compile turns source into a cacheable *goja.Program. Programs are safe to
// share across Hosts and across repeated RunProgram calls on the same Host.
func Compile(name, src string, strict bool) (*goja.Program, error) {
	return goja.Compile(name, src, strict)
}

// RunProgram executes a precompiled program on the host's VM and returns its
// completion value exported to a plain Go value.
func (h *Host) RunProgram(ctx context.Context, prog *goja.Program) (any, error) {
	return h.submit(ctx, job{kind: jobRunProgram, program: prog, reply: make(chan result, 1)})
}

// CallFunction invokes a global function by name, previously installed via
// RunProgram, passing args as plain Go values.
func (h *Host) CallFunction(ctx context.Context, global string, args ...any) (any, error) {
	return h.submit(ctx, job{kind: jobCallFunction, global: global, args: args, reply: make(chan result, 1)})
}

// submit enqueues j and waits for its reply. While the job is in flight, a
// cancelled ctx calls vm.Interrupt so the worker's current evaluation is
// terminated cooperatively, per spec.md §5's cancellation contract, rather
// than leaving the caller's ctx.Done() race to return early while the VM
// keeps grinding on a stuck script in the background.
func (h *Host) submit(ctx context.Context, j job) (any, error) {
	select {
	case <-h.done:
		return nil, ErrClosed
	default:
	}
	select {
	case h.mailbox <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return nil, ErrClosed
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			h.interrupt(ctx.Err())
		case <-stop:
		}
	}()

	select {
	case r := <-j.reply:
		if r.err != nil {
			return nil, r.err
		}
		if r.value == nil {
			return nil, nil
		}
		return r.value.Export(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CallString is a convenience for the common decipher use: call a global
// function with a single string argument and expect a string back.
func (h *Host) CallString(ctx context.Context, global, arg string) (string, error) {
	v, err := h.CallFunction(ctx, global, arg)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("jsruntime: %q returned non-string %T", global, v)
	}
	return s, nil
}

// Reset discards the current VM and heap, replacing it with a fresh one.
// Used when a cached player script is evicted and a stale global leaks
// between decipher generations.
func (h *Host) Reset(ctx context.Context) error {
	j := job{kind: jobReset, reply: make(chan result, 1)}
	select {
	case <-h.done:
		return ErrClosed
	default:
	}
	select {
	case h.mailbox <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrClosed
	}
	select {
	case r := <-j.reply:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close interrupts whatever evaluation is currently running on the worker's
// VM and stops the worker goroutine. RunProgram, CallFunction and Reset
// calls made after Close has returned fail with ErrClosed.
func (h *Host) Close() error {
	h.interrupt(ErrClosed)
	close(h.mailbox)
	<-h.done
	return nil
}
