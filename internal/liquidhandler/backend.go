package liquidhandler

import (
	"context"
	"errors"
	"fmt"
	"pipetter/internal/logging"
	"strings"
	"sync"
)

// Operation names a backend command.
type Operation string

const (
	OpSetup      Operation = "setup"
	OpPickUpTips Operation = "pick_up_tips"
	OpAspirate   Operation = "aspirate"
	OpDispense   Operation = "dispense"
	OpDropTips   Operation = "drop_tips"
)

// Command is one instruction sent to the backend.
type Command struct {
	Op        Operation
	Channels  []int
	Resources []string // rack, troughs or plate, one per channel where it varies
	Positions []string // tip positions or destination wells
	Volumes   []float64
}

func (c Command) String() string {
	var b strings.Builder
	b.WriteString(string(c.Op))
	if len(c.Channels) > 0 {
		fmt.Fprintf(&b, " channels=%v", c.Channels)
	}
	if len(c.Resources) > 0 {
		fmt.Fprintf(&b, " resources=%s", strings.Join(dedupe(c.Resources), ","))
	}
	if len(c.Positions) > 0 {
		fmt.Fprintf(&b, " positions=%s", strings.Join(c.Positions, ","))
	}
	if len(c.Volumes) > 0 {
		fmt.Fprintf(&b, " volumes=%v", c.Volumes)
	}
	return b.String()
}

func dedupe(in []string) []string {
	var out []string
	for i, s := range in {
		if i == 0 || s != in[i-1] {
			out = append(out, s)
		}
	}
	return out
}

// Backend executes commands on hardware or a simulation.
type Backend interface {
	Setup(ctx context.Context) error
	Execute(ctx context.Context, cmd Command) error
}

// ChatterboxBackend accepts every command and logs it.
type ChatterboxBackend struct {
	mu      sync.Mutex
	history []Command
}

// NewChatterboxBackend creates a logging-only backend.
func NewChatterboxBackend() *ChatterboxBackend {
	return &ChatterboxBackend{}
}

func (b *ChatterboxBackend) Setup(ctx context.Context) error {
	logging.Backend("Setting up the liquid handler")
	return nil
}

func (b *ChatterboxBackend) Execute(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logging.Backend("%s", cmd)
	b.mu.Lock()
	b.history = append(b.history, cmd)
	b.mu.Unlock()
	return nil
}

// History returns the commands executed so far.
func (b *ChatterboxBackend) History() []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Command, len(b.history))
	copy(out, b.history)
	return out
}

// ErrInjectedFault is returned by FaultBackend for the configured command.
var ErrInjectedFault = errors.New("injected fault")

// FaultBackend fails the Nth execution of one operation and passes everything else on.
type FaultBackend struct {
	inner      Backend
	op         Operation
	occurrence int

	mu     sync.Mutex
	counts map[Operation]int
}

// NewFaultBackend wraps inner so that the occurrence-th (1-based) op command fails.
func NewFaultBackend(inner Backend, op Operation, occurrence int) *FaultBackend {
	return &FaultBackend{inner: inner, op: op, occurrence: occurrence, counts: make(map[Operation]int)}
}

func (b *FaultBackend) Setup(ctx context.Context) error {
	return b.inner.Setup(ctx)
}

func (b *FaultBackend) Execute(ctx context.Context, cmd Command) error {
	b.mu.Lock()
	b.counts[cmd.Op]++
	n := b.counts[cmd.Op]
	b.mu.Unlock()

	if cmd.Op == b.op && n == b.occurrence {
		logging.Get(logging.CategoryBackend).Warn("Injecting fault into %s #%d", cmd.Op, n)
		return fmt.Errorf("%s #%d: %w", cmd.Op, n, ErrInjectedFault)
	}
	return b.inner.Execute(ctx, cmd)
}
