// Package probe answers proc and port collects from the local process and
// socket tables.
package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
)

// Socket states reported by gopsutil.
const statusListen = "LISTEN"

// Socket types.
const (
	sockStream = 1
	sockDgram  = 2
)

// Prober reads the host tables through replaceable functions so tests can
// feed fixed snapshots.
type Prober struct {
	ProcessesFn   func(ctx context.Context) ([]*process.Process, error)
	NameFn        func(ctx context.Context, p *process.Process) (string, error)
	CmdlineFn     func(ctx context.Context, p *process.Process) (string, error)
	ConnectionsFn func(ctx context.Context, kind string) ([]gnet.ConnectionStat, error)
}

func New() *Prober {
	return &Prober{
		ProcessesFn:   process.ProcessesWithContext,
		NameFn:        func(ctx context.Context, p *process.Process) (string, error) { return p.NameWithContext(ctx) },
		CmdlineFn:     func(ctx context.Context, p *process.Process) (string, error) { return p.CmdlineWithContext(ctx) },
		ConnectionsFn: gnet.ConnectionsWithContext,
	}
}

// ProcNum counts processes matching target. With method "name" the process
// name must equal target; with "cmd" the command line must contain it.
func (p *Prober) ProcNum(ctx context.Context, method, target string) (int, error) {
	if p.ProcessesFn == nil {
		return 0, errors.New("probe: ProcessesFn is nil")
	}
	if target == "" {
		return 0, errors.New("probe: empty target")
	}

	var match func(*process.Process) bool
	switch method {
	case "name":
		match = func(proc *process.Process) bool {
			name, err := p.NameFn(ctx, proc)
			return err == nil && name == target
		}
	case "cmd":
		match = func(proc *process.Process) bool {
			cmd, err := p.CmdlineFn(ctx, proc)
			return err == nil && strings.Contains(cmd, target)
		}
	default:
		return 0, fmt.Errorf("probe: unknown collect method %q", method)
	}

	procs, err := p.ProcessesFn(ctx)
	if err != nil {
		return 0, fmt.Errorf("list processes: %w", err)
	}
	n := 0
	for _, proc := range procs {
		// Processes that exit mid-scan fail their lookups and are skipped.
		if proc != nil && match(proc) {
			n++
		}
	}
	return n, nil
}

// PortListen reports whether a local socket listens on port. UDP sockets
// have no listen state, so any bound UDP socket counts.
func (p *Prober) PortListen(ctx context.Context, port int, protocol string) (bool, error) {
	if p.ConnectionsFn == nil {
		return false, errors.New("probe: ConnectionsFn is nil")
	}
	if protocol != "tcp" && protocol != "udp" {
		return false, fmt.Errorf("probe: unknown protocol %q", protocol)
	}

	conns, err := p.ConnectionsFn(ctx, protocol)
	if err != nil {
		return false, fmt.Errorf("net.Connections(%q): %w", protocol, err)
	}
	for _, cs := range conns {
		if int(cs.Laddr.Port) != port {
			continue
		}
		switch {
		case protocol == "tcp" && cs.Type == sockStream && cs.Status == statusListen:
			return true, nil
		case protocol == "udp" && cs.Type == sockDgram:
			return true, nil
		}
	}
	return false, nil
}
