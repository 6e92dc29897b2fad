package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
)

type fakeCall struct {
	dir  string
	name string
	args []string
}

// fakeRunner records invocations and replies from a per-command table.
type fakeRunner struct {
	mu        sync.Mutex
	calls     []fakeCall
	available map[string]bool
	results   map[string]CommandResult
	failures  map[string]error
	onRun     func(call fakeCall)
}

func (f *fakeRunner) Run(_ context.Context, dir, name string, args ...string) (CommandResult, error) {
	call := fakeCall{dir: dir, name: name, args: args}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	if f.onRun != nil {
		f.onRun(call)
	}
	key := formatCommand(name, args)
	res := f.results[key]
	res.Command = name
	res.Args = args
	for prefix, err := range f.failures {
		if strings.HasPrefix(key, prefix) {
			res.ExitCode = 1
			return res, err
		}
	}
	return res, nil
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.available[name] {
		return "/usr/bin/" + name, nil
	}
	return "", errors.New("not found")
}

func (f *fakeRunner) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, formatCommand(c.name, c.args))
	}
	return out
}
