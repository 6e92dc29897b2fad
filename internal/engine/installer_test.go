package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInstallClonesAndBuildsWithCMake verifies the fresh-install path.
func TestInstallClonesAndBuildsWithCMake(t *testing.T) {
	repo := filepath.Join(t.TempDir(), "whisper.cpp")
	runner := &fakeRunner{available: map[string]bool{"git": true, "cmake": true, "make": true}}
	runner.onRun = func(call fakeCall) {
		if call.name == "cmake" && len(call.args) > 0 && call.args[0] == "--build" {
			touch(t, filepath.Join(repo, "build", "bin", "whisper-cli"))
		}
	}

	var lines []string
	installer := newInstaller(repo, "https://example.com/whisper.cpp.git", NewLocator(repo, testCandidates), runner, nil)
	path, err := installer.Install(context.Background(), func(line string) { lines = append(lines, line) })
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(repo, "build", "bin", "whisper-cli"), path)
	cmds := runner.commands()
	require.Len(t, cmds, 3)
	assert.Equal(t, "git clone --depth 1 https://example.com/whisper.cpp.git "+repo, cmds[0])
	assert.Equal(t, "cmake -B build -DCMAKE_BUILD_TYPE=Release", cmds[1])
	assert.NotEmpty(t, lines)
}

// TestInstallPullsExistingRepoAndFallsBackToMake verifies update and fallback.
func TestInstallPullsExistingRepoAndFallsBackToMake(t *testing.T) {
	repo := t.TempDir()
	touch(t, filepath.Join(repo, ".git", "HEAD"))
	runner := &fakeRunner{
		available: map[string]bool{"git": true, "cmake": true, "make": true},
		failures:  map[string]error{"cmake -B": errors.New("exit status 1")},
	}
	runner.onRun = func(call fakeCall) {
		if call.name == "make" {
			touch(t, filepath.Join(repo, "build", "main"))
		}
	}

	path, err := newInstaller(repo, "unused", NewLocator(repo, testCandidates), runner, nil).Install(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(repo, "build", "main"), path)
	cmds := runner.commands()
	assert.Equal(t, "git pull --ff-only", cmds[0])
	assert.Contains(t, cmds[len(cmds)-1], "make -j")
}

// TestInstallRequiresGit verifies missing tools are reported.
func TestInstallRequiresGit(t *testing.T) {
	repo := t.TempDir()
	_, err := newInstaller(repo, "u", NewLocator(repo, testCandidates), &fakeRunner{}, nil).Install(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "git")
}

// TestInstallNoBuildTool verifies the build step needs cmake or make.
func TestInstallNoBuildTool(t *testing.T) {
	repo := t.TempDir()
	runner := &fakeRunner{available: map[string]bool{"git": true}}

	_, err := newInstaller(repo, "u", NewLocator(repo, testCandidates), runner, nil).Install(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no supported build tool")
}
