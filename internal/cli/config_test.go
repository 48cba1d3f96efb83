package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redub/redub/internal/config"
)

// Notes:
// - These tests write a real config file. XDG_CONFIG_HOME is redirected
//   to a temp dir with t.Setenv, so they cannot run in parallel.

func configEnv(vars map[string]string) (*Env, *syncBuffer, *syncBuffer) {
	stdout, stderr := &syncBuffer{}, &syncBuffer{}
	return &Env{
		Stdout: stdout,
		Stderr: stderr,
		Getenv: func(k string) string { return vars[k] },
	}, stdout, stderr
}

func TestEnvName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "REDUB_OUTPUT_DIR", envName(config.KeyOutputDir))
	assert.Equal(t, "REDUB_MAX_SEGMENT_DURATION", envName(config.KeyMaxSegmentDuration))
	assert.Equal(t, "REDUB_MODEL", envName(config.KeyModel))
}

// ---------------------------------------------------------------------------
// config set
// ---------------------------------------------------------------------------

func TestRunConfigSet_OutputDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	outDir := filepath.Join(t.TempDir(), "redubs")
	env, _, stderr := configEnv(nil)

	require.NoError(t, runConfigSet(env, config.KeyOutputDir, outDir))

	assert.DirExists(t, outDir, "output-dir is created")
	assert.Contains(t, stderr.String(), "Set output-dir = "+outDir)
	got, err := config.Get(config.KeyOutputDir)
	require.NoError(t, err)
	assert.Equal(t, outDir, got)
}

func TestRunConfigSet_ExpandsHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	env, _, _ := configEnv(nil)

	require.NoError(t, runConfigSet(env, config.KeyHistoryDB, "~/redub/history.db"))

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	got, err := config.Get(config.KeyHistoryDB)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "redub", "history.db"), got)
}

func TestRunConfigSet_UnknownKey(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	env, _, _ := configEnv(nil)

	err := runConfigSet(env, "output_dir", "/tmp")
	require.ErrorIs(t, err, config.ErrUnknownKey)
	assert.Contains(t, err.Error(), config.KeyOutputDir, "lists the valid keys")
}

func TestRunConfigSet_OutputDirIsFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	env, _, _ := configEnv(nil)

	err := runConfigSet(env, config.KeyOutputDir, file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output-dir")
}

// ---------------------------------------------------------------------------
// config get
// ---------------------------------------------------------------------------

func TestRunConfigGet(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	require.NoError(t, config.Save(config.KeyParallel, "2"))

	env, stdout, _ := configEnv(nil)
	require.NoError(t, runConfigGet(env, config.KeyParallel))
	assert.Equal(t, "2\n", stdout.String())
}

func TestRunConfigGet_EnvOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	require.NoError(t, config.Save(config.KeyParallel, "2"))

	env, stdout, _ := configEnv(map[string]string{"REDUB_PARALLEL": "4"})
	require.NoError(t, runConfigGet(env, config.KeyParallel))
	assert.Equal(t, "4\n", stdout.String())
}

func TestRunConfigGet_Unset(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	env, stdout, _ := configEnv(nil)
	require.NoError(t, runConfigGet(env, config.KeyConverterURL))
	assert.Empty(t, stdout.String())
}

func TestRunConfigGet_UnknownKey(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	env, _, _ := configEnv(nil)
	require.ErrorIs(t, runConfigGet(env, "nope"), config.ErrUnknownKey)
}

// ---------------------------------------------------------------------------
// config list
// ---------------------------------------------------------------------------

func TestRunConfigList_Empty(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	env, stdout, _ := configEnv(nil)
	require.NoError(t, runConfigList(env))

	out := stdout.String()
	assert.Contains(t, out, "No configuration set.")
	for _, key := range config.Keys() {
		assert.Contains(t, out, "  "+key+"\n")
	}
}

func TestRunConfigList_SortedWithEnv(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	require.NoError(t, config.Save(config.KeyParallel, "2"))
	require.NoError(t, config.Save(config.KeyModel, "1.5"))

	env, stdout, _ := configEnv(map[string]string{"REDUB_STEPS": "30"})
	require.NoError(t, runConfigList(env))

	assert.Equal(t, "model=1.5\nparallel=2\nsteps=30 (from env)\n", stdout.String())
}
