package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidegate/simroom/internal/def"
)

// execute runs the CLI with args and returns stdout, stderr, and the
// command error.
func execute(args ...string) (string, string, error) {
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestValidate_Valid(t *testing.T) {
	out, _, err := execute("validate", filepath.Join("testdata", "valid.json"))
	require.NoError(t, err)
	assert.Contains(t, out, "heater 1.0.0: valid")
}

func TestValidate_ValidCUE(t *testing.T) {
	out, _, err := execute("validate", filepath.Join("testdata", "heater.cue"))
	require.NoError(t, err)
	assert.Contains(t, out, "valid")
}

func TestValidate_Invalid(t *testing.T) {
	out, _, err := execute("validate", filepath.Join("testdata", "invalid.json"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, def.ErrCodeMissingField)
}

func TestValidate_MissingFile(t *testing.T) {
	_, _, err := execute("validate", filepath.Join("testdata", "no_such.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidate_JSONFormat(t *testing.T) {
	out, _, err := execute("--format", "json", "validate", filepath.Join("testdata", "invalid.json"))
	require.Error(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, def.ErrCodeMissingField, env.Error.Code)
	assert.NotEmpty(t, env.Error.Path)
}

func TestInvalidFormatFlag(t *testing.T) {
	_, _, err := execute("--format", "xml", "validate", filepath.Join("testdata", "valid.json"))
	assert.Error(t, err)
}

func TestCompile_ToStdout(t *testing.T) {
	out, _, err := execute("compile", filepath.Join("testdata", "heater.cue"))
	require.NoError(t, err)

	// Output is a valid definition equal to the JSON-authored one.
	compiled, err := def.Parse([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "heater", compiled.Meta.Name)
	assert.Equal(t, 50.0, compiled.Vars["power"].Value)
}

func TestCompile_ToFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "heater.json")
	_, _, err := execute("compile", filepath.Join("testdata", "heater.cue"), "-o", dest)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	_, err = def.Parse(data)
	require.NoError(t, err)
}

func TestCompile_Broken(t *testing.T) {
	src := filepath.Join(t.TempDir(), "broken.cue")
	require.NoError(t, os.WriteFile(src, []byte(`meta: {name:`), 0o644))

	_, _, err := execute("compile", src)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestTest_PassingScenario(t *testing.T) {
	out, _, err := execute("test", filepath.Join("testdata", "heater_scenario.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "PASS heater-basics")
}

func TestTest_FailingScenario(t *testing.T) {
	scenario := filepath.Join(t.TempDir(), "failing.yaml")
	defPath, err := filepath.Abs(filepath.Join("testdata", "valid.json"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(scenario, []byte(`
name: failing
definition: `+defPath+`
steps:
  - tick: 1
assertions:
  - var_equals: {name: power, value: 9999}
`), 0o644))

	out, _, err := execute("test", scenario)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "FAIL failing")
}

func TestRun_ShortSimulation(t *testing.T) {
	out, _, err := execute("run", filepath.Join("testdata", "valid.json"),
		"--duration", "60ms", "--timestep", "5ms")
	require.NoError(t, err)
	assert.Contains(t, out, "heater")
	assert.Contains(t, out, "ticks")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "boom")))

	wrapped := WrapExitError(ExitFailure, "ctx", errors.New("inner"))
	assert.Equal(t, "ctx: inner", wrapped.Error())
	assert.Equal(t, "inner", errors.Unwrap(wrapped).Error())
}

func TestValidate_JSONSuccessEnvelope(t *testing.T) {
	out, _, err := execute("--format", "json", "validate", filepath.Join("testdata", "valid.json"))
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	assert.Nil(t, env.Error)
	assert.Equal(t, "heater 1.0.0: valid", env.Result)
}
