package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/evogen/internal/server"
	"github.com/copyleftdev/evogen/internal/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func quiet(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_OUTPUT", "stderr")
	t.Setenv("OPT_POPULATION_SIZE", "20")
	t.Setenv("OPT_GENERATIONS", "20")
}

func TestProblemsCommand(t *testing.T) {
	quiet(t)

	out, err := execute(t, "problems")
	require.NoError(t, err)

	var catalog map[string][]string
	require.NoError(t, json.Unmarshal([]byte(out), &catalog))
	assert.Equal(t, []string{"ackley", "rastrigin", "sphere"}, catalog["problems"])
	assert.Equal(t, server.Algorithms, catalog["algorithms"])
}

func TestRunCommand_RecordsHistory(t *testing.T) {
	quiet(t)
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("STORE_PATH", filepath.Join(t.TempDir(), "runs.db"))

	out, err := execute(t, "run", "-a", "es", "-p", "sphere", "-d", "3", "--generations", "15", "--seed", "9")
	require.NoError(t, err)

	var st server.RunStatus
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, server.StatusCompleted, st.Status)
	assert.Equal(t, "es", st.Algorithm)
	assert.Len(t, st.Best, 3)

	_, err = execute(t, "run", "-a", "osga", "-p", "rastrigin", "-d", "2", "--population", "10")
	require.NoError(t, err)

	out, err = execute(t, "history", "--problem", "sphere")
	require.NoError(t, err)

	var runs []store.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, st.ID, runs[0].ID)
	assert.Equal(t, server.StatusCompleted, runs[0].Status)

	out, err = execute(t, "history")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	assert.Len(t, runs, 2)
}

func TestRunCommand_Timeout(t *testing.T) {
	quiet(t)

	out, err := execute(t, "run", "-p", "ackley", "-d", "4", "--generations", "10000000", "--timeout", "30ms")
	require.NoError(t, err)

	var st server.RunStatus
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, server.StatusStopped, st.Status)
	require.NotNil(t, st.BestFitness)
}

func TestRunCommand_Invalid(t *testing.T) {
	quiet(t)

	_, err := execute(t, "run", "-p", "rosenbrock")
	assert.Error(t, err)

	_, err = execute(t, "run", "-a", "annealing", "-p", "sphere")
	assert.Error(t, err)

	_, err = execute(t, "history", "--limit", "-1")
	assert.Error(t, err)

	_, err = execute(t, "run", "extra")
	assert.Error(t, err)
}
