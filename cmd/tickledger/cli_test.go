package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tickledger"
	audithook "github.com/xraph/tickledger/audit_hook"
)

func executeCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

// initInstance creates an instance and returns the config flag pointing at it.
func initInstance(t *testing.T, extra ...string) string {
	t.Helper()
	dir := t.TempDir()
	config := "--config=" + filepath.Join(dir, "tickledger.toml")

	args := append([]string{"init", config, "--data-dir", filepath.Join(dir, "data")}, extra...)
	stdout, _, err := executeCLI(t, args...)
	require.NoError(t, err)
	require.Contains(t, stdout, "instance: inst_")
	return config
}

func TestInitWritesConfig(t *testing.T) {
	config := initInstance(t)
	path := strings.TrimPrefix(config, "--config=")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "inst_")
	assert.Contains(t, string(raw), "data_dir")

	_, _, err = executeCLI(t, "init", config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already configured")
}

func TestBillingWorkflow(t *testing.T) {
	config := initInstance(t, "--price", "10")

	stdout, _, err := executeCLI(t, "advance", "5", config)
	require.NoError(t, err)
	assert.Equal(t, "time: 0 -> 5\n", stdout)

	stdout, _, err = executeCLI(t, "topoff", "alice", "100", config)
	require.NoError(t, err)
	assert.Contains(t, stdout, "for alice: [6, 16) units 10 cost $1.00 remainder $0.00")

	_, _, err = executeCLI(t, "advance", "--by", "5", config)
	require.NoError(t, err)

	stdout, _, err = executeCLI(t, "topoff", "bob", "200", config)
	require.NoError(t, err)
	assert.Contains(t, stdout, "[11, 31)")

	_, _, err = executeCLI(t, "advance", "19", config)
	require.NoError(t, err)

	stdout, _, err = executeCLI(t, "collect", config)
	require.NoError(t, err)
	assert.Contains(t, stdout, "collected $1.80")

	stdout, _, err = executeCLI(t, "status", "--json", config)
	require.NoError(t, err)

	var view statusView
	require.NoError(t, json.Unmarshal([]byte(stdout), &view))
	assert.Equal(t, tickledger.Tick(19), view.CurrentTime)
	assert.Equal(t, int64(180), view.Service.Amount)
	assert.Equal(t, int64(120), view.Pooled.Amount)
	assert.Equal(t, int64(10), view.Rate.Amount)
	require.NotNil(t, view.Price)
	assert.Equal(t, int64(10), view.Price.Amount)
	assert.Equal(t, []accountStatus{
		{Account: "alice", Active: false},
		{Account: "bob", Active: true},
	}, view.Accounts)

	stdout, _, err = executeCLI(t, "status", config)
	require.NoError(t, err)
	assert.Contains(t, stdout, "service: $1.80")
	assert.Contains(t, stdout, "  bob: active")

	stdout, _, err = executeCLI(t, "history", "alice", "--status", "expired", config)
	require.NoError(t, err)
	assert.Contains(t, stdout, "subscriptions: 1")
	assert.Contains(t, stdout, "[6, 16) 10 units at 10 expired")

	stdout, _, err = executeCLI(t, "history", "bob", "--status", "pending", "--at", "0", config)
	require.NoError(t, err)
	assert.Contains(t, stdout, "subscriptions: 1")
	assert.Contains(t, stdout, "[11, 31) 20 units at 10 pending")
}

func TestCollectDefersWhenCapped(t *testing.T) {
	config := initInstance(t, "--price", "1")

	for _, acct := range []string{"a", "b", "c"} {
		_, _, err := executeCLI(t, "topoff", acct, "2", config)
		require.NoError(t, err)
		_, _, err = executeCLI(t, "advance", "--by", "1", config)
		require.NoError(t, err)
	}
	_, _, err := executeCLI(t, "advance", "100", config)
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, "collect", "--max-sweep-entries", "2", config)
	require.NoError(t, err)
	assert.Contains(t, stdout, "deferred:")

	stdout, _, err = executeCLI(t, "collect", "--all", "--max-sweep-entries", "2", config)
	require.NoError(t, err)
	assert.NotContains(t, stdout, "deferred:")

	stdout, _, err = executeCLI(t, "status", "--json", config)
	require.NoError(t, err)
	var view statusView
	require.NoError(t, json.Unmarshal([]byte(stdout), &view))
	assert.Equal(t, int64(6), view.Service.Amount)
	assert.Zero(t, view.Pooled.Amount)
	assert.Zero(t, view.PendingEntries)
}

func TestRejectionsAreReported(t *testing.T) {
	config := initInstance(t)

	_, _, err := executeCLI(t, "topoff", "alice", "100", config)
	require.ErrorIs(t, err, tickledger.ErrPriceNotSet)

	_, _, err = executeCLI(t, "price", "20", "--role", "subscriber", config)
	require.ErrorIs(t, err, tickledger.ErrUnauthorized)

	_, _, err = executeCLI(t, "price", "20", config)
	require.NoError(t, err)

	_, _, err = executeCLI(t, "topoff", "alice", "19", config)
	require.ErrorIs(t, err, tickledger.ErrSubMinimumPurchase)

	_, _, err = executeCLI(t, "advance", "0", config)
	require.ErrorIs(t, err, tickledger.ErrNonMonotonicTime)

	_, _, err = executeCLI(t, "advance", config)
	require.Error(t, err)
}

func TestCommandsRequireInstance(t *testing.T) {
	config := "--config=" + filepath.Join(t.TempDir(), "tickledger.toml")
	_, _, err := executeCLI(t, "status", config)
	require.ErrorIs(t, err, errNoInstance)
}

func TestEnvironmentOverridesConfig(t *testing.T) {
	config := initInstance(t)
	t.Setenv("TICKLEDGER_CURRENCY", "eur")

	_, _, err := executeCLI(t, "status", config)
	require.ErrorIs(t, err, tickledger.ErrCurrencyMismatch)
}

func TestAuditLog(t *testing.T) {
	config := initInstance(t, "--price", "10")
	auditPath := filepath.Join(t.TempDir(), "audit.jsonl")

	_, _, err := executeCLI(t, "topoff", "alice", "100", "--audit-log", auditPath, config)
	require.NoError(t, err)

	f, err := os.Open(auditPath)
	require.NoError(t, err)
	defer f.Close()

	var actions []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var evt audithook.AuditEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &evt))
		actions = append(actions, evt.Action)
	}
	assert.Contains(t, actions, audithook.ActionTopOffAccepted)
	assert.Contains(t, actions, audithook.ActionCheckpointSaved)
}
