package audithook_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tickledger"
	audithook "github.com/xraph/tickledger/audit_hook"
)

type sink struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (s *sink) Record(_ context.Context, evt *audithook.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *sink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Action
	}
	return out
}

func (s *sink) find(action string) *audithook.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.Action == action {
			return e
		}
	}
	return nil
}

func runEngine(t *testing.T, ext *audithook.Extension) {
	t.Helper()
	ctx := context.Background()
	e := tickledger.New(tickledger.WithPlugin(ext), tickledger.WithMaxSweepEntries(1))
	require.NoError(t, e.Start(ctx))
	require.NoError(t, e.SetPricePerUnit(ctx, tickledger.RoleOperator, tickledger.USD(10)))
	_, err := e.TopOff(ctx, "alice", tickledger.USD(55))
	require.NoError(t, err)
	_, err = e.TopOff(ctx, "bob", tickledger.USD(1))
	require.Error(t, err)
	require.NoError(t, e.AdvanceTime(ctx, 9))
	_, err = e.Collect(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Stop(ctx))
}

func TestExtensionRecordsEngineEvents(t *testing.T) {
	s := &sink{}
	runEngine(t, audithook.New(s))

	assert.Equal(t, []string{
		audithook.ActionEngineStarted,
		audithook.ActionPriceChanged,
		audithook.ActionTopOffAccepted,
		audithook.ActionTopOffRejected,
		audithook.ActionTimeAdvanced,
		audithook.ActionCollected,
		audithook.ActionSweepDeferred,
		audithook.ActionEngineStopped,
	}, s.actions())

	accepted := s.find(audithook.ActionTopOffAccepted)
	require.NotNil(t, accepted)
	assert.Equal(t, audithook.ResourceSubscription, accepted.Resource)
	assert.NotEmpty(t, accepted.ResourceID)
	assert.Equal(t, "alice", accepted.Metadata["account"])
	assert.Equal(t, int64(5), accepted.Metadata["units"])
	assert.Equal(t, int64(5), accepted.Metadata["remainder"])

	rejected := s.find(audithook.ActionTopOffRejected)
	require.NotNil(t, rejected)
	assert.Equal(t, audithook.OutcomeFailure, rejected.Outcome)
	assert.Equal(t, audithook.SeverityWarning, rejected.Severity)
	assert.Contains(t, rejected.Reason, "zero units")
	assert.Equal(t, int64(1), rejected.Metadata["amount"])

	collected := s.find(audithook.ActionCollected)
	require.NotNil(t, collected)
	assert.Equal(t, audithook.OutcomePartial, collected.Outcome)
	assert.Equal(t, 1, collected.Metadata["processed"])

	price := s.find(audithook.ActionPriceChanged)
	require.NotNil(t, price)
	assert.Equal(t, int64(0), price.Metadata["old_price"])
	assert.Equal(t, int64(10), price.Metadata["new_price"])
}

func TestExtensionActionFilters(t *testing.T) {
	only := &sink{}
	runEngine(t, audithook.New(only, audithook.WithEnabledActions(audithook.ActionTopOffAccepted)))
	assert.Equal(t, []string{audithook.ActionTopOffAccepted}, only.actions())

	without := &sink{}
	runEngine(t, audithook.New(without, audithook.WithDisabledActions(
		audithook.ActionTimeAdvanced,
		audithook.ActionEngineStarted,
		audithook.ActionEngineStopped,
	)))
	assert.NotContains(t, without.actions(), audithook.ActionTimeAdvanced)
	assert.Contains(t, without.actions(), audithook.ActionCollected)
	assert.Len(t, without.actions(), 5)
}

func TestExtensionCheckpointEvents(t *testing.T) {
	s := &sink{}
	ext := audithook.New(s)
	ctx := context.Background()

	require.NoError(t, ext.OnCheckpoint(ctx, "inst_1", nil))
	require.NoError(t, ext.OnCheckpoint(ctx, "inst_1", errors.New("disk full")))

	require.Len(t, s.events, 2)
	assert.Equal(t, audithook.ActionCheckpointSaved, s.events[0].Action)
	assert.Equal(t, "inst_1", s.events[0].ResourceID)
	assert.Equal(t, audithook.ActionCheckpointFailed, s.events[1].Action)
	assert.Equal(t, audithook.SeverityError, s.events[1].Severity)
	assert.Equal(t, "disk full", s.events[1].Reason)
}

func TestRecorderFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	ext := audithook.New(
		audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
			return errors.New("backend down")
		}),
		audithook.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))),
	)

	require.NoError(t, ext.OnShutdown(context.Background()))
	assert.Contains(t, buf.String(), "failed to record audit event")
	assert.Contains(t, buf.String(), "backend down")
}

func TestJSONRecorder(t *testing.T) {
	var buf bytes.Buffer
	ext := audithook.New(audithook.NewJSONRecorder(&buf))
	ctx := context.Background()

	require.NoError(t, ext.OnTimeAdvanced(ctx, 1, 5))
	require.NoError(t, ext.OnShutdown(ctx))

	var lines []audithook.AuditEvent
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var evt audithook.AuditEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &evt))
		lines = append(lines, evt)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, audithook.ActionTimeAdvanced, lines[0].Action)
	assert.EqualValues(t, 5, lines[0].Metadata["to"])
	assert.Equal(t, audithook.ActionEngineStopped, lines[1].Action)
}
