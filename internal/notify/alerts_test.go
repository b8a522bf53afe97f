package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

type captureSender struct {
	titles   []string
	messages []string
	fail     bool
}

func (c *captureSender) Send(_ context.Context, title, message string) error {
	if c.fail {
		return assert.AnError
	}
	c.titles = append(c.titles, title)
	c.messages = append(c.messages, message)
	return nil
}

func (c *captureSender) Name() string { return "capture" }

func TestAlertListenerHandlesCommands(t *testing.T) {
	sender := &captureSender{}
	listener := NewAlertListener(nil, NewNotifier([]Sender{sender}, slog.Default()), slog.Default())
	ctx := context.Background()

	sharpe := -1.2
	cases := []domain.RiskCommand{
		{Command: domain.CommandLiquidateAll, Reason: "drawdown"},
		{Command: domain.CommandActivateManualApproval, Reason: "model", RollingSharpe: &sharpe},
		{Command: domain.CommandResetKillSwitch, Reason: "operator"},
	}
	for _, cmd := range cases {
		payload, err := json.Marshal(cmd)
		require.NoError(t, err)
		listener.handle(ctx, payload)
	}

	require.Len(t, sender.titles, 3)
	assert.Equal(t, "Kill switch tripped", sender.titles[0])
	assert.Equal(t, "Model rollback", sender.titles[1])
	assert.Contains(t, sender.messages[1], "sharpe -1.20")
	assert.Equal(t, "Kill switch reset", sender.titles[2])
}

func TestAlertListenerIgnoresGarbage(t *testing.T) {
	sender := &captureSender{}
	listener := NewAlertListener(nil, NewNotifier([]Sender{sender}, slog.Default()), slog.Default())

	listener.handle(context.Background(), []byte("{broken"))
	listener.handle(context.Background(), []byte(`{"command":"DANCE"}`))
	assert.Empty(t, sender.titles)
}

func TestNotifierCollectsSenderFailures(t *testing.T) {
	good := &captureSender{}
	bad := &captureSender{fail: true}
	n := NewNotifier([]Sender{bad, good}, slog.Default())

	err := n.Notify(context.Background(), "title", "message")
	assert.Error(t, err, "failures surface as a combined error")
	assert.Len(t, good.titles, 1, "one failing channel must not block the rest")
}

func TestNotifierWithNoSendersIsNoop(t *testing.T) {
	n := NewNotifier(nil, slog.Default())
	assert.NoError(t, n.Notify(context.Background(), "t", "m"))
}
