package domain

// RiskCommandType enumerates the operational commands the risk governor
// publishes on the risk_commands topic.
type RiskCommandType string

const (
	CommandLiquidateAll           RiskCommandType = "LIQUIDATE_ALL"
	CommandActivateManualApproval RiskCommandType = "ACTIVATE_MANUAL_APPROVAL"
	CommandResetKillSwitch        RiskCommandType = "RESET_KILL_SWITCH"
)

// RiskCommand is a control message consumed by the execution engine. The
// rolling metrics are attached for provenance on model-rollback commands and
// are absent otherwise.
type RiskCommand struct {
	Command         RiskCommandType `json:"command"`
	Reason          string          `json:"reason"`
	RollingSharpe   *float64        `json:"rolling_sharpe,omitempty"`
	RollingAccuracy *float64        `json:"rolling_accuracy,omitempty"`
}
