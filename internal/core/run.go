package core

import "time"

// Mode is the autonomy mode a run executes under.
type Mode string

const (
	ModeManual     Mode = "manual"
	ModeSupervised Mode = "supervised"
	ModeAutonomous Mode = "autonomous"
)

// RunStatus is the coarse-grained lifecycle status of a run.
type RunStatus string

const (
	RunInitializing RunStatus = "initializing"
	RunRunning      RunStatus = "running"
	RunPaused       RunStatus = "paused"
	RunStopped      RunStatus = "stopped"
	RunCompleted    RunStatus = "completed"
	RunFailed       RunStatus = "failed"
)

// RiskPolicy configures the governor's action-approval gating.
type RiskPolicy struct {
	// RequireApproval lists tool-type glob patterns ("*" matches any) whose
	// actions require approval in every mode, unless an autonomous-mode
	// action is already auto-approved by AutoApproveBelowRisk.
	RequireApproval []string
	// AllowedTools, when non-empty, is the closed set of permitted tool
	// types; anything outside it is treated as blocked.
	AllowedTools []string
	// BlockedTools are tool types that are always denied.
	BlockedTools []string
	// MaxRiskPerAction denies any action whose risk exceeds this value.
	MaxRiskPerAction float64
	// AutoApproveBelowRisk allows autonomous-mode actions with risk at or
	// below this value without requesting approval.
	AutoApproveBelowRisk float64
}

// RunConfig is the immutable configuration of a kernel run.
type RunConfig struct {
	RunID              string
	ProjectID          string
	Name               string
	Description        string
	Mode               Mode
	Budgets            Budgets
	CheckpointInterval int
	RiskPolicy         RiskPolicy
	CreatedAt          time.Time
}

// RunState is the mutable run-level state the kernel tracks as it executes.
type RunState struct {
	Status        RunStatus
	CurrentTaskID string
	Iteration     int
	StopReason    string
}
