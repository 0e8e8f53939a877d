// Package iface defines the storage interface used by the collector,
// scoped so consumers can depend on reads only.
package iface

import (
	"context"
	"io"

	"github.com/trinnode/Sentinel/collector/types"
	"github.com/trinnode/Sentinel/health"
	"github.com/trinnode/Sentinel/shared/params"
)

// ReadOnlyDatabase defines read access to collector records.
type ReadOnlyDatabase interface {
	// Registry records imported from the management layer.
	Validator(ctx context.Context, id string) (*types.Validator, error)
	Agent(ctx context.Context, id string) (*types.Agent, error)
	WebhookConfigs(ctx context.Context, userID string) ([]*types.WebhookConfig, error)
	// Consensus records.
	AgentReport(ctx context.Context, id string) (*types.AgentReport, error)
	AgentReportsByValidator(ctx context.Context, validatorID string, limit int) ([]*types.AgentReport, error)
	Alerts(ctx context.Context, validatorID string) ([]*types.Alert, error)
}

// Database defines the full storage access used by the collector.
type Database interface {
	ReadOnlyDatabase
	io.Closer

	SaveValidator(ctx context.Context, v *types.Validator) error
	SaveAgent(ctx context.Context, a *types.Agent) error
	SaveWebhookConfig(ctx context.Context, w *types.WebhookConfig) error
	ImportSeedRegistry(ctx context.Context, reg *params.SeedRegistry) error

	// SaveAgentReport persists the report and advances the submitting
	// agent's lastSeen in the same transaction.
	SaveAgentReport(ctx context.Context, report *types.AgentReport) error
	UpdateAgentReportStatus(ctx context.Context, ids []string, status health.Status, consensus bool) error
	SaveAlert(ctx context.Context, alert *types.Alert) error

	Backup(ctx context.Context, outputDir string) error
	ClearDB() error
	DatabasePath() string
}
