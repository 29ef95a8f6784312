//go:build enterprise
// +build enterprise

package main

import (
	"context"

	"sentinel/internal/config"
	"sentinel/internal/eventbridge"
	"sentinel/internal/hook"
)

// startEventBridge runs the Kafka consumer alternative trigger path for
// on_event until ctx is canceled. Only compiled into -tags enterprise
// builds, matching the teacher's own enterprise-gated Kafka admin/consumer
// code.
func startEventBridge(ctx context.Context, cfg config.EventBridgeConfig, orchestrator *hook.Orchestrator) error {
	return eventbridge.StartConsumer(ctx, cfg, orchestrator)
}
