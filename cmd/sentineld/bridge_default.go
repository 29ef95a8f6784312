//go:build !enterprise
// +build !enterprise

package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"sentinel/internal/config"
	"sentinel/internal/hook"
)

// startEventBridge is the no-op stand-in for the Kafka consumer bridge in
// default builds. event_bridge.enabled without -tags enterprise is a
// misconfiguration, logged once rather than failing startup.
func startEventBridge(ctx context.Context, cfg config.EventBridgeConfig, orchestrator *hook.Orchestrator) error {
	log.Warn().Msg("event_bridge_enabled_but_not_built_with_enterprise_tag")
	<-ctx.Done()
	return ctx.Err()
}
