package panels

import (
	"context"
	"fmt"
	"strings"

	"github.com/dwizi/edge-console/internal/snapshot"
)

// LogLevels are the levels the debugging panel can switch the gateway to.
var LogLevels = []string{"debug", "info"}

type LogLevelSetter interface {
	SetLogLevel(ctx context.Context, level string) error
}

type DebugInfo struct {
	Available bool
	System    []LabelValue
	Envoy     string
	LogLevel  string
	EnvGood   bool
	EnvChecks []snapshot.EnvCheck
	Errors    []snapshot.DiagError
	License   []LabelValue
}

type LabelValue struct {
	Label string
	Value string
}

// Debugging summarizes the gateway's health and configuration errors.
func Debugging(snap *snapshot.Snapshot, diag *snapshot.Diagnostics) DebugInfo {
	if diag == nil {
		return DebugInfo{}
	}
	system := diag.System
	info := DebugInfo{
		Available: true,
		System: []LabelValue{
			{Label: "version", Value: system.Version},
			{Label: "hostname", Value: system.Hostname},
			{Label: "cluster id", Value: system.ClusterID},
			{Label: "ambassador id", Value: system.AmbassadorID},
			{Label: "namespace", Value: system.AmbassadorNS},
			{Label: "single namespace", Value: fmt.Sprintf("%t", system.SingleNamespace)},
			{Label: "knative", Value: enabled(system.KnativeEnabled)},
			{Label: "statsd", Value: enabled(system.StatsdEnabled)},
			{Label: "uptime", Value: system.Uptime},
		},
		Envoy:     EnvoyState(diag.Envoy),
		LogLevel:  diag.LogLevel,
		EnvGood:   system.EnvGood,
		EnvChecks: system.EnvStatus,
		Errors:    diag.Errors,
	}
	if snap != nil {
		info.System = append(info.System, LabelValue{Label: "redis", Value: inUse(snap.RedisInUse)})
		if snap.License.HardLimit || len(snap.License.FeaturesOverLimit) > 0 {
			info.License = append(info.License,
				LabelValue{Label: "hard limit", Value: fmt.Sprintf("%t", snap.License.HardLimit)},
				LabelValue{Label: "features over limit", Value: strings.Join(snap.License.FeaturesOverLimit, ", ")},
			)
		}
	}
	return info
}

func EnvoyState(status snapshot.EnvoyStatus) string {
	switch {
	case status.Ready:
		return fmt.Sprintf("ready (last status report %s)", status.SinceUpdate)
	case status.Alive:
		return fmt.Sprintf("alive but not yet ready (running %s)", status.Uptime)
	default:
		return "not running"
	}
}

// SetLogLevel switches the gateway's log level; only LogLevels are accepted.
func SetLogLevel(ctx context.Context, setter LogLevelSetter, level string) error {
	level = strings.ToLower(strings.TrimSpace(level))
	for _, allowed := range LogLevels {
		if level == allowed {
			if err := setter.SetLogLevel(ctx, level); err != nil {
				return fmt.Errorf("set log level %s: %w", level, err)
			}
			return nil
		}
	}
	return fmt.Errorf("unsupported log level %q (want %s)", level, strings.Join(LogLevels, " or "))
}

func enabled(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}

func inUse(v bool) string {
	if v {
		return "in use"
	}
	return "not in use"
}
