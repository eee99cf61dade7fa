package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"sitehost/internal/api"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show daemon health, dependencies and live deployments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(cmd.Context(), func(rctx context.Context, client *api.Client) error {
				health, err := client.Health(rctx)
				if err != nil {
					return fmt.Errorf("health: %w", err)
				}
				return ctx.emit(cmd, health, func(out io.Writer) error {
					for _, line := range healthLines(health, shouldColorize(out)) {
						fmt.Fprintln(out, line)
					}
					return nil
				})
			})
		},
	}
}

func healthLines(health *api.HealthResponse, colorize bool) []string {
	var lines []string
	lines = append(lines, renderSectionHeader("Daemon", colorize)...)
	daemonKind := statusOK
	if health.Status != "ok" {
		daemonKind = statusError
	}
	lines = append(lines,
		renderStatusLine("Status", daemonKind, health.Status, colorize),
		renderStatusLine("PID", statusInfo, fmt.Sprintf("%d", health.PID), colorize),
		renderStatusLine("Started", statusInfo, health.StartedAt, colorize),
		renderStatusLine("Tunnels", boolKind(health.Tunnels, statusWarn), yesNo(health.Tunnels), colorize),
	)

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
	if len(health.Dependencies) == 0 {
		lines = append(lines, renderStatusLine("None", statusInfo, "no external tools required", colorize))
	}
	for _, dep := range health.Dependencies {
		kind := statusOK
		detail := dep.Command
		if dep.Version != "" {
			detail = dep.Version
		}
		if !dep.Available {
			kind = statusError
			if dep.Optional {
				kind = statusWarn
			}
			detail = dep.Detail
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader(fmt.Sprintf("Deployments (%d)", len(health.Deployments)), colorize)...)
	for _, dep := range health.Deployments {
		target := dep.URL
		if dep.PublicURL != "" {
			target += " -> " + dep.PublicURL
		}
		lines = append(lines, renderStatusLine(dep.ProjectID, statusOK, target, colorize))
	}
	return lines
}

func boolKind(ok bool, otherwise statusKind) statusKind {
	if ok {
		return statusOK
	}
	return otherwise
}
