package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"sitehost/internal/api"
)

const tunnelPollInterval = 500 * time.Millisecond

func newDeployCommand(ctx *commandContext) *cobra.Command {
	var waitPublic time.Duration
	cmd := &cobra.Command{
		Use:   "deploy <dir|files.json>",
		Short: "Deploy a directory or JSON file set as a live site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := loadFiles(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(cmd.Context(), func(rctx context.Context, client *api.Client) error {
				resp, err := client.Deploy(rctx, files)
				if err != nil {
					return fmt.Errorf("deploy: %w", err)
				}
				project := api.Project{
					ProjectID:   resp.ProjectID,
					Port:        resp.Port,
					URL:         resp.URL,
					PublicURL:   resp.PublicURL,
					TunnelState: resp.TunnelState,
					Status:      "live",
				}
				if waitPublic > 0 && resp.TunnelState == "pending" {
					if resolved, ok := waitForTunnel(rctx, client, resp.ProjectID, waitPublic); ok {
						project = resolved
					}
				}
				return ctx.emit(cmd, project, func(out io.Writer) error {
					fmt.Fprintf(out, "Deployed %s (%d files)\n", project.ProjectID, len(files))
					fmt.Fprintf(out, "  Local:  %s\n", project.URL)
					fmt.Fprintf(out, "  Public: %s\n", publicSummary(project))
					return nil
				})
			})
		},
	}
	cmd.Flags().DurationVar(&waitPublic, "wait-public", 0, "Wait up to this long for the public URL to resolve")
	return cmd
}

func waitForTunnel(ctx context.Context, client *api.Client, id string, limit time.Duration) (api.Project, bool) {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	ticker := time.NewTicker(tunnelPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return api.Project{}, false
		case <-ticker.C:
		}
		project, err := client.Status(ctx, id)
		if err != nil {
			return api.Project{}, false
		}
		if project.TunnelState != "pending" {
			return *project, true
		}
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <project-id>",
		Short: "Show one deployed project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd.Context(), func(rctx context.Context, client *api.Client) error {
				project, err := client.Status(rctx, args[0])
				if err != nil {
					return fmt.Errorf("status: %w", err)
				}
				return ctx.emit(cmd, project, func(out io.Writer) error {
					colorize := shouldColorize(out)
					for _, line := range renderSectionHeader(project.ProjectID, colorize) {
						fmt.Fprintln(out, line)
					}
					fmt.Fprintln(out, renderStatusLine("Status", projectStatusKind(project.Status), project.Status, colorize))
					fmt.Fprintln(out, renderStatusLine("Local URL", statusOK, project.URL, colorize))
					fmt.Fprintln(out, renderStatusLine("Public URL", tunnelStatusKind(project.TunnelState), publicSummary(*project), colorize))
					fmt.Fprintln(out, renderStatusLine("Port", statusInfo, fmt.Sprintf("%d", project.Port), colorize))
					fmt.Fprintln(out, renderStatusLine("Created", statusInfo, project.CreatedAt, colorize))
					fmt.Fprintln(out, renderStatusLine("Files", statusInfo, fmt.Sprintf("%d", len(project.Files)), colorize))
					return nil
				})
			})
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List deployed projects",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(cmd.Context(), func(rctx context.Context, client *api.Client) error {
				projects, err := client.List(rctx)
				if err != nil {
					return fmt.Errorf("list: %w", err)
				}
				return ctx.emit(cmd, api.ProjectListResponse{Projects: projects}, func(out io.Writer) error {
					if len(projects) == 0 {
						fmt.Fprintln(out, "No projects deployed")
						return nil
					}
					fmt.Fprintln(out, renderProjectTable(projects))
					return nil
				})
			})
		},
	}
}

func newTeardownCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "teardown <project-id>...",
		Aliases: []string{"rm"},
		Short:   "Stop serving projects and delete their files",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd.Context(), func(rctx context.Context, client *api.Client) error {
				removed := make([]string, 0, len(args))
				for _, id := range args {
					if err := client.Teardown(rctx, id); err != nil {
						return fmt.Errorf("teardown %s: %w", id, err)
					}
					removed = append(removed, id)
				}
				return ctx.emit(cmd, map[string]any{"success": true, "removed": removed}, func(out io.Writer) error {
					for _, id := range removed {
						fmt.Fprintf(out, "Removed %s\n", id)
					}
					return nil
				})
			})
		},
	}
}

func publicSummary(p api.Project) string {
	switch p.TunnelState {
	case "ready":
		return p.PublicURL
	case "inferred":
		return p.PublicURL + " (inferred)"
	case "pending":
		return "pending (resolving in background)"
	case "disabled":
		return "disabled"
	default:
		return "unavailable"
	}
}
