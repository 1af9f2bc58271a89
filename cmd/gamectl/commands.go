package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veranemoloko/retro-installer/internal/domain"
	"github.com/veranemoloko/retro-installer/internal/validation"
)

func newInstallCommand(ctx *commandContext) *cobra.Command {
	var source string
	var catalogID int64
	var catalogName string
	var year int
	var publisher string

	cmd := &cobra.Command{
		Use:   "install <console> <game name>",
		Short: "Queue a game install",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if source != "" {
				if err := validation.ValidateSource(domain.SourceDescriptor(source)); err != nil {
					return err
				}
			}

			req := domain.CreateTaskRequest{
				ConsoleCode: args[0],
				GameName:    strings.Join(args[1:], " "),
				Source:      source,
			}
			if catalogName != "" {
				req.CatalogHint = &domain.CatalogHintRequest{
					ID:        catalogID,
					Name:      catalogName,
					Publisher: publisher,
					Year:      year,
				}
			}

			task, err := ctx.client().Install(cmd.Context(), req)
			if err != nil {
				return err
			}
			if ctx.jsonOutput(cmd) {
				return writeJSON(cmd, task)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued %s for %s (task %s)\n", task.GameName, task.ConsoleCode, task.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Source descriptor (arv://, switch://, http(s)://); looked up in the registry when empty")
	cmd.Flags().Int64Var(&catalogID, "catalog-id", 0, "Catalog game id")
	cmd.Flags().StringVar(&catalogName, "catalog-name", "", "Catalog title; skips the online lookup")
	cmd.Flags().IntVar(&year, "year", 0, "Release year for the catalog hint")
	cmd.Flags().StringVar(&publisher, "publisher", "", "Publisher for the catalog hint")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var active bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List install tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := ctx.client().List(cmd.Context(), active)
			if err != nil {
				return err
			}
			if ctx.jsonOutput(cmd) {
				return writeJSON(cmd, tasks)
			}
			printTasks(cmd, tasks)
			return nil
		},
	}

	cmd.Flags().BoolVar(&active, "active", false, "Only queued and running tasks")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := ctx.client().Show(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ctx.jsonOutput(cmd) {
				return writeJSON(cmd, task)
			}
			printTask(cmd, task)
			return nil
		},
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task id>",
		Short: "Cancel a queued or running install",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := ctx.client().Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ctx.jsonOutput(cmd) {
				return writeJSON(cmd, task)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s\n", task.GameName)
			return nil
		},
	}
}

func newClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove finished tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := ctx.client().Clear(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput(cmd) {
				return writeJSON(cmd, map[string]int{"cleared": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d finished task(s)\n", n)
			return nil
		},
	}
}

func newConsolesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "consoles",
		Short: "List supported consoles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			consoles, err := ctx.client().Consoles(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput(cmd) {
				return writeJSON(cmd, consoles)
			}

			rows := make([][]string, 0, len(consoles))
			for _, c := range consoles {
				unpack := ""
				if c.Unpacks {
					unpack = "yes"
				}
				rows = append(rows, []string{c.Code, c.Name, c.Extension, unpack, fmt.Sprint(c.Games)})
			}
			headers := []string{"Code", "Name", "Extension", "Unpacks", "Games"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
			return nil
		},
	}
}
