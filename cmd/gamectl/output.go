package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/veranemoloko/retro-installer/internal/domain"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatProgress(p float64) string {
	return strconv.Itoa(int(p*100+0.5)) + "%"
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func taskRows(tasks []domain.TaskResponse) [][]string {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		status := string(t.Status)
		if t.Error != "" {
			status += ": " + t.Error
		}
		rows = append(rows, []string{
			t.ID,
			t.GameName,
			t.ConsoleCode,
			status,
			formatProgress(t.Progress),
			formatAge(t.UpdatedAt),
		})
	}
	return rows
}

func printTasks(cmd *cobra.Command, tasks []domain.TaskResponse) {
	if len(tasks) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tasks")
		return
	}
	headers := []string{"ID", "Game", "Console", "Status", "Progress", "Updated"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, taskRows(tasks), aligns))
}

func printTask(cmd *cobra.Command, t domain.TaskResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:        %s\n", t.ID)
	fmt.Fprintf(out, "Game:      %s\n", t.GameName)
	fmt.Fprintf(out, "Console:   %s\n", t.ConsoleCode)
	fmt.Fprintf(out, "Status:    %s\n", t.Status)
	fmt.Fprintf(out, "Progress:  %s\n", formatProgress(t.Progress))
	if t.Error != "" {
		fmt.Fprintf(out, "Error:     %s\n", t.Error)
	}
	if t.GameDir != "" {
		fmt.Fprintf(out, "Directory: %s\n", t.GameDir)
	}
	if t.CatalogHint != nil {
		fmt.Fprintf(out, "Catalog:   %s (%d) #%d\n", t.CatalogHint.Name, t.CatalogHint.Year, t.CatalogHint.ID)
	}
	fmt.Fprintf(out, "Created:   %s\n", formatAge(t.CreatedAt))
	fmt.Fprintf(out, "Updated:   %s\n", formatAge(t.UpdatedAt))
}
