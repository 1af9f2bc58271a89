package main

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

type commandContext struct {
	serverFlag *string
	jsonFlag   *bool
}

func newCommandContext(serverFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		serverFlag: serverFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) client() *apiClient {
	return newAPIClient(strings.TrimRight(*c.serverFlag, "/"))
}

// jsonOutput honours an explicit --json and otherwise prints JSON only when
// stdout is not a terminal.
func (c *commandContext) jsonOutput(cmd *cobra.Command) bool {
	if flag := cmd.Flags().Lookup("json"); flag != nil && flag.Changed {
		return *c.jsonFlag
	}
	if out, ok := cmd.OutOrStdout().(*os.File); ok {
		return !isatty.IsTerminal(out.Fd())
	}
	return false
}
