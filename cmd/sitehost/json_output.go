package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

// emit writes v as indented JSON when --json is set and otherwise hands the
// command's stdout to render.
func (c *commandContext) emit(cmd *cobra.Command, v any, render func(io.Writer) error) error {
	out := cmd.OutOrStdout()
	if c.jsonOutput() {
		return writeJSON(out, v)
	}
	return render(out)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
