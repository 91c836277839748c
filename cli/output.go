package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"tapoctl/types"
)

func writeState(out io.Writer, state types.DeviceState) error {
	encoded, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("could not marshal device state: %w", err)
	}
	return writeLine(out, string(encoded))
}

func writeLine(out io.Writer, line string) error {
	if _, err := fmt.Fprintln(out, line); err != nil {
		return fmt.Errorf("could not write output: %w", err)
	}
	return nil
}
