package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// write encodes v in format. YAML goes through JSON first so both formats
// share the json field names.
func write(w io.Writer, format string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}

	switch format {
	case formatJSON, "":
		_, err = fmt.Fprintln(w, string(data))
		return err
	case formatYAML:
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("encoding output: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return fmt.Errorf("encoding output: %w", err)
		}
		return enc.Close()
	default:
		return checkFormat(format)
	}
}

func checkFormat(format string) error {
	switch format {
	case formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unknown format %q (want %s or %s)", format, formatJSON, formatYAML)
}
