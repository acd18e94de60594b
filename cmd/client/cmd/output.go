package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
)

var (
	okMark   = color.New(color.FgGreen).SprintFunc()
	warnMark = color.New(color.FgYellow).SprintFunc()
	dimText  = color.New(color.Faint).SprintFunc()
	header   = color.New(color.Bold).SprintFunc()
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func success(format string, args ...any) {
	fmt.Printf("%s %s\n", okMark("✓"), fmt.Sprintf(format, args...))
}

func warning(format string, args ...any) {
	fmt.Printf("%s %s\n", warnMark("!"), fmt.Sprintf(format, args...))
}

// parseData разбирает JSON-объект из флага --data
func parseData(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("--data должен быть JSON-объектом: %w", err)
	}
	return data, nil
}
