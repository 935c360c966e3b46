package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
)

// outputs flattens a JSON object printed by bin/dedup into step outputs.
// Lists are reported by their length and nested objects are dropped.
func outputs(data []byte) (map[string]string, error) {
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	o := make(map[string]string, len(result))
	for key, value := range result {
		switch v := value.(type) {
		case []interface{}:
			o[key] = fmt.Sprint(len(v))
		case map[string]interface{}:
		case nil:
			o[key] = ""
		default:
			o[key] = fmt.Sprint(v)
		}
	}
	return o, nil
}

func write(w io.Writer, o map[string]string) error {
	keys := make([]string, 0, len(o))
	for key := range o {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, err := fmt.Fprintf(w, "%s=%s\n", key, o[key]); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	if len(os.Args) < 2 {
		os.Exit(1)
	}

	var args []string
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}

	cmd := exec.Command(os.Args[1], args...)
	cmd.Stdin = os.Stdin
	cmd.Stderr = os.Stderr

	output, err := cmd.Output()
	if err != nil {
		os.Exit(1)
	}
	_, _ = os.Stdout.Write(output)

	o, err := outputs(output)
	if err != nil {
		return
	}

	if githubOutput := os.Getenv("GITHUB_OUTPUT"); githubOutput != "" {
		f, err := os.OpenFile(githubOutput, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			os.Exit(1)
		}
		defer f.Close()

		if err := write(f, o); err != nil {
			os.Exit(1)
		}
	}
}
