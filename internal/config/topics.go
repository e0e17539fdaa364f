package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadTopics merges the inline topic list with the newline-delimited topics file.
// Blank lines and lines starting with '#' are ignored; duplicates are dropped
// case-insensitively, keeping the first spelling.
func LoadTopics(cfg TopicsConfig) ([]string, error) {
	topics := append([]string(nil), cfg.List...)

	if cfg.File != "" {
		f, err := os.Open(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("open topics file: %w", err)
		}
		defer f.Close()

		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			topics = append(topics, line)
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read topics file: %w", err)
		}
	}

	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no topics configured")
	}
	return out, nil
}
