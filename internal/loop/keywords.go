package loop

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed keywords.txt
var defaultKeywords string

// LoadKeywords reads search keys from path, one per line. Blank lines and
// lines starting with # are skipped and duplicates dropped. An empty path
// returns the built-in list.
func LoadKeywords(path string) ([]string, error) {
	if path == "" {
		return parseKeywords(strings.NewReader(defaultKeywords))
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keyword file: %w", err)
	}
	defer file.Close()

	keys, err := parseKeywords(file)
	if err != nil {
		return nil, fmt.Errorf("read keyword file: %w", err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("keyword file %s has no entries", path)
	}
	return keys, nil
}

func parseKeywords(r io.Reader) ([]string, error) {
	var keys []string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if seen[line] {
			continue
		}
		seen[line] = true
		keys = append(keys, line)
	}
	return keys, scanner.Err()
}
