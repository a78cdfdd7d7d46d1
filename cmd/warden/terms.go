package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"tangled.org/studyhub.social/warden/internal/filter"
)

// loadTerms reads an operator seed file: one term per line, blank lines and
// lines starting with # ignored. Terms are normalized and deduplicated in
// file order.
func loadTerms(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open terms file: %w", err)
	}
	defer f.Close()

	var terms []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		term := filter.NormalizeTerm(line)
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read terms file: %w", err)
	}
	return terms, nil
}
