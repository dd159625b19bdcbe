// Package specparse turns a markdown specification into a feature
// backlog. It is a pure transformation: second-level headings become
// features, list items beneath them become implementation steps, and
// plain paragraphs become the description.
package specparse

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/drover-dev/drover/internal/errors"
	"github.com/drover-dev/drover/internal/feature"
)

var (
	headingPattern  = regexp.MustCompile(`^##\s+(.+?)\s*$`)
	bulletPattern   = regexp.MustCompile(`^\s*[-*]\s+(.+?)\s*$`)
	numberedPattern = regexp.MustCompile(`^\s*\d+[.)]\s+(.+?)\s*$`)
)

// Parse reads markdown and returns features in declaration order.
func Parse(r io.Reader) ([]feature.Feature, error) {
	var features []feature.Feature
	var current *feature.Feature
	var description []string

	flushDescription := func() {
		if current != nil && len(description) > 0 {
			current.Description = strings.Join(description, "\n")
		}
		description = nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if m := headingPattern.FindStringSubmatch(line); m != nil {
			flushDescription()
			features = append(features, feature.Feature{
				ID:     fmt.Sprintf("feat-%d", len(features)+1),
				Title:  m[1],
				Status: feature.StatusPending,
			})
			current = &features[len(features)-1]
			continue
		}
		if current == nil {
			continue // preamble before the first feature heading
		}

		if m := bulletPattern.FindStringSubmatch(line); m != nil {
			current.Steps = append(current.Steps, m[1])
			continue
		}
		if m := numberedPattern.FindStringSubmatch(line); m != nil {
			current.Steps = append(current.Steps, m[1])
			continue
		}
		if trimmed := strings.TrimSpace(line); trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			description = append(description, trimmed)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan spec: %w", err)
	}
	flushDescription()

	if len(features) == 0 {
		return nil, errors.New(errors.ErrCodeSpecEmpty, "no feature headings found in spec").
			WithSuggestion("Structure the spec with one '## <feature title>' heading per feature")
	}

	return features, nil
}

// ParseFile parses a markdown spec file.
func ParseFile(path string) ([]feature.Feature, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeSpecNotFound, fmt.Sprintf("spec file not found: %s", path))
		}
		return nil, fmt.Errorf("open spec file: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// WriteFeatures writes the parsed backlog as the features document the
// store reads. Parse -> write -> load round-trips losslessly.
func WriteFeatures(features []feature.Feature, path string) error {
	rs := feature.RunState{Features: features}
	data, err := yaml.Marshal(&rs)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write features file: %w", err)
	}
	return nil
}
