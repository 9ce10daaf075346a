package build

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// DependencyManifest is the declared dependency set consumed by the
// dependency-build stage: a base requirement list plus named optional
// groups (accelerator variants select one of these).
type DependencyManifest struct {
	Name         string
	Requirements []string
	Extras       map[string][]string
}

// pyprojectTOML mirrors the subset of a pyproject-style manifest we read.
type pyprojectTOML struct {
	Project struct {
		Name                 string              `toml:"name"`
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
}

// LoadDependencyManifest parses a dependency manifest. TOML manifests carry
// the full structure; a plain requirements list parses as base requirements
// with no extras.
func LoadDependencyManifest(path string) (*DependencyManifest, error) {
	if strings.HasSuffix(strings.ToLower(path), ".toml") {
		return loadTOMLManifest(path)
	}
	return loadRequirementsManifest(path)
}

// HasExtras reports whether the manifest declares the named optional group.
func (m *DependencyManifest) HasExtras(group string) bool {
	_, ok := m.Extras[group]
	return ok
}

func loadTOMLManifest(path string) (*DependencyManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc pyprojectTOML
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	m := &DependencyManifest{
		Name:         doc.Project.Name,
		Requirements: doc.Project.Dependencies,
		Extras:       doc.Project.OptionalDependencies,
	}
	if m.Extras == nil {
		m.Extras = map[string][]string{}
	}
	return m, nil
}

// loadRequirementsManifest handles the flat requirements.txt format.
func loadRequirementsManifest(path string) (*DependencyManifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m := &DependencyManifest{Extras: map[string][]string{}}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip comments, empty lines, and pip directives
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}

		// Remove inline comments
		if idx := strings.Index(line, " #"); idx >= 0 {
			line = line[:idx]
		}

		// Remove environment markers (e.g. ; python_version >= "3.11")
		if idx := strings.Index(line, ";"); idx >= 0 {
			line = line[:idx]
		}

		if line = strings.TrimSpace(line); line != "" {
			m.Requirements = append(m.Requirements, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return m, nil
}
