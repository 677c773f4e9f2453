package subject

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ProjectDir returns PROJECTS/<name>.
func (s *Subject) ProjectDir(name string) string {
	return filepath.Join(s.ProjectsDir(), name)
}

// ProjectMetaPath returns PROJECTS/<name>/<name>_META.json.
func (s *Subject) ProjectMetaPath(name string) string {
	return filepath.Join(s.ProjectDir(name), name+"_META.json")
}

// ProjectMeta reads a project's metadata document. A project without one
// yet gets an empty map, not an error.
func (s *Subject) ProjectMeta(name string) (map[string]any, error) {
	data, err := os.ReadFile(s.ProjectMetaPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read project meta: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.ProjectMetaPath(name), err)
	}
	return m, nil
}

// UpdateProjectMeta merges patch into the project's metadata document,
// creating the project directory on first write.
func (s *Subject) UpdateProjectMeta(name string, patch map[string]any) error {
	if _, err := s.Ensure(s.ProjectDir(name)); err != nil {
		return err
	}
	m, err := s.ProjectMeta(name)
	if err != nil {
		return err
	}
	for k, v := range patch {
		m[k] = v
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode project meta: %w", err)
	}
	if err := os.WriteFile(s.ProjectMetaPath(name), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write project meta: %w", err)
	}
	s.Log().Info("updated project meta", "project", name, "keys", len(patch))
	return nil
}

// Projects lists the project names with a working area under PROJECTS.
func (s *Subject) Projects() ([]string, error) {
	entries, err := os.ReadDir(s.ProjectsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read projects dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
