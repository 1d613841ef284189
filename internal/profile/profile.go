// Package profile loads the read-only resume and job views an interview is
// built from. Sources are looked up by opaque id; the engine never parses
// the underlying documents.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/skills"
)

// ErrNotFound is returned when no resume or job exists under an id.
var ErrNotFound = errors.New("profile not found")

var validate = validator.New()

// DirSource reads <dir>/resumes/<id>.json and <dir>/jobs/<id>.json.
type DirSource struct {
	dir string
}

// NewDirSource creates a source rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func (d *DirSource) Resume(_ context.Context, id string) (*model.ResumeView, error) {
	path, err := d.path("resumes", id)
	if err != nil {
		return nil, err
	}
	r, err := LoadResume(path)
	if err != nil {
		return nil, err
	}
	if r.ID == "" {
		r.ID = id
	}
	return r, nil
}

func (d *DirSource) Job(_ context.Context, id string) (*model.JobView, error) {
	path, err := d.path("jobs", id)
	if err != nil {
		return nil, err
	}
	j, err := LoadJob(path)
	if err != nil {
		return nil, err
	}
	if j.ID == "" {
		j.ID = id
	}
	return j, nil
}

func (d *DirSource) path(kind, id string) (string, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("invalid %s id %q", strings.TrimSuffix(kind, "s"), id)
	}
	return filepath.Join(d.dir, kind, id+".json"), nil
}

// LoadResume reads and validates a resume JSON file.
func LoadResume(path string) (*model.ResumeView, error) {
	var r model.ResumeView
	if err := readJSON(path, &r); err != nil {
		return nil, err
	}
	if err := validate.Struct(r); err != nil {
		return nil, fmt.Errorf("resume %s: %s", path, validationMessage(err))
	}
	r.Skills = skills.Union(r.Skills)
	return &r, nil
}

// LoadJob reads and validates a job JSON file.
func LoadJob(path string) (*model.JobView, error) {
	var j model.JobView
	if err := readJSON(path, &j); err != nil {
		return nil, err
	}
	if err := validate.Struct(j); err != nil {
		return nil, fmt.Errorf("job %s: %s", path, validationMessage(err))
	}
	j.RequiredSkills = skills.Union(j.RequiredSkills)
	j.PreferredSkills = skills.Union(j.PreferredSkills)
	return &j, nil
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return fmt.Sprintf("validation error: %s - %s", ve[0].Namespace(), ve[0].Tag())
	}
	return err.Error()
}

// MemorySource serves views registered in process, for tests and the
// practice command.
type MemorySource struct {
	mu      sync.RWMutex
	resumes map[string]model.ResumeView
	jobs    map[string]model.JobView
}

// NewMemorySource creates an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		resumes: make(map[string]model.ResumeView),
		jobs:    make(map[string]model.JobView),
	}
}

// AddResume registers r under r.ID.
func (m *MemorySource) AddResume(r model.ResumeView) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Skills = skills.Union(r.Skills)
	m.resumes[r.ID] = r
}

// AddJob registers j under j.ID.
func (m *MemorySource) AddJob(j model.JobView) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j.RequiredSkills = skills.Union(j.RequiredSkills)
	j.PreferredSkills = skills.Union(j.PreferredSkills)
	m.jobs[j.ID] = j
}

func (m *MemorySource) Resume(_ context.Context, id string) (*model.ResumeView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.resumes[id]
	if !ok {
		return nil, fmt.Errorf("resume %s: %w", id, ErrNotFound)
	}
	r.Skills = append([]string(nil), r.Skills...)
	r.Experience = append([]model.Experience(nil), r.Experience...)
	return &r, nil
}

func (m *MemorySource) Job(_ context.Context, id string) (*model.JobView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	j.RequiredSkills = append([]string(nil), j.RequiredSkills...)
	j.PreferredSkills = append([]string(nil), j.PreferredSkills...)
	j.Responsibilities = append([]string(nil), j.Responsibilities...)
	return &j, nil
}
