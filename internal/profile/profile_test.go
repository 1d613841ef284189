package profile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pavelanni/interviewer/internal/model"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "resumes", "alice.json"), `{
		"skills": ["Go", "go", " Kubernetes "],
		"experience": [{"title": "Backend Engineer", "company": "Acme"}]
	}`)
	writeFile(t, filepath.Join(dir, "resumes", "bad.json"), `{
		"skills": ["Go"],
		"experience": [{"company": "Acme"}]
	}`)
	writeFile(t, filepath.Join(dir, "resumes", "broken.json"), `{not json`)
	writeFile(t, filepath.Join(dir, "jobs", "sre.json"), `{
		"title": "SRE",
		"required_skills": ["Kubernetes", "Terraform"],
		"preferred_skills": ["Go"],
		"responsibilities": ["Run production"]
	}`)
	writeFile(t, filepath.Join(dir, "jobs", "untitled.json"), `{"required_skills": ["Go"]}`)

	src := NewDirSource(dir)
	ctx := context.Background()

	r, err := src.Resume(ctx, "alice")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if r.ID != "alice" {
		t.Errorf("ID = %q, want alice", r.ID)
	}
	if !reflect.DeepEqual(r.Skills, []string{"go", "kubernetes"}) {
		t.Errorf("Skills = %v", r.Skills)
	}

	j, err := src.Job(ctx, "sre")
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if !reflect.DeepEqual(j.RequiredSkills, []string{"kubernetes", "terraform"}) {
		t.Errorf("RequiredSkills = %v", j.RequiredSkills)
	}

	errTests := []struct {
		name     string
		load     func() error
		notFound bool
	}{
		{"missing resume", func() error { _, err := src.Resume(ctx, "nobody"); return err }, true},
		{"missing job", func() error { _, err := src.Job(ctx, "nothing"); return err }, true},
		{"experience without title", func() error { _, err := src.Resume(ctx, "bad"); return err }, false},
		{"invalid json", func() error { _, err := src.Resume(ctx, "broken"); return err }, false},
		{"job without title", func() error { _, err := src.Job(ctx, "untitled"); return err }, false},
		{"path traversal", func() error { _, err := src.Resume(ctx, "../jobs/sre"); return err }, false},
		{"empty id", func() error { _, err := src.Job(ctx, ""); return err }, false},
	}
	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.load()
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrNotFound); got != tt.notFound {
				t.Errorf("errors.Is(ErrNotFound) = %v, want %v (err: %v)", got, tt.notFound, err)
			}
		})
	}
}

func TestMemorySource(t *testing.T) {
	src := NewMemorySource()
	src.AddResume(model.ResumeView{ID: "r1", Skills: []string{"Python", "python"}})
	src.AddJob(model.JobView{ID: "j1", Title: "Data Engineer", RequiredSkills: []string{"SQL"}})
	ctx := context.Background()

	r, err := src.Resume(ctx, "r1")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !reflect.DeepEqual(r.Skills, []string{"python"}) {
		t.Errorf("Skills = %v", r.Skills)
	}
	r.Skills[0] = "mutated"
	again, _ := src.Resume(ctx, "r1")
	if again.Skills[0] != "python" {
		t.Error("Resume returned shared slice")
	}

	j, err := src.Job(ctx, "j1")
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if !reflect.DeepEqual(j.RequiredSkills, []string{"sql"}) {
		t.Errorf("RequiredSkills = %v", j.RequiredSkills)
	}

	if _, err := src.Job(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
