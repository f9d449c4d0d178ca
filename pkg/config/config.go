// Package config loads project and task-list definitions from YAML files
// into the flat types.Project records the scheduler operates on.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/dcc/pkg/types"
)

// ProjectFile is the on-disk YAML shape for one project. It is translated
// into a types.Project rather than used directly, so the wire/storage
// record never depends on YAML tags.
type ProjectFile struct {
	Name      string `yaml:"name"`
	SourceURL string `yaml:"source_url"`

	Buckets []BucketFile `yaml:"buckets"`

	BeforeAllCode       string `yaml:"before_all_code"`
	BeforeEachGroupCode string `yaml:"before_each_group_code"`
}

// BucketFile is one bucket's task lists plus its group and runtime tag.
type BucketFile struct {
	Name    string `yaml:"name"`
	Group   string `yaml:"group,omitempty"`
	Runtime string `yaml:"runtime,omitempty"`

	BeforeAll    []TaskFile `yaml:"before_all"`
	BeforeBucket []TaskFile `yaml:"before_bucket"`
	Bucket       []TaskFile `yaml:"bucket"`
	AfterBucket  []TaskFile `yaml:"after_bucket"`
}

// TaskFile is one command invocation within a task list.
type TaskFile struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
}

// ProjectSet is a parsed, named collection of projects, keyed by name for
// fast lookup during bucket assignment.
type ProjectSet struct {
	byName map[string]*types.Project
}

// LoadProjectSet reads a YAML file containing one or more project
// definitions and returns the parsed ProjectSet.
func LoadProjectSet(path string) (*ProjectSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project config %s: %w", path, err)
	}

	var doc struct {
		Projects []ProjectFile `yaml:"projects"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse project config %s: %w", path, err)
	}

	set := &ProjectSet{byName: make(map[string]*types.Project, len(doc.Projects))}
	for _, pf := range doc.Projects {
		project, err := toProject(pf)
		if err != nil {
			return nil, fmt.Errorf("project %q: %w", pf.Name, err)
		}
		set.byName[project.Name] = project
	}

	return set, nil
}

// Get returns the named project, or false if the config has no such project.
func (s *ProjectSet) Get(name string) (*types.Project, bool) {
	p, ok := s.byName[name]
	return p, ok
}

// Names returns every project name in the set.
func (s *ProjectSet) Names() []string {
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	return names
}

func toProject(pf ProjectFile) (*types.Project, error) {
	if pf.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if len(pf.Buckets) == 0 {
		return nil, fmt.Errorf("at least one bucket is required")
	}

	project := &types.Project{
		Name:                pf.Name,
		SourceURL:           pf.SourceURL,
		BeforeAllCode:       pf.BeforeAllCode,
		BeforeEachGroupCode: pf.BeforeEachGroupCode,
		BucketGroups:        make(map[string]string),
		RuntimeVersions:     make(map[string]string),
		TaskLists:           make(map[string]types.ProjectTaskLists),
		NextBuildNumber:     1,
	}

	for _, b := range pf.Buckets {
		if b.Name == "" {
			return nil, fmt.Errorf("bucket name is required")
		}
		project.BucketNames = append(project.BucketNames, b.Name)
		if b.Group != "" {
			project.BucketGroups[b.Name] = b.Group
		}
		if b.Runtime != "" {
			project.RuntimeVersions[b.Name] = b.Runtime
		}
		project.TaskLists[b.Name] = types.ProjectTaskLists{
			BeforeAllTasks:    toTasks(b.BeforeAll),
			BeforeBucketTasks: toTasks(b.BeforeBucket),
			BucketTasks:       toTasks(b.Bucket),
			AfterBucketTasks:  toTasks(b.AfterBucket),
		}
	}

	return project, nil
}

func toTasks(files []TaskFile) []types.Task {
	if len(files) == 0 {
		return nil
	}
	tasks := make([]types.Task, len(files))
	for i, f := range files {
		tasks[i] = types.Task{Name: f.Name, Command: f.Command, Args: f.Args}
	}
	return tasks
}
