package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
projects:
  - name: storefront
    source_url: git@github.com:acme/storefront.git
    before_all_code: script/setup_ci
    buckets:
      - name: rspec:models
        group: rspec
        runtime: ruby-3.2
        before_bucket:
          - name: bundle
            command: bundle
            args: ["install"]
        bucket:
          - name: rspec
            command: bundle
            args: ["exec", "rspec", "spec/models"]
      - name: rspec:controllers
        group: rspec
        bucket:
          - name: rspec
            command: bundle
            args: ["exec", "rspec", "spec/controllers"]
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "projects.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadProjectSet(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)

	set, err := LoadProjectSet(path)
	require.NoError(t, err)

	project, ok := set.Get("storefront")
	require.True(t, ok)

	assert.Equal(t, "git@github.com:acme/storefront.git", project.SourceURL)
	assert.ElementsMatch(t, []string{"rspec:models", "rspec:controllers"}, project.BucketNames)
	assert.Equal(t, "rspec", project.BucketGroups["rspec:models"])
	assert.Equal(t, "ruby-3.2", project.RuntimeVersions["rspec:models"])

	modelsLists := project.TaskLists["rspec:models"]
	require.Len(t, modelsLists.BeforeBucketTasks, 1)
	require.Len(t, modelsLists.BucketTasks, 1)
	assert.Equal(t, "bundle", modelsLists.BucketTasks[0].Command)
	assert.Equal(t, []string{"exec", "rspec", "spec/models"}, modelsLists.BucketTasks[0].Args)
}

func TestLoadProjectSet_MissingName(t *testing.T) {
	path := writeTempConfig(t, `
projects:
  - source_url: git@github.com:acme/storefront.git
    buckets:
      - name: rspec
`)

	_, err := LoadProjectSet(path)
	assert.Error(t, err)
}

func TestLoadProjectSet_NoBuckets(t *testing.T) {
	path := writeTempConfig(t, `
projects:
  - name: storefront
`)

	_, err := LoadProjectSet(path)
	assert.Error(t, err)
}

func TestProjectSet_Names(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)

	set, err := LoadProjectSet(path)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"storefront"}, set.Names())
}

func TestProjectSet_GetMissing(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)

	set, err := LoadProjectSet(path)
	require.NoError(t, err)

	_, ok := set.Get("does-not-exist")
	assert.False(t, ok)
}
