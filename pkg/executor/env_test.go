package executor

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithSanitizedEnv_StripsManagerVarsDuringCall(t *testing.T) {
	t.Setenv("RUBY_VERSION", "3.2.0")
	t.Setenv("GEM_PATH", "/home/ci/.gem")
	t.Setenv("BUNDLE_PATH", "/home/ci/bundle")
	t.Setenv("RAILS_ENV", "test")
	t.Setenv("UNRELATED_VAR", "keep-me")

	var sawRubyVersion, sawGemPath, sawBundlePath, sawRailsEnv, sawUnrelated bool
	err := WithSanitizedEnv(func() error {
		_, sawRubyVersion = os.LookupEnv("RUBY_VERSION")
		_, sawGemPath = os.LookupEnv("GEM_PATH")
		_, sawBundlePath = os.LookupEnv("BUNDLE_PATH")
		_, sawRailsEnv = os.LookupEnv("RAILS_ENV")
		_, sawUnrelated = os.LookupEnv("UNRELATED_VAR")
		return nil
	})
	require.NoError(t, err)

	assert.False(t, sawRubyVersion)
	assert.False(t, sawGemPath)
	assert.False(t, sawBundlePath)
	assert.False(t, sawRailsEnv)
	assert.True(t, sawUnrelated)
}

func TestWithSanitizedEnv_RestoresExactEnvironmentAfterCall(t *testing.T) {
	t.Setenv("RUBY_VERSION", "3.2.0")
	t.Setenv("UNRELATED_VAR", "keep-me")

	before := os.Environ()

	err := WithSanitizedEnv(func() error {
		os.Setenv("INJECTED_BY_TASK", "should-not-survive")
		return nil
	})
	require.NoError(t, err)

	after := os.Environ()
	assert.ElementsMatch(t, before, after)

	_, ok := os.LookupEnv("INJECTED_BY_TASK")
	assert.False(t, ok)

	v, ok := os.LookupEnv("RUBY_VERSION")
	assert.True(t, ok)
	assert.Equal(t, "3.2.0", v)
}

func TestWithSanitizedEnv_RestoresEnvironmentEvenWhenFnErrors(t *testing.T) {
	t.Setenv("UNRELATED_VAR", "keep-me")
	before := os.Environ()

	boom := errors.New("boom")
	err := WithSanitizedEnv(func() error {
		os.Setenv("INJECTED_BY_TASK", "x")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	after := os.Environ()
	assert.ElementsMatch(t, before, after)
}

func TestStripRbenvFromPath_RemovesVersionEntriesOnly(t *testing.T) {
	t.Setenv("RBENV_ROOT", "/home/ci/.rbenv")
	t.Setenv("PATH", "/home/ci/.rbenv/versions/3.2.0/bin:/usr/local/bin:/usr/bin")

	stripRbenvFromPath()

	assert.Equal(t, "/usr/local/bin:/usr/bin", os.Getenv("PATH"))
}

func TestStripRbenvFromPath_NoopWithoutRbenvRoot(t *testing.T) {
	os.Unsetenv("RBENV_ROOT")
	t.Setenv("PATH", "/usr/local/bin:/usr/bin")

	stripRbenvFromPath()

	assert.Equal(t, "/usr/local/bin:/usr/bin", os.Getenv("PATH"))
}
