package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaviermatuz/formdesk/internal/config"
)

// --- Settings ---

func TestLoadSettings_FromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `api:
  base_url: https://forms.example.com/api/v1
definitions:
  - /etc/formdesk/definitions
log_level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	s, err := loadSettings(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://forms.example.com/api/v1", s.API.BaseURL)
	assert.Equal(t, []string{"/etc/formdesk/definitions"}, s.Definitions)
	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, config.DriverSQLite, s.Session.Driver)
	assert.Equal(t, filepath.Join(dir, "session.db"), s.Session.Path)
	assert.Equal(t, config.Defaults().API.Timeout, s.API.Timeout)
}

func TestLoadSettings_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FORMDESK_API_BASE_URL", "http://localhost:8000/api/v1")
	t.Setenv("FORMDESK_SESSION_PATH", filepath.Join(dir, "other.db"))

	s, err := loadSettings(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/api/v1", s.API.BaseURL)
	assert.Equal(t, filepath.Join(dir, "other.db"), s.Session.Path)
	assert.Equal(t, []string{"definitions"}, s.Definitions)
	assert.Equal(t, "warn", s.LogLevel)
}

func TestLoadSettings_MissingBaseURL(t *testing.T) {
	_, err := loadSettings(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.base_url is not set")
}

func TestLoadSettings_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("api: [unclosed"), 0o600))

	_, err := loadSettings(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

// --- List flags ---

func TestListOptionsChange(t *testing.T) {
	o := listOptions{
		page:     3,
		pageSize: 20,
		search:   "intake",
		filters:  []string{"state=deleted", "versions=all"},
	}
	change, err := o.change()
	require.NoError(t, err)

	require.NotNil(t, change.Page)
	assert.Equal(t, 3, *change.Page)
	require.NotNil(t, change.PageSize)
	assert.Equal(t, 20, *change.PageSize)
	require.NotNil(t, change.Search)
	assert.Equal(t, "intake", *change.Search)
	assert.True(t, change.FlushSearch)
	assert.Equal(t, map[string]string{"state": "deleted", "versions": "all"}, change.Filters)
}

func TestListOptionsChange_Empty(t *testing.T) {
	change, err := (&listOptions{}).change()
	require.NoError(t, err)
	assert.Nil(t, change.Page)
	assert.Nil(t, change.PageSize)
	assert.Nil(t, change.Search)
	assert.Nil(t, change.Filters)
	assert.False(t, change.FlushSearch)
}

func TestListOptionsChange_InvalidFilter(t *testing.T) {
	for _, f := range []string{"state", "=deleted"} {
		_, err := (&listOptions{filters: []string{f}}).change()
		assert.Error(t, err, f)
	}
}

func TestRequestContext_NotLoggedIn(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FORMDESK_API_BASE_URL", "http://localhost:8000/api/v1")
	t.Setenv("FORMDESK_DEFINITIONS", "../../definitions")
	configDir = dir
	t.Cleanup(func() { _ = closeClient() })

	require.NoError(t, initClient(rootCmd, nil))
	_, err := app.requestContext(t.Context())
	require.Error(t, err)
	assert.Equal(t, "not logged in: run formdesk login", err.Error())
}

// --- Form values ---

func TestFormOptionsValues(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "values.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"name":"Intake","fields":[{"label":"Email"}]}`), 0o600))

	o := formOptions{
		file: file,
		set:  []string{"name=Intake v2", "is_active=false", "username=1234", "note=a=b"},
	}
	values, err := o.values()
	require.NoError(t, err)
	assert.Equal(t, "Intake v2", values["name"])
	assert.Equal(t, false, values["is_active"])
	assert.Equal(t, "1234", values["username"], "numbers stay text")
	assert.Equal(t, "a=b", values["note"])
	assert.Equal(t, []any{map[string]any{"label": "Email"}}, values["fields"])
}

func TestFormOptionsValues_Invalid(t *testing.T) {
	_, err := (&formOptions{}).values()
	assert.ErrorContains(t, err, "no values given")

	_, err = (&formOptions{set: []string{"=x"}}).values()
	assert.ErrorContains(t, err, "invalid --set")

	_, err = (&formOptions{file: filepath.Join(t.TempDir(), "missing.json")}).values()
	assert.ErrorContains(t, err, "read values")
}
