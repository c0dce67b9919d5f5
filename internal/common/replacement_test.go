package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

// createTestLogger creates a logger for testing
func createTestLogger() arbor.ILogger {
	return arbor.NewLogger()
}

func createTestVars() map[string]string {
	return map[string]string{
		"base_url":       "http://localhost:8080",
		"admin_user":     "admin",
		"admin_password": "admin123",
		"new-password":   "N3wPass!",
	}
}

func TestReplaceKeyReferences_Simple(t *testing.T) {
	result := ReplaceKeyReferences("{base_url}/index.php", createTestVars(), createTestLogger())
	assert.Equal(t, "http://localhost:8080/index.php", result)
}

func TestReplaceKeyReferences_Multiple(t *testing.T) {
	result := ReplaceKeyReferences("{admin_user}:{admin_password}", createTestVars(), createTestLogger())
	assert.Equal(t, "admin:admin123", result)
}

func TestReplaceKeyReferences_MissingKeyLeftUnchanged(t *testing.T) {
	result := ReplaceKeyReferences("user={missing} pass={admin_password}", createTestVars(), createTestLogger())
	assert.Equal(t, "user={missing} pass=admin123", result)
}

func TestReplaceKeyReferences_IgnoresScriptBraces(t *testing.T) {
	script := "() => { return document.getElementById('userStatus') !== null }"
	assert.Equal(t, script, ReplaceKeyReferences(script, createTestVars(), createTestLogger()))
}

func TestUnresolvedReferences(t *testing.T) {
	assert.Equal(t, []string{"missing", "other"}, UnresolvedReferences("{missing} {admin_user} {other}", createTestVars()))
	assert.Empty(t, UnresolvedReferences("plain text", createTestVars()))
}

type replaceAction struct {
	Selector string
	Value    string
}

type replaceStep struct {
	Name    string
	Actions []replaceAction
	JSON    map[string]string
	Tags    []string
	Nested  *replaceAction
	Count   int
}

type replaceScenario struct {
	BaseURL string
	Steps   []replaceStep
	hidden  string
}

func TestReplaceInStruct_NestedSlicesMapsAndPointers(t *testing.T) {
	s := &replaceScenario{
		BaseURL: "{base_url}",
		Steps: []replaceStep{{
			Name: "login as {admin_user}",
			Actions: []replaceAction{
				{Selector: "#loginUsername", Value: "{admin_user}"},
				{Selector: "#loginPassword", Value: "{admin_password}"},
			},
			JSON:   map[string]string{"user.username": "{admin_user}"},
			Tags:   []string{"{new-password}"},
			Nested: &replaceAction{Value: "{admin_password}"},
			Count:  3,
		}},
		hidden: "{admin_user}",
	}

	require.NoError(t, ReplaceInStruct(s, createTestVars(), createTestLogger()))

	assert.Equal(t, "http://localhost:8080", s.BaseURL)
	step := s.Steps[0]
	assert.Equal(t, "login as admin", step.Name)
	assert.Equal(t, "admin", step.Actions[0].Value)
	assert.Equal(t, "admin123", step.Actions[1].Value)
	assert.Equal(t, "admin", step.JSON["user.username"])
	assert.Equal(t, []string{"N3wPass!"}, step.Tags)
	assert.Equal(t, "admin123", step.Nested.Value)
	assert.Equal(t, "{admin_user}", s.hidden)
}

func TestReplaceInStruct_RequiresStructPointer(t *testing.T) {
	assert.Error(t, ReplaceInStruct(replaceScenario{}, createTestVars(), createTestLogger()))
	name := "x"
	assert.Error(t, ReplaceInStruct(&name, createTestVars(), createTestLogger()))
}
