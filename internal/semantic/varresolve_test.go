package semantic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstituteVariablesPrefersTaskOverProject(t *testing.T) {
	scope := VariableScope{
		Task:    map[string]string{"region": "eu"},
		Project: map[string]string{"region": "us"},
	}
	got := substituteVariables("WHERE region = '${region}'", scope)
	assert.Equal(t, "WHERE region = 'eu'", got)
}

func TestSubstituteVariablesFallsBackToEnv(t *testing.T) {
	t.Setenv("OXY_VAR_TENANT", "acme")
	got := substituteVariables("tenant = '${tenant}'", VariableScope{})
	assert.Equal(t, "tenant = 'acme'", got)
}

func TestSubstituteVariablesLeavesUnresolvedTokenAlone(t *testing.T) {
	got := substituteVariables("x = '${totally_unknown}'", VariableScope{})
	assert.Equal(t, "x = '${totally_unknown}'", got)
}
