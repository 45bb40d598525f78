package semantic

import (
	"os"
	"strings"
)

// VariableScope layers the three declared-variable sources consulted
// ahead of the environment, per spec §4.8.2 step 8's precedence rule:
// task > agent > project.
type VariableScope struct {
	Task    map[string]string
	Agent   map[string]string
	Project map[string]string
}

// resolveVariable looks up name across Task, Agent, Project, then the
// OXY_VAR_<NAME> environment variable, returning the first hit.
func (s VariableScope) resolveVariable(name string) (string, bool) {
	for _, m := range []map[string]string{s.Task, s.Agent, s.Project} {
		if v, ok := m[name]; ok {
			return v, true
		}
	}
	if v, ok := os.LookupEnv("OXY_VAR_" + strings.ToUpper(name)); ok {
		return v, true
	}
	return "", false
}

// substituteVariables replaces every "${var_name}" token in sql with its
// resolved value. An unresolved reference is left untouched — the query
// has already passed validation by this point, so an unresolved variable
// most likely names a literal template string the user intended as-is.
func substituteVariables(sql string, scope VariableScope) string {
	var out strings.Builder
	i := 0
	for i < len(sql) {
		start := strings.Index(sql[i:], "${")
		if start < 0 {
			out.WriteString(sql[i:])
			break
		}
		start += i
		end := strings.Index(sql[start:], "}")
		if end < 0 {
			out.WriteString(sql[i:])
			break
		}
		end += start
		name := sql[start+2 : end]
		out.WriteString(sql[i:start])
		if v, ok := scope.resolveVariable(name); ok {
			out.WriteString(v)
		} else {
			out.WriteString(sql[start : end+1])
		}
		i = end + 1
	}
	return out.String()
}
