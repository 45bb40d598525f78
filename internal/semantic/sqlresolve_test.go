package semantic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestResolveSQLParsesTemplateAndParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sql":{"status":"ok","sql":["SELECT * FROM t WHERE id = $1", [42]]}}`))
	}))
	defer srv.Close()

	client := NewSQLClient(nil, srv.URL)
	template, params, err := client.ResolveSQL(context.Background(), cubeQuery{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE id = $1", template)
	require.Len(t, params, 1)
	assert.Equal(t, "42", string(params[0]))
}

func TestResolveSQLFailsOnNonOkStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sql":{"status":"error","sql":["", []]}}`))
	}))
	defer srv.Close()

	client := NewSQLClient(nil, srv.URL)
	_, _, err := client.ResolveSQL(context.Background(), cubeQuery{})
	require.Error(t, err)
}

func TestSubstituteSQLParametersHandlesDollarAndQuestionMarks(t *testing.T) {
	template := "SELECT * FROM t WHERE a = $1 AND b = ? AND c = $2"
	params := []json.RawMessage{rawJSON(t, "hello"), rawJSON(t, 3.5), rawJSON(t, true)}
	got, err := substituteSQLParameters(template, params)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a = 'hello' AND b = TRUE AND c = 3.5", got)
}

func TestSubstituteSQLParametersRejectsOutOfRangeDollarToken(t *testing.T) {
	_, err := substituteSQLParameters("SELECT $5", []json.RawMessage{rawJSON(t, 1)})
	require.Error(t, err)
}

func TestJSONValueToSQLLiteralBooleanStringWorkaround(t *testing.T) {
	lit, err := jsonValueToSQLLiteral(rawJSON(t, "true"))
	require.NoError(t, err)
	assert.Equal(t, "TRUE", lit)

	lit, err = jsonValueToSQLLiteral(rawJSON(t, "false"))
	require.NoError(t, err)
	assert.Equal(t, "FALSE", lit)
}

func TestJSONValueToSQLLiteralEscapesQuotes(t *testing.T) {
	lit, err := jsonValueToSQLLiteral(rawJSON(t, "O'Brien"))
	require.NoError(t, err)
	assert.Equal(t, "'O''Brien'", lit)
}

func TestJSONValueToSQLLiteralNull(t *testing.T) {
	lit, err := jsonValueToSQLLiteral(rawJSON(t, nil))
	require.NoError(t, err)
	assert.Equal(t, "NULL", lit)
}

func TestJSONValueToSQLLiteralArrayBecomesArrayConstructor(t *testing.T) {
	lit, err := jsonValueToSQLLiteral(rawJSON(t, []interface{}{1.0, "a", true}))
	require.NoError(t, err)
	assert.Equal(t, "ARRAY[1, 'a', TRUE]", lit)
}

func TestJSONValueToSQLLiteralNestedArray(t *testing.T) {
	lit, err := jsonValueToSQLLiteral(rawJSON(t, []interface{}{[]interface{}{1.0, 2.0}, 3.0}))
	require.NoError(t, err)
	assert.Equal(t, "ARRAY[ARRAY[1, 2], 3]", lit)
}

func TestJSONValueToSQLLiteralObjectBecomesEscapedJSONString(t *testing.T) {
	lit, err := jsonValueToSQLLiteral(rawJSON(t, map[string]interface{}{"a": "o'brien"}))
	require.NoError(t, err)
	assert.Equal(t, `'{"a":"o''brien"}'`, lit)
}
