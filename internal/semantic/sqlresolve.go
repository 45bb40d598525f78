package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/oxy-hq/oxy/internal/oxyerr"
)

// cubeSQLResponse is the shape returned by the cube server's /sql
// endpoint, per spec §4.8.2 step 6.
type cubeSQLResponse struct {
	SQL struct {
		Status string        `json:"status"`
		SQL    [2]json.RawMessage `json:"sql"`
	} `json:"sql"`
}

// SQLClient resolves a cube query into a parameterized SQL template plus
// its positional parameters.
type SQLClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewSQLClient builds a SQLClient targeting the given cube server base URL.
func NewSQLClient(httpClient *http.Client, baseURL string) *SQLClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SQLClient{httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

// ResolveSQL posts q to the cube server's /sql endpoint and returns the
// raw SQL template and its JSON-encoded positional parameters.
func (c *SQLClient) ResolveSQL(ctx context.Context, q cubeQuery) (string, []json.RawMessage, error) {
	body, err := json.Marshal(map[string]any{"query": q})
	if err != nil {
		return "", nil, fmt.Errorf("encoding cube query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sql", bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("building cube sql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, &oxyerr.CubeError{Message: err.Error()}
	}
	defer resp.Body.Close()

	var parsed cubeSQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", nil, &oxyerr.CubeError{Message: "malformed cube sql response: " + err.Error()}
	}
	if resp.StatusCode != http.StatusOK || parsed.SQL.Status != "ok" {
		return "", nil, &oxyerr.CubeError{Message: fmt.Sprintf("cube sql resolution failed: status=%d sql.status=%q", resp.StatusCode, parsed.SQL.Status)}
	}

	var template string
	if err := json.Unmarshal(parsed.SQL.SQL[0], &template); err != nil {
		return "", nil, &oxyerr.CubeError{Message: "cube sql response missing template: " + err.Error()}
	}
	var params []json.RawMessage
	if err := json.Unmarshal(parsed.SQL.SQL[1], &params); err != nil {
		return "", nil, &oxyerr.CubeError{Message: "cube sql response missing params: " + err.Error()}
	}
	return template, params, nil
}

var dollarParam = regexp.MustCompile(`\$(\d+)`)

// substituteSQLParameters fills a cube SQL template's positional
// placeholders with literal values, per spec §4.8.2 step 7.
//
// Placeholders come in two shapes: "$N" referencing params[N-1] by exact
// index, and bare "?" consumed left-to-right from whatever params remain
// after every "$N" has claimed its slot. Per the strict-correctness
// decision recorded in DESIGN.md, any "$k" token whose k falls outside
// 1..len(params) is rejected rather than silently left untouched or
// treated as literal text.
func substituteSQLParameters(template string, params []json.RawMessage) (string, error) {
	n := len(params)

	var rangeErr error
	withDollars := dollarParam.ReplaceAllStringFunc(template, func(tok string) string {
		if rangeErr != nil {
			return tok
		}
		idx, _ := strconv.Atoi(tok[1:])
		if idx < 1 || idx > n {
			rangeErr = &oxyerr.ValidationError{Message: fmt.Sprintf("parameter token %q is out of range for %d bound parameters", tok, n)}
			return tok
		}
		lit, err := jsonValueToSQLLiteral(params[idx-1])
		if err != nil {
			rangeErr = err
			return tok
		}
		return lit
	})
	if rangeErr != nil {
		return "", rangeErr
	}

	used := make([]bool, n)
	if err := markDollarUsage(template, used); err != nil {
		return "", err
	}

	var out strings.Builder
	next := 0
	for i := 0; i < len(withDollars); i++ {
		ch := withDollars[i]
		if ch != '?' {
			out.WriteByte(ch)
			continue
		}
		for next < n && used[next] {
			next++
		}
		if next >= n {
			return "", &oxyerr.ValidationError{Message: "not enough bound parameters for '?' placeholders"}
		}
		lit, err := jsonValueToSQLLiteral(params[next])
		if err != nil {
			return "", err
		}
		out.WriteString(lit)
		used[next] = true
		next++
	}
	return out.String(), nil
}

func markDollarUsage(template string, used []bool) error {
	for _, m := range dollarParam.FindAllStringSubmatch(template, -1) {
		idx, _ := strconv.Atoi(m[1])
		if idx-1 >= 0 && idx-1 < len(used) {
			used[idx-1] = true
		}
	}
	return nil
}

// jsonValueToSQLLiteral converts one bound parameter (as decoded JSON)
// into its SQL literal text. Strings are quoted and single-quote-escaped;
// numbers and real JSON booleans pass through unquoted; null becomes NULL;
// an array becomes an ARRAY[...] constructor of its own converted
// elements; an object becomes an escaped JSON string literal, per spec
// §4.8.2 step 7. The string literals "true"/"false" are special-cased to
// unquoted booleans — a workaround for cube servers that encode boolean
// params as quoted strings rather than JSON booleans.
func jsonValueToSQLLiteral(raw json.RawMessage) (string, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("decoding bound parameter: %w", err)
	}
	switch val := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if val {
			return "TRUE", nil
		}
		return "FALSE", nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case string:
		if val == "true" {
			return "TRUE", nil
		}
		if val == "false" {
			return "FALSE", nil
		}
		return "'" + strings.ReplaceAll(val, "'", "''") + "'", nil
	case []interface{}:
		parts := make([]string, len(val))
		for i, elem := range val {
			encoded, err := json.Marshal(elem)
			if err != nil {
				return "", fmt.Errorf("encoding array element: %w", err)
			}
			lit, err := jsonValueToSQLLiteral(encoded)
			if err != nil {
				return "", err
			}
			parts[i] = lit
		}
		return "ARRAY[" + strings.Join(parts, ", ") + "]", nil
	case map[string]interface{}:
		encoded, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("encoding object parameter: %w", err)
		}
		return "'" + strings.ReplaceAll(string(encoded), "'", "''") + "'", nil
	default:
		return "", fmt.Errorf("unsupported bound parameter type %T", v)
	}
}
