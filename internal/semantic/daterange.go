package semantic

import (
	"regexp"
	"time"

	naturaldate "github.com/tj/go-naturaldate"

	"github.com/oxy-hq/oxy/internal/oxyerr"
)

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// resolveDate normalizes a single date expression per spec §4.8.2 step 1:
// an ISO date (YYYY-MM-DD) passes through unchanged; a relative English
// expression ("7 days ago", "next monday") parses against now with
// US-English locale into an absolute YYYY-MM-DD; anything else is a
// ValidationError.
func resolveDate(expr string, now time.Time) (string, error) {
	if isoDate.MatchString(expr) {
		return expr, nil
	}
	t, err := naturaldate.Parse(expr, now, naturaldate.WithDirection(naturaldate.Past))
	if err != nil {
		return "", &oxyerr.ValidationError{Message: "invalid date expression: " + expr}
	}
	return t.Format("2006-01-02"), nil
}

// resolveDateRange normalizes both ends of a [start, end] pair. An empty
// string is left empty (an unset range bound).
func resolveDateRange(rng [2]string, now time.Time) ([2]string, error) {
	var out [2]string
	for i, v := range rng {
		if v == "" {
			continue
		}
		resolved, err := resolveDate(v, now)
		if err != nil {
			return [2]string{}, err
		}
		out[i] = resolved
	}
	return out, nil
}
