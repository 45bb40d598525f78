package semantic

// Granularity is the time-bucketing enum for a TimeDimension, per spec
// §4.8.2 step 5 ("timeDimensions with granularity enum -> string").
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
	GranularityYear  Granularity = "year"
	GranularityNone  Granularity = ""
)

// TimeDimensionInput is one requested time dimension, with its date range
// expressed as template/relative strings before normalization.
type TimeDimensionInput struct {
	Field            string
	Granularity      Granularity
	DateRange        [2]string // e.g. ["7 days ago", "today"], normalized to YYYY-MM-DD by Compile
	CompareDateRange [2]string
}

// FilterInput is one user-supplied filter before resolution.
type FilterInput struct {
	Field    string
	Operator string
	Values   []string
}

// OrderInput is one requested sort key.
type OrderInput struct {
	Field     string
	Direction string // "asc" | "desc"
}

// QueryTask is the declarative input to the compiler, per spec §4.8.1.
// The topic, filter values and date-range bounds may contain template
// expressions, resolved in the Render step before anything else runs.
// Dimension, measure and order names and filter fields and operators are
// not rendered; they are used as written.
type QueryTask struct {
	Topic          string
	Dimensions     []string
	Measures       []string
	Filters        []FilterInput
	Orders         []OrderInput
	TimeDimensions []TimeDimensionInput
	Limit          int // -1 means unset/unbounded; 0 or a negative value other than -1 is invalid
	Offset         int
	Variables      map[string]string
	Export         string
}
