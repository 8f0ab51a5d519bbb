// File: internal/taint/types.go

// Package taint implements the discovery and cross-boundary resolution engine:
// it turns indexed code facts into typed Source, Sink and Sanitizer
// collections and synthesizes client-to-server data-flow edges for the
// downstream propagation engine.
package taint

// Category is the closed set of taint entity categories. Discovery never
// emits a category outside this set.
type Category string

const (
	CategoryHTTPRequest   Category = "http_request"
	CategoryUserInput     Category = "user_input"
	CategoryFrontendInput Category = "frontend_input"
	CategoryParameter     Category = "parameter"
	CategoryEnvironment   Category = "environment"
	CategoryDatabaseRead  Category = "database_read"
	CategorySQL           Category = "sql"
	CategoryORM           Category = "orm"
	CategoryCommand       Category = "command"
	CategoryXSS           Category = "xss"
	CategoryPath          Category = "path"
	CategoryLDAP          Category = "ldap"
	CategoryAPICall       Category = "api_call"
	CategoryValidator     Category = "validator"
	CategoryORMModel      Category = "orm_model"
)

// Vulnerability returns the human-readable vulnerability class a sink
// category corresponds to, or an empty string for non-sink categories.
func (c Category) Vulnerability() string {
	switch c {
	case CategorySQL:
		return "SQL Injection"
	case CategoryORM:
		return "ORM Injection"
	case CategoryCommand:
		return "Command Injection"
	case CategoryXSS:
		return "Cross-Site Scripting"
	case CategoryPath:
		return "Path Traversal"
	case CategoryLDAP:
		return "LDAP Injection"
	case CategoryAPICall:
		return "Cross-Boundary Data Flow"
	default:
		return ""
	}
}

// Risk is the ordered severity scale assigned at discovery time. It is never
// revised downward by later stages.
type Risk int

const (
	RiskLow Risk = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskNames = [...]string{"low", "medium", "high", "critical"}

func (r Risk) String() string {
	if r < RiskLow || r > RiskCritical {
		return "unknown"
	}
	return riskNames[r]
}

// Less reports whether r is strictly below other on the severity scale.
func (r Risk) Less(other Risk) bool { return r < other }

// AtLeast reports whether r meets or exceeds the given floor.
func (r Risk) AtLeast(floor Risk) bool { return r >= floor }

// MarshalText renders the lowercase risk name for JSON output.
func (r Risk) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Source is a program location where externally influenced data enters
// tracked analysis. Pattern carries the exact text the propagation engine
// matches on and is never truncated.
type Source struct {
	Category Category       `json:"category"`
	Name     string         `json:"name"`
	File     string         `json:"file"`
	Line     int            `json:"line"`
	Pattern  string         `json:"pattern"`
	Risk     Risk           `json:"risk"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// Sink is a program location where tainted data, if unsanitized, causes a
// vulnerability.
type Sink struct {
	Category         Category       `json:"category"`
	Name             string         `json:"name"`
	File             string         `json:"file"`
	Line             int            `json:"line"`
	Pattern          string         `json:"pattern"`
	Risk             Risk           `json:"risk"`
	IsParameterized  bool           `json:"is_parameterized"`
	HasInterpolation bool           `json:"has_interpolation"`
	Meta             map[string]any `json:"meta,omitempty"`
}

// Sanitizer is a construct the propagation engine treats as taint-clearing.
type Sanitizer struct {
	Category Category       `json:"category"`
	Name     string         `json:"name"`
	File     string         `json:"file"`
	Line     int            `json:"line"`
	Pattern  string         `json:"pattern"`
	Risk     Risk           `json:"risk"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// Endpoint is a registered server route. Multiple endpoints may share one
// normalized key.
type Endpoint struct {
	Method         string `json:"method"`
	RawPath        string `json:"raw_path"`
	NormalizedPath string `json:"normalized_path"`
	File           string `json:"file"`
	Line           int    `json:"line"`
}

// CrossBoundaryFlow is a synthesized edge connecting a client-side API
// invocation to the server-side handler it targets. BackendSource does not
// exist in the fact store; it is manufactured by the connector with
// provenance pointing back to the originating frontend file.
type CrossBoundaryFlow struct {
	FrontendSink  Sink   `json:"frontend_sink"`
	BackendSource Source `json:"backend_source"`
}

// Results holds the four typed collections produced by one analysis run.
type Results struct {
	Sources    []Source            `json:"sources"`
	Sinks      []Sink              `json:"sinks"`
	Sanitizers []Sanitizer         `json:"sanitizers"`
	Flows      []CrossBoundaryFlow `json:"flows"`
}
