// File: internal/factstore/records.go
package factstore

// Record types mirror the fact tables produced by the external indexing
// pipeline. All of them are plain data carriers; the store never interprets
// their contents beyond column typing.

// CallArg is one argument of one function call site.
type CallArg struct {
	File       string
	Line       int
	Caller     string
	Callee     string
	ArgIndex   int
	ArgExpr    string
	ParamName  string
	CalleeFile string
}

// Assignment is a single assignment statement.
type Assignment struct {
	File       string
	Line       int
	TargetVar  string
	SourceExpr string
	SourceVars string
	InFunction string
}

// VariableAccess is one read or write of a named variable.
type VariableAccess struct {
	File string
	Line int
	Name string
}

// SQLQuery is one extracted SQL query string.
type SQLQuery struct {
	File            string
	Line            int
	Text            string
	IsParameterized bool
}

// EnvAccess is one environment variable usage site.
type EnvAccess struct {
	File string
	Line int
	Key  string
}

// EndpointRecord is one registered HTTP route.
type EndpointRecord struct {
	Method string
	Path   string
	File   string
	Line   int
}

// SafeSink is one framework-level "always safe" sink declaration.
type SafeSink struct {
	Pattern   string
	IsSafe    bool
	Framework string
}

// ValidatorUsage is one call into a validation framework.
// Kind distinguishes field-level from whole-record validation.
type ValidatorUsage struct {
	File      string
	Line      int
	Framework string
	Method    string
	Kind      string
}

// ORMModel is one ORM model registration.
type ORMModel struct {
	Name      string
	Framework string
	Language  string
	Table     string
}

// HTMLHook is one hook or construct that writes raw HTML.
type HTMLHook struct {
	File string
	Line int
	Name string
}

// Symbol is one indexed symbol. Params holds the serialized parameter list
// for function symbols and may be malformed on a per-record basis.
type Symbol struct {
	File   string
	Line   int
	Name   string
	Kind   string
	Params string
}
