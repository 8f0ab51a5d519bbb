// File: internal/taint/bridge.go
package taint

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/faultline-sec/faultline/internal/config"
	"github.com/faultline-sec/faultline/internal/factstore"
)

// routeTarget is a resolved (HTTP method, path) pair.
type routeTarget struct {
	method string
	path   string
}

// maxResolutionDepth bounds the call-chain walk. Chains longer than
// store -> wrapper -> client call are not resolved; deeper chains were never
// validated and stay an explicit limitation.
const maxResolutionDepth = 2

// methodOptionRe extracts an explicit method option from a request config
// argument, e.g. axios({url, method: 'POST'}).
var methodOptionRe = regexp.MustCompile(`method\s*[:=]\s*['"]([A-Za-z]+)['"]`)

// placeholderRe matches template interpolation segments inside a path.
var placeholderRe = regexp.MustCompile(`\$\{[^}]*\}|\{[^}]*\}`)

// connector resolves frontend api_call sinks to backend endpoints through up
// to two levels of call indirection and synthesizes cross-boundary flows.
type connector struct {
	cfg config.DiscoveryConfig

	endpointIndex map[string][]Endpoint

	// Level 1: service-layer wrapper methods that invoke the HTTP client.
	level1Qualified map[string]routeTarget // wrapperObject.method
	level1Bare      map[string]routeTarget // method

	// Level 2: store-layer methods delegating to a wrapper, or calling the
	// HTTP client directly.
	level2Wrapper map[string]string // storeMethod -> qualified level-1 key
	level2Direct  map[string]routeTarget

	log *zap.Logger
}

// ResolveCrossBoundary builds the connector maps from the fact snapshot and
// resolves every frontend api_call sink to the endpoints it targets.
// Unresolved sinks are skipped; no flow is manufactured from a call the
// chain walk cannot ground.
func (e *Engine) ResolveCrossBoundary(ctx context.Context, apiSinks []Sink) ([]CrossBoundaryFlow, error) {
	if len(apiSinks) == 0 {
		return nil, nil
	}

	endpoints, err := e.store.Endpoints(ctx)
	if err != nil {
		return nil, err
	}
	calls, err := e.store.CallArgs(ctx)
	if err != nil {
		return nil, err
	}
	assigns, err := e.store.Assignments(ctx)
	if err != nil {
		return nil, err
	}

	c := &connector{
		cfg:             e.cfg,
		endpointIndex:   make(map[string][]Endpoint),
		level1Qualified: make(map[string]routeTarget),
		level1Bare:      make(map[string]routeTarget),
		level2Wrapper:   make(map[string]string),
		level2Direct:    make(map[string]routeTarget),
		log:             e.log.Named("Connector"),
	}

	c.indexEndpoints(endpoints)
	sites := groupCallSites(calls)
	c.buildLevel1(sites, assigns)
	c.buildLevel2(sites)

	var flows []CrossBoundaryFlow
	for _, sink := range apiSinks {
		target, ok := c.resolve(sink.Name)
		if !ok {
			continue
		}
		key := endpointKey(target.method, c.normalizePath(target.path))
		for _, endpoint := range c.endpointIndex[key] {
			flows = append(flows, CrossBoundaryFlow{
				FrontendSink: sink,
				BackendSource: Source{
					Category: CategoryHTTPRequest,
					Name:     "req.body",
					File:     endpoint.File,
					Line:     endpoint.Line,
					Pattern:  "req.body",
					Risk:     RiskHigh,
					Meta: map[string]any{
						"synthesized": true,
						"provenance":  sink.File,
						"endpoint":    endpoint.Method + " " + endpoint.RawPath,
					},
				},
			})
		}
	}
	c.log.Debug("Cross-boundary resolution complete.",
		zap.Int("api_sinks", len(apiSinks)), zap.Int("flows", len(flows)))
	return flows, nil
}

// indexEndpoints builds the (method, normalized path) lookup. Multiple
// endpoints may legitimately share one key.
func (c *connector) indexEndpoints(records []factstore.EndpointRecord) {
	for _, record := range records {
		if record.Method == "" || record.Path == "" {
			continue
		}
		endpoint := Endpoint{
			Method:         strings.ToUpper(record.Method),
			RawPath:        record.Path,
			NormalizedPath: c.normalizePath(record.Path),
			File:           record.File,
			Line:           record.Line,
		}
		key := endpointKey(endpoint.Method, endpoint.NormalizedPath)
		c.endpointIndex[key] = append(c.endpointIndex[key], endpoint)
	}
}

// callSite is one call with all of its argument expressions in order.
type callSite struct {
	file   string
	line   int
	caller string
	callee string
	args   []string
}

func groupCallSites(calls []factstore.CallArg) []callSite {
	type siteKey struct {
		file   string
		line   int
		callee string
	}
	index := make(map[siteKey]int)
	var sites []callSite
	for _, call := range calls {
		key := siteKey{call.File, call.Line, call.Callee}
		i, ok := index[key]
		if !ok {
			i = len(sites)
			index[key] = i
			sites = append(sites, callSite{
				file:   call.File,
				line:   call.Line,
				caller: call.Caller,
				callee: call.Callee,
			})
		}
		for len(sites[i].args) <= call.ArgIndex {
			sites[i].args = append(sites[i].args, "")
		}
		sites[i].args[call.ArgIndex] = call.ArgExpr
	}
	return sites
}

// buildLevel1 scans service-layer files for direct HTTP-client invocations
// and maps the enclosing wrapper method to the (method, path) it issues.
func (c *connector) buildLevel1(sites []callSite, assigns []factstore.Assignment) {
	assignsByFile := make(map[string][]factstore.Assignment)
	for _, a := range assigns {
		assignsByFile[a.File] = append(assignsByFile[a.File], a)
	}

	for _, site := range sites {
		if !pathInArea(site.file, c.cfg.ServiceMarkers) {
			continue
		}
		target, ok := c.extractRoute(site)
		if !ok || site.caller == "" {
			continue
		}

		c.level1Bare[site.caller] = target
		if owner, found := c.findWrapperOwner(assignsByFile[site.file], site.line); found {
			c.level1Qualified[owner+"."+site.caller] = target
		}
	}
}

// buildLevel2 scans store/controller-layer files for delegation into level-1
// wrapper methods, and for store methods that hit the HTTP client directly.
func (c *connector) buildLevel2(sites []callSite) {
	for _, site := range sites {
		if !pathInArea(site.file, c.cfg.StoreMarkers) {
			continue
		}

		// Qualified wrapper delegation only: a bare call cannot be
		// attributed to a wrapper without receiver evidence.
		if receiver, _, found := strings.Cut(site.callee, "."); found && c.isWrapperName(receiver) {
			if _, known := c.level1Qualified[site.callee]; known && site.caller != "" {
				c.level2Wrapper[site.caller] = site.callee
			}
		}

		if target, ok := c.extractRoute(site); ok && site.caller != "" {
			if _, taken := c.level2Direct[site.caller]; !taken {
				c.level2Direct[site.caller] = target
			}
		}
	}
}

// resolve walks the call graph from a frontend callee name to a concrete
// route, bounded at maxResolutionDepth with a cycle guard. Lookup priority:
// qualified level-1 key, bare level-1 key, level-2 wrapper delegation,
// level-2 direct call.
func (c *connector) resolve(name string) (routeTarget, bool) {
	visited := make(map[string]bool)
	return c.resolveFrom(name, 0, visited)
}

func (c *connector) resolveFrom(name string, depth int, visited map[string]bool) (routeTarget, bool) {
	if name == "" || visited[name] {
		return routeTarget{}, false
	}
	visited[name] = true

	if target, ok := c.level1Qualified[name]; ok {
		return target, true
	}
	for _, candidate := range bareCandidates(name) {
		if target, ok := c.level1Bare[candidate]; ok {
			return target, true
		}
	}
	if depth < maxResolutionDepth {
		for _, candidate := range bareCandidates(name) {
			if next, ok := c.level2Wrapper[candidate]; ok {
				if target, ok := c.resolveFrom(next, depth+1, visited); ok {
					return target, true
				}
			}
		}
	}
	for _, candidate := range bareCandidates(name) {
		if target, ok := c.level2Direct[candidate]; ok {
			return target, true
		}
	}
	return routeTarget{}, false
}

// bareCandidates yields the name itself and, for qualified names, the final
// segment, deduplicated in order.
func bareCandidates(name string) []string {
	if idx := strings.LastIndex(name, "."); idx >= 0 && idx+1 < len(name) {
		return []string{name, name[idx+1:]}
	}
	return []string{name}
}

// extractRoute recognizes an HTTP-client invocation and pulls its method and
// path. The method comes from a verb-named callee segment or an explicit
// method option; the path from the first string-shaped argument. Calls where
// neither a verb nor a path is evident are not client invocations.
func (c *connector) extractRoute(site callSite) (routeTarget, bool) {
	segment := site.callee
	if idx := strings.LastIndex(site.callee, "."); idx >= 0 {
		segment = site.callee[idx+1:]
	}
	segment = strings.ToLower(segment)

	method := ""
	switch segment {
	case "get", "post", "put", "patch", "delete":
		method = strings.ToUpper(segment)
	case "fetch", "request":
		method = "GET"
	default:
		return routeTarget{}, false
	}

	path := ""
	for _, arg := range site.args {
		if candidate, ok := stringArgument(arg); ok {
			path = candidate
			break
		}
	}
	if path == "" {
		return routeTarget{}, false
	}

	for _, arg := range site.args {
		if m := methodOptionRe.FindStringSubmatch(arg); m != nil {
			method = strings.ToUpper(m[1])
			break
		}
	}
	return routeTarget{method: method, path: path}, true
}

// stringArgument unwraps a quoted or template-literal argument expression.
func stringArgument(expr string) (string, bool) {
	trimmed := strings.TrimSpace(expr)
	if len(trimmed) < 2 {
		return "", false
	}
	first, last := trimmed[0], trimmed[len(trimmed)-1]
	if (first == '\'' || first == '"' || first == '`') && first == last {
		return trimmed[1 : len(trimmed)-1], true
	}
	return "", false
}

// findWrapperOwner searches backward from a call line for the nearest prior
// assignment whose target is a wrapper-shaped identifier. Assignments arrive
// ordered by line.
func (c *connector) findWrapperOwner(assigns []factstore.Assignment, line int) (string, bool) {
	idx := sort.Search(len(assigns), func(i int) bool { return assigns[i].Line > line })
	for i := idx - 1; i >= 0; i-- {
		if c.isWrapperName(assigns[i].TargetVar) {
			return assigns[i].TargetVar, true
		}
	}
	return "", false
}

// isWrapperName reports whether an identifier looks like an API wrapper
// object per the configured suffixes.
func (c *connector) isWrapperName(name string) bool {
	if name == "" {
		return false
	}
	for _, suffix := range c.cfg.WrapperSuffixes {
		if suffix != "" && strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// normalizePath collapses a route path to a comparable key: interpolation
// placeholders become the :param marker, outer slashes are trimmed, and the
// configured API prefix is stripped.
func (c *connector) normalizePath(path string) string {
	normalized := placeholderRe.ReplaceAllString(strings.TrimSpace(path), ":param")

	segments := strings.Split(strings.Trim(normalized, "/"), "/")
	for i, segment := range segments {
		if strings.HasPrefix(segment, ":") || strings.Contains(segment, ":param") {
			segments[i] = ":param"
		}
	}
	normalized = strings.Join(segments, "/")

	prefix := strings.Trim(c.cfg.APIPrefix, "/")
	if prefix != "" {
		if normalized == prefix {
			normalized = ""
		} else if strings.HasPrefix(normalized, prefix+"/") {
			normalized = normalized[len(prefix)+1:]
		}
	}
	return normalized
}

func endpointKey(method, normalizedPath string) string {
	return method + " " + normalizedPath
}

// pathInArea reports whether a file path falls in one of the configured
// layer areas.
func pathInArea(path string, markers []string) bool {
	lower := strings.ToLower(path)
	for _, marker := range markers {
		if marker != "" && strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}
