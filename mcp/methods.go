package mcp

// Method enumerates every JSON-RPC method the gateway serves. Dispatch
// happens on this closed set; anything else is method-not-found.
type Method string

const (
	MethodInitialize    Method = "initialize"
	MethodInitialized   Method = "notifications/initialized"
	MethodPing          Method = "ping"
	MethodToolsList     Method = "tools/list"
	MethodToolsCall     Method = "tools/call"
	MethodResourcesList Method = "resources/list"

	MethodResolve             Method = "uor.resolve"
	MethodCreate              Method = "uor.create"
	MethodUpdate              Method = "uor.update"
	MethodDelete              Method = "uor.delete"
	MethodList                Method = "uordb.list"
	MethodSearch              Method = "uordb.search"
	MethodStatus              Method = "uordb.status"
	MethodInitializeNamespace Method = "uordb.initialize"
)

var knownMethods = map[Method]struct{}{
	MethodInitialize:          {},
	MethodInitialized:         {},
	MethodPing:                {},
	MethodToolsList:           {},
	MethodToolsCall:           {},
	MethodResourcesList:       {},
	MethodResolve:             {},
	MethodCreate:              {},
	MethodUpdate:              {},
	MethodDelete:              {},
	MethodList:                {},
	MethodSearch:              {},
	MethodStatus:              {},
	MethodInitializeNamespace: {},
}

// ParseMethod maps a wire method name onto the closed enum.
func ParseMethod(name string) (Method, bool) {
	m := Method(name)
	_, ok := knownMethods[m]
	return m, ok
}
