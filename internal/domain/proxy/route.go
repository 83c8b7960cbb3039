// Package proxy holds the routing and header-forwarding rules shared by
// the proxy router (C5) and the OAuth pass-through (C6). The HTTP
// transport adapter (internal/adapter/inbound/http) drives these pure
// functions against net/http.
package proxy

import "strings"

// Kind distinguishes what a matched route should do.
type Kind int

const (
	// KindMCP is a /servers/:name/mcp or /s/:name/mcp proxy route.
	KindMCP Kind = iota
	// KindWellKnown is an OAuth discovery document pass-through.
	KindWellKnown
	// KindRegister is the DCR /register pass-through.
	KindRegister
	// KindWellKnownNoServer is a root .well-known hit with no :name.
	KindWellKnownNoServer
)

// Route is the result of matching an inbound request path.
type Route struct {
	Kind Kind
	// Name is the registered upstream name (raw casing from the URL).
	Name string
	// Doc is the well-known document name for KindWellKnown
	// ("oauth-protected-resource", "oauth-authorization-server",
	// "openid-configuration").
	Doc string
}

var wellKnownDocs = map[string]bool{
	"oauth-protected-resource":   true,
	"oauth-authorization-server": true,
	"openid-configuration":       true,
}

// Match parses path against the route shapes in §4.5/§4.6. ok is false if
// nothing matched (the caller should fall through to other handlers or
//404).
func Match(path string) (Route, bool) {
	// Root .well-known with no server: /.well-known/<doc>
	if doc, ok := trimPrefixSeg(path, "/.well-known/"); ok {
		// Could be "/.well-known/<doc>/servers/:name/mcp" or bare.
		docName, rest := splitFirstSeg(doc)
		if !wellKnownDocs[docName] {
			return Route{}, false
		}
		name, ok := matchServersMCPSuffix(rest)
		if !ok {
			return Route{Kind: KindWellKnownNoServer}, true
		}
		return Route{Kind: KindWellKnown, Name: name, Doc: docName}, true
	}

	// Alternate layout: /servers/:name/mcp/.well-known/<doc> (and /s/ alias).
	if name, rest, ok := matchMountPrefix(path); ok {
		if doc, ok := trimPrefixSeg(rest, "/.well-known/"); ok {
			docName, _ := splitFirstSeg(doc)
			if !wellKnownDocs[docName] {
				return Route{}, false
			}
			return Route{Kind: KindWellKnown, Name: name, Doc: docName}, true
		}
		if rest == "/register" {
			return Route{Kind: KindRegister, Name: name}, true
		}
		if rest == "" || rest == "/" {
			return Route{Kind: KindMCP, Name: name}, true
		}
	}

	return Route{}, false
}

// matchMountPrefix matches "/servers/:name/mcp<rest>" or "/s/:name/mcp<rest>"
// and returns the name and the remaining suffix.
func matchMountPrefix(path string) (name, rest string, ok bool) {
	for _, mount := range []string{"/servers/", "/s/"} {
		if !strings.HasPrefix(path, mount) {
			continue
		}
		tail := path[len(mount):]
		segName, after := splitFirstSeg(tail)
		if segName == "" {
			continue
		}
		const mcpSeg = "/mcp"
		if after == mcpSeg {
			return segName, "", true
		}
		if strings.HasPrefix(after, mcpSeg+"/") {
			return segName, after[len(mcpSeg):], true
		}
		if strings.HasPrefix(after, mcpSeg) {
			return segName, after[len(mcpSeg):], true
		}
	}
	return "", "", false
}

// matchServersMCPSuffix matches "/servers/:name/mcp" or "/s/:name/mcp"
// with nothing following, used for the well-known-prefixed shape
// "/.well-known/<doc>/servers/:name/mcp".
func matchServersMCPSuffix(rest string) (string, bool) {
	if rest == "" {
		return "", false
	}
	name, after, ok := matchMountPrefix(rest)
	if !ok || after != "" {
		return "", false
	}
	return name, true
}

func trimPrefixSeg(path, prefix string) (string, bool) {
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	return path[len(prefix):], true
}

// splitFirstSeg splits "a/b/c" into ("a", "/b/c"). If there's no further
// slash, rest is "".
func splitFirstSeg(s string) (seg, rest string) {
	idx := strings.IndexByte(s, '/')
	if idx < 0 {
		return s, ""
	}
	return s[:idx], s[idx:]
}
