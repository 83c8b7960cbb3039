package proxy

import "testing"

func TestMatch_MCPRoute(t *testing.T) {
	r, ok := Match("/servers/my-upstream/mcp")
	if !ok {
		t.Fatal("expected match")
	}
	if r.Kind != KindMCP || r.Name != "my-upstream" {
		t.Errorf("unexpected route: %+v", r)
	}
}

func TestMatch_ShortAlias(t *testing.T) {
	r, ok := Match("/s/my-upstream/mcp")
	if !ok {
		t.Fatal("expected match")
	}
	if r.Kind != KindMCP || r.Name != "my-upstream" {
		t.Errorf("unexpected route: %+v", r)
	}
}

func TestMatch_Register(t *testing.T) {
	r, ok := Match("/servers/foo/mcp/register")
	if !ok {
		t.Fatal("expected match")
	}
	if r.Kind != KindRegister || r.Name != "foo" {
		t.Errorf("unexpected route: %+v", r)
	}
}

func TestMatch_WellKnownMountPrefix(t *testing.T) {
	r, ok := Match("/servers/foo/mcp/.well-known/oauth-protected-resource")
	if !ok {
		t.Fatal("expected match")
	}
	if r.Kind != KindWellKnown || r.Name != "foo" || r.Doc != "oauth-protected-resource" {
		t.Errorf("unexpected route: %+v", r)
	}
}

func TestMatch_RootWellKnownWithServerSuffix(t *testing.T) {
	r, ok := Match("/.well-known/oauth-authorization-server/servers/foo/mcp")
	if !ok {
		t.Fatal("expected match")
	}
	if r.Kind != KindWellKnown || r.Name != "foo" || r.Doc != "oauth-authorization-server" {
		t.Errorf("unexpected route: %+v", r)
	}
}

func TestMatch_RootWellKnownNoServer(t *testing.T) {
	r, ok := Match("/.well-known/openid-configuration")
	if !ok {
		t.Fatal("expected match")
	}
	if r.Kind != KindWellKnownNoServer {
		t.Errorf("expected KindWellKnownNoServer, got %+v", r)
	}
}

func TestMatch_UnknownWellKnownDoc_NoMatch(t *testing.T) {
	_, ok := Match("/.well-known/something-else")
	if ok {
		t.Error("expected no match for unrecognized well-known doc")
	}
}

func TestMatch_Unrelated_NoMatch(t *testing.T) {
	_, ok := Match("/nope")
	if ok {
		t.Error("expected no match for unrelated path")
	}
}

func TestMatch_EmptyName_NoMatch(t *testing.T) {
	_, ok := Match("/servers//mcp")
	if ok {
		t.Error("expected no match for empty server name segment")
	}
}
