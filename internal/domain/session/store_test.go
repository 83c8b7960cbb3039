package session

import (
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestStore() *Store {
	return New(50*time.Millisecond, 10*time.Millisecond)
}

func TestSetAndGetClientInfo(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	s.SetClientInfo("sess-1", ClientInfo{Name: "vscode", Version: "1.0"})

	ci, ok := s.ClientInfo("sess-1")
	if !ok {
		t.Fatal("expected ClientInfo to be found")
	}
	if ci.Name != "vscode" {
		t.Errorf("expected name 'vscode', got %q", ci.Name)
	}
}

func TestClientInfo_Unknown_ReturnsFalse(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	_, ok := s.ClientInfo("missing")
	if ok {
		t.Error("expected ok=false for unknown session")
	}
}

func TestSetAndGetServerInfo(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	s.SetServerInfo("sess-1", ServerInfo{Version: "2.0"})
	si, ok := s.ServerInfo("sess-1")
	if !ok || si.Version != "2.0" {
		t.Errorf("expected ServerInfo{Version: 2.0}, got %+v, ok=%v", si, ok)
	}
}

func TestTransitionStateless_CopiesIdentity(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	s.SetClientInfo(Stateless, ClientInfo{Name: "curl"})
	s.SetServerInfo(Stateless, ServerInfo{Version: "1.0"})

	s.TransitionStateless("real-session-id")

	ci, ok := s.ClientInfo("real-session-id")
	if !ok || ci.Name != "curl" {
		t.Errorf("expected client info copied to new session, got %+v, ok=%v", ci, ok)
	}

	// Open Question (c): the stateless entry is never deleted.
	stillThere, ok := s.ClientInfo(Stateless)
	if !ok || stillThere.Name != "curl" {
		t.Error("expected stateless entry to remain after transition")
	}
}

func TestTransitionStateless_EmptyOrStateless_NoOp(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	s.SetClientInfo(Stateless, ClientInfo{Name: "curl"})
	s.TransitionStateless("")
	s.TransitionStateless(Stateless)

	if _, ok := s.ClientInfo(""); ok {
		t.Error("expected no entry created for empty session id")
	}
}

func TestStartAndFinishRequest(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	s.StartRequest("srv-a", "sess-1", "req-1")
	time.Sleep(5 * time.Millisecond)

	d, ok := s.FinishRequest("srv-a", "sess-1", "req-1")
	if !ok {
		t.Fatal("expected FinishRequest to find the started request")
	}
	if d <= 0 {
		t.Errorf("expected positive duration, got %v", d)
	}

	// Second finish should miss: entry was removed.
	if _, ok := s.FinishRequest("srv-a", "sess-1", "req-1"); ok {
		t.Error("expected second FinishRequest to return ok=false")
	}
}

func TestStartRequest_EmptyID_Ignored(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	s.StartRequest("srv-a", "sess-1", "")
	if _, ok := s.FinishRequest("srv-a", "sess-1", ""); ok {
		t.Error("expected empty reqID to never be tracked")
	}
}

func TestEvictExpired_RemovesStaleEntries(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	s.StartRequest("srv-a", "sess-1", "req-1")

	// Wait past maxTTL plus a couple cleanup intervals.
	time.Sleep(150 * time.Millisecond)

	if _, ok := s.FinishRequest("srv-a", "sess-1", "req-1"); ok {
		t.Error("expected request tracker entry to have been evicted")
	}
}

func TestClearAll(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	s.SetClientInfo("sess-1", ClientInfo{Name: "vscode"})
	s.SetServerInfo("sess-1", ServerInfo{Version: "1.0"})
	s.StartRequest("srv-a", "sess-1", "req-1")

	s.ClearAll()

	if _, ok := s.ClientInfo("sess-1"); ok {
		t.Error("expected client info cleared")
	}
	if _, ok := s.ServerInfo("sess-1"); ok {
		t.Error("expected server info cleared")
	}
	if _, ok := s.FinishRequest("srv-a", "sess-1", "req-1"); ok {
		t.Error("expected request tracker cleared")
	}
}

func TestClose_Idempotent(t *testing.T) {
	s := newTestStore()
	s.Close()
	s.Close()
}
