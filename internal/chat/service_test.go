package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/christophersteins/aurora-sub001/internal/api"
	"github.com/christophersteins/aurora-sub001/internal/model"
	"github.com/christophersteins/aurora-sub001/internal/presence"
	"github.com/christophersteins/aurora-sub001/internal/session"
	"github.com/christophersteins/aurora-sub001/internal/store"
)

type fakeTransport struct {
	sent      []string
	typing    []string
	stopped   bool
	connected bool
}

func (f *fakeTransport) SendMessage(conversationID, receiverID, content string) error {
	f.sent = append(f.sent, content)
	return nil
}

func (f *fakeTransport) SendTyping(conversationID string) error {
	f.typing = append(f.typing, conversationID)
	return nil
}

func (f *fakeTransport) IsConnected() bool { return f.connected }
func (f *fakeTransport) Stop()             { f.stopped = true }

func respond(t *testing.T, w http.ResponseWriter, data any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"code": 0, "message": "success", "data": data}); err != nil {
		t.Fatalf("Failed to encode response: %v", err)
	}
}

func newTestService(t *testing.T, handler http.Handler) (*Service, *store.Store, *fakeTransport, func()) {
	t.Helper()

	server := httptest.NewServer(handler)
	st := store.New()
	tr := &fakeTransport{connected: true}
	client := api.NewClient(server.URL, time.Second, nil)
	svc := NewService(client, st, tr, presence.NewTracker(0), &session.Session{UserID: "me", Token: "tok"})

	return svc, st, tr, server.Close
}

func TestLoadConversations(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/conversations", func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, []map[string]any{
			{"id": "c1", "otherUserId": "u1", "unreadCount": 2, "lastMessageTime": "2024-01-01T10:00:00Z"},
		})
	})
	mux.HandleFunc("GET /api/v1/messages/unread-count", func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, map[string]int{"count": 1})
	})

	svc, st, _, closeFn := newTestService(t, mux)
	defer closeFn()

	if err := svc.LoadConversations(context.Background()); err != nil {
		t.Fatalf("LoadConversations failed: %v", err)
	}

	if len(st.Conversations()) != 1 {
		t.Fatalf("Expected 1 conversation in store, got %d", len(st.Conversations()))
	}
	if st.TotalUnreadCount() != 1 {
		t.Errorf("Expected reconciled unread count 1, got %d", st.TotalUnreadCount())
	}
	if st.IsLoading() {
		t.Error("Expected loading flag reset after load")
	}
	if st.LastError() != "" {
		t.Errorf("Expected no error, got '%s'", st.LastError())
	}
}

func TestLoadConversations_ErrorSurfaced(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	svc, st, _, closeFn := newTestService(t, mux)
	defer closeFn()

	if err := svc.LoadConversations(context.Background()); err == nil {
		t.Fatal("Expected error from failing API")
	}
	if st.LastError() == "" {
		t.Error("Expected error surfaced in store")
	}
	if st.IsLoading() {
		t.Error("Loading flag must be reset even on failure")
	}
}

func TestOpenConversation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/conversations", func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, map[string]any{"id": "c1", "otherUserId": "u1", "unreadCount": 3})
	})
	mux.HandleFunc("GET /api/v1/conversations/c1/messages", func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, []map[string]any{
			{"id": "m1", "conversationId": "c1", "senderId": "u1", "content": "hi"},
		})
	})
	mux.HandleFunc("POST /api/v1/conversations/c1/read", func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, nil)
	})

	svc, st, _, closeFn := newTestService(t, mux)
	defer closeFn()

	conv, err := svc.OpenConversation(context.Background(), "u1")
	if err != nil {
		t.Fatalf("OpenConversation failed: %v", err)
	}
	if conv.ID != "c1" {
		t.Errorf("Expected conversation c1, got %s", conv.ID)
	}

	if svc.CurrentConversation() != "c1" {
		t.Errorf("Expected current conversation c1, got '%s'", svc.CurrentConversation())
	}
	if len(st.Messages("c1")) != 1 {
		t.Errorf("Expected messages cached, got %d", len(st.Messages("c1")))
	}

	// 打开即乐观标记已读
	convs := st.Conversations()
	if convs[0].UnreadCount != 0 {
		t.Errorf("Expected unreadCount 0 after open, got %d", convs[0].UnreadCount)
	}
	if st.TotalUnreadCount() != 0 {
		t.Errorf("Expected total unread 0 after open, got %d", st.TotalUnreadCount())
	}
}

func TestSendMessage_DelegatesToTransport(t *testing.T) {
	svc, _, tr, closeFn := newTestService(t, http.NewServeMux())
	defer closeFn()

	if err := svc.SendMessage("c1", "u1", "hello"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if len(tr.sent) != 1 || tr.sent[0] != "hello" {
		t.Errorf("Expected message delegated to transport, got %v", tr.sent)
	}

	if err := svc.SendTyping("c1"); err != nil {
		t.Fatalf("SendTyping failed: %v", err)
	}
	if len(tr.typing) != 1 {
		t.Error("Expected typing event delegated to transport")
	}
}

func TestTogglePin_RefreshesList(t *testing.T) {
	pinned := false
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/conversations/c1/pin", func(w http.ResponseWriter, r *http.Request) {
		pinned = !pinned
		respond(t, w, map[string]bool{"isPinned": pinned})
	})
	mux.HandleFunc("GET /api/v1/conversations", func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, []map[string]any{
			{"id": "c1", "otherUserId": "u1", "isPinned": pinned},
		})
	})

	svc, st, _, closeFn := newTestService(t, mux)
	defer closeFn()

	got, err := svc.TogglePin(context.Background(), "c1")
	if err != nil {
		t.Fatalf("TogglePin failed: %v", err)
	}
	if !got {
		t.Error("Expected new pinned state true")
	}
	if convs := st.Conversations(); len(convs) != 1 || !convs[0].IsPinned {
		t.Error("Expected refreshed store to reflect pinned state")
	}
}

func TestLogout_ClearsEverything(t *testing.T) {
	svc, st, tr, closeFn := newTestService(t, http.NewServeMux())
	defer closeFn()

	st.SetConversations([]model.Conversation{{ID: "c1", OtherUserID: "u1", UnreadCount: 1}})
	svc.SetCurrentConversation("c1")

	svc.Logout()

	if !tr.stopped {
		t.Error("Expected transport stopped on logout")
	}
	if len(st.Conversations()) != 0 || st.TotalUnreadCount() != 0 {
		t.Error("Expected store cleared on logout")
	}
	if svc.CurrentConversation() != "" {
		t.Error("Expected current conversation cleared on logout")
	}
}
