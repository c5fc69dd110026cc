package bridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/christophersteins/aurora-sub001/internal/config"
	"github.com/christophersteins/aurora-sub001/internal/model"
	"github.com/christophersteins/aurora-sub001/internal/presence"
	"github.com/christophersteins/aurora-sub001/internal/store"
	"github.com/christophersteins/aurora-sub001/pkg/chaterrors"
	"github.com/christophersteins/aurora-sub001/pkg/proto"
)

func newTestBridge(opts Options) *Bridge {
	if opts.Store == nil {
		opts.Store = store.New()
	}
	if opts.CurrentUserID == nil {
		opts.CurrentUserID = func() string { return "me" }
	}
	return New(config.NATSConfig{}, opts)
}

func marshalEvent(t *testing.T, event proto.PushEvent) []byte {
	t.Helper()
	data, err := json.Marshal(&event)
	if err != nil {
		t.Fatalf("Failed to marshal event: %v", err)
	}
	return data
}

func TestHandleEvent_NewMessageFeedsStore(t *testing.T) {
	s := store.New()
	s.SetConversations([]model.Conversation{{ID: "c1", OtherUserID: "u1"}})

	b := newTestBridge(Options{Store: s})

	b.handleEvent(marshalEvent(t, proto.PushEvent{
		NewMessage: &proto.NewMessage{
			MessageId:      "m1",
			ConversationId: "c1",
			SenderId:       "u1",
			Content:        "hello",
			Timestamp:      time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).UnixMilli(),
		},
	}))

	msgs := s.Messages("c1")
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message in store, got %d", len(msgs))
	}
	if msgs[0].Content != "hello" || msgs[0].SenderID != "u1" {
		t.Errorf("Unexpected message %+v", msgs[0])
	}

	convs := s.Conversations()
	if convs[0].LastMessage != "hello" {
		t.Errorf("Expected conversation preview updated, got '%s'", convs[0].LastMessage)
	}
	if convs[0].UnreadCount != 1 {
		t.Errorf("Expected unreadCount 1, got %d", convs[0].UnreadCount)
	}
}

func TestHandleEvent_EchoRoutedThroughSamePath(t *testing.T) {
	s := store.New()
	s.SetConversations([]model.Conversation{{ID: "c1", OtherUserID: "u1"}})

	alerted := false
	b := newTestBridge(Options{
		Store:   s,
		OnAlert: func(string) { alerted = true },
	})

	// 自己发出的消息回显：进 Store，但不触发提示
	b.handleEvent(marshalEvent(t, proto.PushEvent{
		NewMessage: &proto.NewMessage{
			MessageId:      "m1",
			ConversationId: "c1",
			SenderId:       "me",
			Content:        "hi there",
		},
	}))

	if len(s.Messages("c1")) != 1 {
		t.Error("Echo message should be stored")
	}
	if s.Conversations()[0].UnreadCount != 0 {
		t.Error("Echo message should not count as unread")
	}
	if alerted {
		t.Error("Echo message should not trigger alert")
	}
}

func TestShouldAlert_SuppressionRules(t *testing.T) {
	currentConv := "c-viewing"
	b := newTestBridge(Options{
		CurrentUserID:       func() string { return "me" },
		CurrentConversation: func() string { return currentConv },
	})

	tests := []struct {
		name           string
		senderID       string
		conversationID string
		expected       bool
	}{
		{"own message suppressed", "me", "c-other", false},
		{"currently viewed conversation suppressed", "u1", "c-viewing", false},
		{"other conversation alerts", "u1", "c-other", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.shouldAlert(tt.senderID, tt.conversationID); got != tt.expected {
				t.Errorf("shouldAlert(%s, %s) = %v, expected %v", tt.senderID, tt.conversationID, got, tt.expected)
			}
		})
	}

	// 当前会话在事件处理时读取，切换后立即生效
	currentConv = "c-other"
	if b.shouldAlert("u1", "c-viewing") != true {
		t.Error("Expected alert after navigating away from conversation")
	}
	if b.shouldAlert("u1", "c-other") != false {
		t.Error("Expected suppression for newly viewed conversation")
	}
}

func TestHandleEvent_Presence(t *testing.T) {
	tracker := presence.NewTracker(0)
	b := newTestBridge(Options{Presence: tracker})

	b.handleEvent(marshalEvent(t, proto.PushEvent{
		Presence: &proto.Presence{UserId: "u1", Online: true},
	}))
	if !tracker.Status("u1").IsOnline {
		t.Error("Expected u1 online after presence event")
	}

	lastSeen := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	b.handleEvent(marshalEvent(t, proto.PushEvent{
		Presence: &proto.Presence{UserId: "u1", Online: false, LastSeen: lastSeen.UnixMilli()},
	}))

	status := tracker.Status("u1")
	if status.IsOnline {
		t.Error("Expected u1 offline")
	}
	if !status.LastSeen.Equal(lastSeen) {
		t.Errorf("Expected lastSeen %v, got %v", lastSeen, status.LastSeen)
	}
}

func TestHandleEvent_TypingForwarded(t *testing.T) {
	var gotConv, gotUser string
	b := newTestBridge(Options{
		OnTyping: func(conversationID, userID string) {
			gotConv, gotUser = conversationID, userID
		},
	})

	b.handleEvent(marshalEvent(t, proto.PushEvent{
		Typing: &proto.Typing{ConversationId: "c1", UserId: "u1"},
	}))

	if gotConv != "c1" || gotUser != "u1" {
		t.Errorf("Expected typing event forwarded, got conv=%s user=%s", gotConv, gotUser)
	}
}

func TestHandleEvent_ErrorSurfacesInStore(t *testing.T) {
	s := store.New()
	b := newTestBridge(Options{Store: s})

	b.handleEvent(marshalEvent(t, proto.PushEvent{
		ErrorEvent: &proto.ErrorEvent{Code: 50001, Message: "server side failure"},
	}))

	if s.LastError() != "server side failure" {
		t.Errorf("Expected error surfaced in store, got '%s'", s.LastError())
	}
}

func TestHandleEvent_MalformedPayloadIgnored(t *testing.T) {
	s := store.New()
	b := newTestBridge(Options{Store: s})

	b.handleEvent([]byte("{not json"))

	if s.LastError() != "" {
		t.Error("Malformed payload should not corrupt store state")
	}
}

func TestSendMessage_RejectsWhitespaceContent(t *testing.T) {
	b := newTestBridge(Options{})

	for _, content := range []string{"", "   ", "\n\t "} {
		err := b.SendMessage("c1", "u1", content)
		if !chaterrors.Is(err, chaterrors.ErrEmptyMessage) {
			t.Errorf("Expected ErrEmptyMessage for content %q, got %v", content, err)
		}
	}
}

func TestSendMessage_RequiresConnection(t *testing.T) {
	b := newTestBridge(Options{})

	if err := b.SendMessage("c1", "u1", "hello"); err != ErrNotConnected {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if err := b.SendTyping("c1"); err != ErrNotConnected {
		t.Errorf("Expected ErrNotConnected for typing, got %v", err)
	}
}

// 注意：此测试需要一个运行中的 NATS 实例，否则跳过
func TestBridge_RoundTrip(t *testing.T) {
	s := store.New()
	s.SetConversations([]model.Conversation{{ID: "c1", OtherUserID: "u1"}})

	cfg := config.NATSConfig{
		URL:           "nats://localhost:4222",
		MaxReconnects: 3,
		ReconnectWait: time.Second,
	}
	b := New(cfg, Options{
		Store:         s,
		CurrentUserID: func() string { return "me" },
	})

	if err := b.Connect(""); err != nil {
		t.Skipf("Skipping: cannot connect to NATS: %v", err)
	}
	defer b.Stop()

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start bridge: %v", err)
	}

	if !b.IsConnected() {
		t.Error("Expected bridge to report connected")
	}

	// 通过传输层投递一条下行事件
	event := proto.PushEvent{
		NewMessage: &proto.NewMessage{
			MessageId:      "m1",
			ConversationId: "c1",
			SenderId:       "u1",
			Content:        "over the wire",
			Timestamp:      time.Now().UnixMilli(),
		},
	}
	data, _ := json.Marshal(&event)
	if err := b.conn.Publish(proto.BuildUserEventsSubject("me"), data); err != nil {
		t.Fatalf("Failed to publish test event: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(s.Messages("c1")) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	msgs := s.Messages("c1")
	if len(msgs) != 1 || msgs[0].Content != "over the wire" {
		t.Fatalf("Expected delivered message in store, got %+v", msgs)
	}

	if err := b.SendMessage("c1", "u1", "outbound"); err != nil {
		t.Errorf("SendMessage failed: %v", err)
	}
}
