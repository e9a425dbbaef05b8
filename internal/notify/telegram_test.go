package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"commodity-price-alerts/internal/alerts"
)

func TestTelegramShowSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	n := NewTelegram("token", "chat", srv.URL, time.Second, testLogger())
	if err := n.Show(context.Background(), alerts.Notification{Title: "Price alert", Body: "Onion is now 17.50", Tag: "price-alert-1"}); err != nil {
		t.Fatalf("Telegram Show 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "Onion is now 17.50") {
		t.Fatalf("text 应包含正文: %q", received["text"])
	}
}

func TestTelegramShowError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	n := NewTelegram("token", "chat", srv.URL, time.Second, testLogger())
	if err := n.Show(context.Background(), alerts.Notification{Title: "t", Body: "b", Tag: "tag"}); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestTelegramPermission(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/getMe") {
			t.Fatalf("应调用 getMe, 实际 %s", r.URL.Path)
		}
		if strings.Contains(r.URL.Path, "badtoken") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	good := NewTelegram("token", "chat", srv.URL, time.Second, testLogger())
	if good.QueryPermission() != alerts.PermissionUndetermined {
		t.Fatalf("初始权限应为 undetermined")
	}
	perm, err := good.RequestPermission(context.Background())
	if err != nil || perm != alerts.PermissionGranted {
		t.Fatalf("有效 token 应授予权限: %s %v", perm, err)
	}
	if good.QueryPermission() != alerts.PermissionGranted {
		t.Fatalf("权限应被缓存")
	}

	bad := NewTelegram("badtoken", "chat", srv.URL, time.Second, testLogger())
	perm, err = bad.RequestPermission(context.Background())
	if err != nil || perm != alerts.PermissionDenied {
		t.Fatalf("无效 token 应拒绝: %s %v", perm, err)
	}

	missing := NewTelegram("", "", srv.URL, time.Second, testLogger())
	if missing.QueryPermission() != alerts.PermissionDenied {
		t.Fatalf("未配置 token 时应直接拒绝")
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
