package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestServerRoutes(t *testing.T) {
	extra := map[string]http.Handler{
		"/toasts": http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("[]"))
		}),
	}
	Ticks.Inc()

	ts := httptest.NewServer(NewServer(":0", true, extra, zerolog.Nop()).Handler())
	defer ts.Close()

	cases := map[string]string{
		"/healthz": "ok",
		"/toasts":  "[]",
	}
	for path, want := range cases {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("请求 %s 失败: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(body) != want {
			t.Fatalf("%s 返回 %q，期望 %q", path, body, want)
		}
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("请求 /metrics 失败: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "pricealerts_ticks_total") {
		t.Fatalf("/metrics 缺少 pricealerts_ticks_total")
	}
}

func TestServerWithoutMetrics(t *testing.T) {
	ts := httptest.NewServer(NewServer(":0", false, nil, zerolog.Nop()).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("请求 /metrics 失败: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("未启用时 /metrics 应返回 404，实际 %d", resp.StatusCode)
	}
}
