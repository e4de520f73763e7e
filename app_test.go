package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/pageline/pageline/internal/config"
)

func newCMSBackend(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/api/v1/config":
			_, _ = io.WriteString(w, `{"publisher-name":"Demo","sections":[{"id":1,"slug":"news","name":"News"}]}`)
		case r.URL.Path == "/api/v1/collections/home":
			_, _ = io.WriteString(w, `{"items":[]}`)
		case r.URL.Path == "/api/v1/stories-by-slug":
			switch r.URL.Query().Get("slug") {
			case "news/hello", "hello":
				_, _ = io.WriteString(w, `{"story":{"id":"s1","slug":"news/hello","headline":"Hello"}}`)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		case strings.HasPrefix(r.URL.Path, "/api/"):
			_, _ = io.WriteString(w, `{"forwarded":true}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newWiredApp(t *testing.T) *fiber.App {
	t.Helper()
	backend := newCMSBackend(t)
	dir := t.TempDir()

	publisherPath := filepath.Join(dir, "publisher.yml")
	if err := os.WriteFile(publisherPath, []byte("sketches_host: "+backend.URL+"\n"), 0o600); err != nil {
		t.Fatalf("写入 publisher.yml 失败: %v", err)
	}

	cfg := &config.Config{
		ListenPort:               5000,
		LogLevel:                 "info",
		PublisherConfigPath:      publisherPath,
		ManifestPath:             filepath.Join(dir, "asset-manifest.json"),
		PublicDir:                dir,
		AppVersion:               7,
		RedirectRootLevelStories: true,
		HandleNotFound:           true,
		MetricsEnabled:           true,
		UpstreamTimeout:          config.Duration(5 * time.Second),
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app, err := buildApp(cfg, logger)
	if err != nil {
		t.Fatalf("buildApp 失败: %v", err)
	}
	return app
}

func getJSON(t *testing.T, app *fiber.App, target string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	if err != nil {
		t.Fatalf("app.Test 失败: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var body map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("解析响应失败 %q: %v", string(raw), err)
		}
	}
	return resp, body
}

func TestWiredAppServesHomePage(t *testing.T) {
	app := newWiredApp(t)

	resp, body := getJSON(t, app, "/route-data.json?path=%2F")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("期望 200，得到 %d", resp.StatusCode)
	}
	if body["pageType"] != "home-page" || body["title"] != "Demo" {
		t.Fatalf("首页数据不符合预期: %v", body)
	}
	if body["appVersion"] != float64(7) {
		t.Fatalf("appVersion 应为 7，得到 %v", body["appVersion"])
	}
	if tag := resp.Header.Get("Cache-Tag"); tag != "collection/home" {
		t.Fatalf("Cache-Tag 不符合预期: %q", tag)
	}
}

func TestWiredAppServesStoryAndNotFound(t *testing.T) {
	app := newWiredApp(t)

	resp, body := getJSON(t, app, "/route-data.json?path=%2Fnews%2Fhello")
	if resp.StatusCode != http.StatusOK || body["pageType"] != "story-page" || body["title"] != "Hello" {
		t.Fatalf("故事页不符合预期: %d %v", resp.StatusCode, body)
	}

	resp, body = getJSON(t, app, "/route-data.json?path=%2Fnews%2Fmissing")
	if resp.StatusCode != http.StatusNotFound || body["pageType"] != "not-found" {
		t.Fatalf("缺失故事应返回 not-found: %d %v", resp.StatusCode, body)
	}
	if body["httpStatusCode"] != float64(404) {
		t.Fatalf("httpStatusCode 应为 404，得到 %v", body["httpStatusCode"])
	}
}

func TestWiredAppRedirectsRootLevelStory(t *testing.T) {
	app := newWiredApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/hello", nil))
	if err != nil {
		t.Fatalf("app.Test 失败: %v", err)
	}
	if resp.StatusCode != http.StatusMovedPermanently || resp.Header.Get("Location") != "/news/hello" {
		t.Fatalf("重定向不符合预期: %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestWiredAppForwardsAPI(t *testing.T) {
	app := newWiredApp(t)

	resp, body := getJSON(t, app, "/api/v1/anything")
	if resp.StatusCode != http.StatusOK || body["forwarded"] != true {
		t.Fatalf("转发不符合预期: %d %v", resp.StatusCode, body)
	}
}

func TestWiredAppPingAndMetrics(t *testing.T) {
	app := newWiredApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
	if err != nil {
		t.Fatalf("app.Test 失败: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	if string(raw) != "pong" {
		t.Fatalf("期望 pong，得到 %q", string(raw))
	}

	getJSON(t, app, "/route-data.json?path=%2F")
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatalf("app.Test 失败: %v", err)
	}
	raw, _ = io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), "pageline_pages_total") {
		t.Fatalf("metrics 输出缺少 pageline_pages_total")
	}
}

func TestBuildAppRejectsMissingPublisher(t *testing.T) {
	cfg := &config.Config{
		PublisherConfigPath: filepath.Join(t.TempDir(), "missing.yml"),
		UpstreamTimeout:     config.Duration(time.Second),
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	if _, err := buildApp(cfg, logger); err == nil {
		t.Fatalf("缺少 publisher.yml 时应返回错误")
	}
}
