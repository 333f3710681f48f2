package web

import (
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestLogBuffer_SplitsWritesIntoLines(t *testing.T) {
	b := NewLogBuffer(10)
	_, _ = b.Write([]byte("replay path=a.log"))
	_, _ = b.Write([]byte(" speed=1.00\r\nudp send failed: x\n\nudp send "))

	lines, dropped := b.Tail(10, "")
	want := []string{"replay path=a.log speed=1.00", "udp send failed: x"}
	if !reflect.DeepEqual(lines, want) || dropped != 0 {
		t.Fatalf("lines=%q dropped=%d want %q", lines, dropped, want)
	}

	_, _ = b.Write([]byte("recovered\n"))
	lines, _ = b.Tail(1, "udp")
	if !reflect.DeepEqual(lines, []string{"udp send recovered"}) {
		t.Fatalf("lines=%q", lines)
	}
}

func TestLogBuffer_DropsOldest(t *testing.T) {
	b := NewLogBuffer(2)
	_, _ = b.Write([]byte("a\nb\nc\n"))
	lines, dropped := b.Tail(5, "")
	if !reflect.DeepEqual(lines, []string{"b", "c"}) || dropped != 1 {
		t.Fatalf("lines=%q dropped=%d", lines, dropped)
	}
}

func TestLogBuffer_HandlerText(t *testing.T) {
	b := NewLogBuffer(10)
	_, _ = b.Write([]byte("ahrs service started\nweb listen=:8080\n"))

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs?format=text&match=web", nil))
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != http.StatusOK || string(body) != "web listen=:8080\n" {
		t.Fatalf("code=%d body=%q", rec.Code, body)
	}

	rec = httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs?tail=0", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code=%d want 400", rec.Code)
	}
}
