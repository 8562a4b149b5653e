package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPostText(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := New(Config{WebhookURL: server.URL})
	if err := client.PostText(context.Background(), "hello"); err != nil {
		t.Fatalf("PostText() error = %v", err)
	}
	if received["text"] != "hello" {
		t.Errorf("text = %q, want hello", received["text"])
	}
}

func TestPostTextSurfacesFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer server.Close()

	if err := New(Config{WebhookURL: server.URL}).PostText(context.Background(), "x"); err == nil {
		t.Error("delivery failure must be surfaced, not swallowed")
	}
}

func TestUploadFileFlow(t *testing.T) {
	var transferred []byte
	var completed map[string]any

	mux := http.NewServeMux()
	var server *httptest.Server

	mux.HandleFunc("/api/files.getUploadURLExternal", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer xoxb-test" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Query().Get("filename") != "cwv.png" {
			t.Errorf("filename = %q", r.URL.Query().Get("filename"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"upload_url": server.URL + "/upload-target",
			"file_id":    "F123",
		})
	})
	mux.HandleFunc("/upload-target", func(w http.ResponseWriter, r *http.Request) {
		transferred, _ = io.ReadAll(r.Body)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/api/files.completeUploadExternal", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&completed)
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	server = httptest.NewServer(mux)
	defer server.Close()

	client := New(Config{
		BotToken:  "xoxb-test",
		ChannelID: "C123",
		APIBase:   server.URL + "/api",
	})

	data := []byte{0x89, 'P', 'N', 'G'}
	if err := client.UploadFile(context.Background(), "cwv.png", "CWV trend", data); err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}

	if !bytes.Equal(transferred, data) {
		t.Errorf("transferred bytes = %v, want %v", transferred, data)
	}
	if completed["channel_id"] != "C123" {
		t.Errorf("channel_id = %v", completed["channel_id"])
	}
	files := completed["files"].([]any)
	if files[0].(map[string]any)["id"] != "F123" {
		t.Errorf("file id = %v", files[0])
	}
}

func TestUploadFileAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "invalid_auth"})
	}))
	defer server.Close()

	client := New(Config{BotToken: "bad", ChannelID: "C123", APIBase: server.URL})
	if err := client.UploadFile(context.Background(), "cwv.png", "t", []byte("x")); err == nil {
		t.Error("API-level error must be surfaced")
	}
}

func TestCanUpload(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"Full", Config{BotToken: "t", ChannelID: "c"}, true},
		{"NoToken", Config{ChannelID: "c"}, false},
		{"NoChannel", Config{BotToken: "t"}, false},
		{"WebhookOnly", Config{WebhookURL: "u"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := New(tt.cfg).CanUpload(); got != tt.want {
				t.Errorf("CanUpload() = %v, want %v", got, tt.want)
			}
		})
	}
}
