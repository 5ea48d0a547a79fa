package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/conch/pkg/audio"
	"github.com/MrWong99/conch/pkg/provider/tts"
)

// ---- Output format parsing ----

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		format   string
		wantEnc  audio.Encoding
		wantRate int
		wantErr  bool
	}{
		{"mp3_44100_128", audio.EncodingMP3, 44100, false},
		{"mp3_22050_32", audio.EncodingMP3, 22050, false},
		{"pcm_16000", audio.EncodingPCM16, 16000, false},
		{"pcm_24000", audio.EncodingPCM16, 24000, false},
		{"ulaw_8000", "", 0, true},
		{"mp3", "", 0, true},
		{"pcm_fast", "", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.format, func(t *testing.T) {
			enc, rate, err := parseOutputFormat(tc.format)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if enc != tc.wantEnc || rate != tc.wantRate {
				t.Errorf("got (%q, %d), want (%q, %d)", enc, rate, tc.wantEnc, tc.wantRate)
			}
		})
	}
}

// ---- Request construction ----

func TestBuildTTSRequest(t *testing.T) {
	p, err := New("key-123", WithModel("eleven_flash_v2_5"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	req, err := p.buildTTSRequest(context.Background(), "Yes", "voice/abc")
	if err != nil {
		t.Fatalf("buildTTSRequest: %v", err)
	}

	if req.Method != http.MethodPost {
		t.Errorf("method = %s, want POST", req.Method)
	}
	if got := req.URL.EscapedPath(); got != "/v1/text-to-speech/voice%2Fabc" {
		t.Errorf("path = %q", got)
	}
	if got := req.URL.Query().Get("output_format"); got != defaultOutputFmt {
		t.Errorf("output_format = %q, want %q", got, defaultOutputFmt)
	}
	if got := req.Header.Get("xi-api-key"); got != "key-123" {
		t.Errorf("xi-api-key = %q", got)
	}

	var body ttsRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Text != "Yes" || body.ModelID != "eleven_flash_v2_5" {
		t.Errorf("body = %+v", body)
	}
	if body.VoiceSettings == nil || body.VoiceSettings.Stability != 0.5 || body.VoiceSettings.SimilarityBoost != 0.75 {
		t.Errorf("voice settings = %+v", body.VoiceSettings)
	}
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{defaultBaseURL, "wss://api.elevenlabs.io/v1/text-to-speech/v1/stream-input?"},
		{"http://127.0.0.1:9999", "ws://127.0.0.1:9999/v1/text-to-speech/v1/stream-input?"},
	}
	for _, tc := range tests {
		p, err := New("k", WithBaseURL(tc.base), WithOutputFormat("pcm_16000"))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		got := p.streamURL("v1")
		if !strings.HasPrefix(got, tc.want) {
			t.Errorf("streamURL = %q, want prefix %q", got, tc.want)
		}
		if !strings.Contains(got, "output_format=pcm_16000") || !strings.Contains(got, "model_id="+defaultModel) {
			t.Errorf("streamURL = %q missing query", got)
		}
	}
}

// ---- Synthesize (REST) ----

func TestSynthesize_REST(t *testing.T) {
	mp3 := []byte{0xFF, 0xFB, 0x90, 0x00, 0x01}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice-1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "key" {
			t.Errorf("missing api key header")
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(mp3)
	}))
	t.Cleanup(srv.Close)

	p, err := New("key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.Synthesize(context.Background(), "The conch has spoken.", tts.VoiceProfile{ID: "voice-1"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got.Encoding != audio.EncodingMP3 {
		t.Errorf("encoding = %q, want mp3", got.Encoding)
	}
	if got.SampleRate != 44100 {
		t.Errorf("sample rate = %d, want 44100", got.SampleRate)
	}
	if string(got.Data) != string(mp3) {
		t.Errorf("data = %v, want %v", got.Data, mp3)
	}
}

func TestSynthesize_RESTErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"invalid api key"}`)
	}))
	t.Cleanup(srv.Close)

	p, _ := New("bad", WithBaseURL(srv.URL))
	_, err := p.Synthesize(context.Background(), "Yes", tts.VoiceProfile{ID: "v"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "invalid api key") {
		t.Errorf("error %q should carry status and body", err)
	}
}

func TestSynthesize_Validation(t *testing.T) {
	p, _ := New("key")
	if _, err := p.Synthesize(context.Background(), "Yes", tts.VoiceProfile{}); err == nil {
		t.Error("expected error for empty voice ID")
	}
	if _, err := p.Synthesize(context.Background(), "   ", tts.VoiceProfile{ID: "v"}); err == nil {
		t.Error("expected error for blank text")
	}
}

// ---- Synthesize (WebSocket) ----

func TestSynthesize_Stream(t *testing.T) {
	frame1 := []byte{1, 0, 2, 0}
	frame2 := []byte{3, 0}
	textsCh := make(chan []string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer c.CloseNow()
		ctx := r.Context()

		var texts []string
		for range 3 {
			_, msg, err := c.Read(ctx)
			if err != nil {
				t.Errorf("server read: %v", err)
				return
			}
			var m map[string]any
			_ = json.Unmarshal(msg, &m)
			text, _ := m["text"].(string)
			texts = append(texts, text)
		}
		textsCh <- texts

		for _, f := range [][]byte{frame1, frame2} {
			b, _ := json.Marshal(audioResponse{Audio: base64.StdEncoding.EncodeToString(f)})
			_ = c.Write(ctx, websocket.MessageText, b)
		}
		b, _ := json.Marshal(audioResponse{IsFinal: true})
		_ = c.Write(ctx, websocket.MessageText, b)
		_ = c.Close(websocket.StatusNormalClosure, "")
	}))
	t.Cleanup(srv.Close)

	p, err := New("key", WithBaseURL(srv.URL), WithOutputFormat("pcm_16000"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.Synthesize(context.Background(), "Maybe", tts.VoiceProfile{ID: "v"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got.Encoding != audio.EncodingPCM16 || got.SampleRate != 16000 {
		t.Errorf("got (%q, %d), want (pcm, 16000)", got.Encoding, got.SampleRate)
	}
	want := append(append([]byte{}, frame1...), frame2...)
	if string(got.Data) != string(want) {
		t.Errorf("data = %v, want %v", got.Data, want)
	}
	gotTexts := <-textsCh
	if len(gotTexts) != 3 || gotTexts[0] != " " || gotTexts[1] != "Maybe " || gotTexts[2] != "" {
		t.Errorf("server saw texts %q", gotTexts)
	}
}

// ---- Voice list response parsing ----

func TestParseVoicesResponse_Success(t *testing.T) {
	raw := []byte(`{
		"voices": [
			{
				"voice_id": "abc123",
				"name": "Rachel",
				"category": "premade",
				"labels": {"gender": "female", "accent": "american"}
			},
			{
				"voice_id": "def456",
				"name": "Fin",
				"category": "premade",
				"labels": {"gender": "male"}
			}
		]
	}`)

	profiles, err := parseVoicesResponse(raw)
	if err != nil {
		t.Fatalf("parseVoicesResponse: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}

	rachel := profiles[0]
	if rachel.ID != "abc123" {
		t.Errorf("expected ID 'abc123', got %q", rachel.ID)
	}
	if rachel.Provider != "elevenlabs" {
		t.Errorf("expected Provider 'elevenlabs', got %q", rachel.Provider)
	}
	if rachel.Metadata["gender"] != "female" {
		t.Errorf("expected gender 'female', got %q", rachel.Metadata["gender"])
	}
	if rachel.Metadata["category"] != "premade" {
		t.Errorf("expected category 'premade', got %q", rachel.Metadata["category"])
	}
}

func TestParseVoicesResponse_InvalidJSON(t *testing.T) {
	if _, err := parseVoicesResponse([]byte(`{invalid`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestListVoices_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != voicesPath {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"voices":[{"voice_id":"x1","name":"Ghost","category":"","labels":null}]}`)
	}))
	t.Cleanup(srv.Close)

	p, _ := New("key", WithBaseURL(srv.URL))
	profiles, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(profiles) != 1 || profiles[0].ID != "x1" {
		t.Fatalf("profiles = %+v", profiles)
	}
	if _, ok := profiles[0].Metadata["category"]; ok {
		t.Error("expected no 'category' key in metadata when category is empty")
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_UnsupportedFormat(t *testing.T) {
	if _, err := New("key", WithOutputFormat("opus_48000_64")); err == nil {
		t.Error("expected error for unsupported output format")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("expected model %q, got %q", defaultModel, p.model)
	}
	if p.outputFormat != defaultOutputFmt {
		t.Errorf("expected outputFormat %q, got %q", defaultOutputFmt, p.outputFormat)
	}
	if p.encoding != audio.EncodingMP3 {
		t.Errorf("expected mp3 encoding, got %q", p.encoding)
	}
}
