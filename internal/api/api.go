// Package api exposes the oracle over HTTP.
//
// Routes:
//
//   - GET  /                             service banner
//   - GET  /api/voices                   available voices and their descriptions
//   - GET  /api/voices/{name}/available  whether one voice can be synthesized
//   - POST /api/classic                  {voice?}
//   - POST /api/what-to-eat              {question?, latitude?, longitude?, voice?}
//   - POST /api/ask-anything             {question, voice?}
//   - GET  /audio/...                    generated and prerecorded audio files
//
// Malformed requests get 400 and unexpected failures 500, both with a
// {"detail": "..."} body.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MrWong99/conch/internal/observe"
	"github.com/MrWong99/conch/internal/oracle"
	"github.com/MrWong99/conch/internal/speech"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// defaultFoodQuestion is asked on behalf of callers who send no question to
// /api/what-to-eat.
const defaultFoodQuestion = "What should I eat?"

// Oracle answers the three question endpoints. *oracle.Service implements it.
type Oracle interface {
	Classic(ctx context.Context, voice string) oracle.Answer
	AskAnything(ctx context.Context, question, voice string) oracle.Answer
	WhatToEat(ctx context.Context, question string, at *oracle.Coordinates, voice string) oracle.Answer
}

// VoiceSource yields the current voice table. *speech.Speaker implements it.
type VoiceSource interface {
	Voices() *speech.VoiceTable
}

// Handler serves the conch API. It holds no per-request state.
type Handler struct {
	oracle   Oracle
	voices   VoiceSource
	audioDir string
}

// New returns a Handler answering with o, listing voices from vs and serving
// audio files from audioDir.
func New(o Oracle, vs VoiceSource, audioDir string) *Handler {
	return &Handler{oracle: o, voices: vs, audioDir: audioDir}
}

// Register adds every API route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.root)
	mux.HandleFunc("GET /api/voices", h.listVoices)
	mux.HandleFunc("GET /api/voices/{name}/available", h.voiceAvailable)
	mux.HandleFunc("POST /api/classic", h.classic)
	mux.HandleFunc("POST /api/what-to-eat", h.whatToEat)
	mux.HandleFunc("POST /api/ask-anything", h.askAnything)
	mux.Handle("GET /audio/", http.StripPrefix("/audio", audioFiles(h.audioDir)))
}

// ── request/response shapes ─────────────────────────────────────────────────

type classicRequest struct {
	Voice string `json:"voice"`
}

type askRequest struct {
	Question string `json:"question"`
	Voice    string `json:"voice"`
}

type foodRequest struct {
	Question  string   `json:"question"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Voice     string   `json:"voice"`
}

type restaurant struct {
	Name       string  `json:"name"`
	Address    string  `json:"address"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Rating     float64 `json:"rating"`
	Category   string  `json:"category"`
	PriceLevel string  `json:"price_level,omitempty"`
}

type answerResponse struct {
	Message    string      `json:"message"`
	AudioURL   string      `json:"audio_url"`
	Restaurant *restaurant `json:"restaurant,omitempty"`
	MapsURL    string      `json:"maps_url,omitempty"`
}

func newAnswerResponse(a oracle.Answer) answerResponse {
	resp := answerResponse{Message: a.Message, AudioURL: a.AudioURL, MapsURL: a.MapsURL}
	if v := a.Venue; v != nil {
		resp.Restaurant = &restaurant{
			Name:       v.Name,
			Address:    v.Address,
			Latitude:   v.Latitude,
			Longitude:  v.Longitude,
			Rating:     v.Rating,
			Category:   v.Category,
			PriceLevel: v.PriceLevel,
		}
	}
	return resp
}

type voicesResponse struct {
	Voices     map[string]string `json:"voices"`
	TotalCount int               `json:"total_count"`
}

type availabilityResponse struct {
	Voice     string `json:"voice"`
	Available bool   `json:"available"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// ── handlers ────────────────────────────────────────────────────────────────

func (h *Handler) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"Hello": "This is TheConch API"})
}

func (h *Handler) listVoices(w http.ResponseWriter, _ *http.Request) {
	desc := h.voices.Voices().Descriptions()
	writeJSON(w, http.StatusOK, voicesResponse{Voices: desc, TotalCount: len(desc)})
}

func (h *Handler) voiceAvailable(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	writeJSON(w, http.StatusOK, availabilityResponse{Voice: name, Available: h.voices.Voices().Available(name)})
}

func (h *Handler) classic(w http.ResponseWriter, r *http.Request) {
	var req classicRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newAnswerResponse(h.oracle.Classic(r.Context(), req.Voice)))
}

func (h *Handler) askAnything(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := strings.TrimSpace(req.Question)
	if q == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	writeJSON(w, http.StatusOK, newAnswerResponse(h.oracle.AskAnything(r.Context(), q, req.Voice)))
}

func (h *Handler) whatToEat(w http.ResponseWriter, r *http.Request) {
	var req foodRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	at, err := coordinates(req.Latitude, req.Longitude)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := strings.TrimSpace(req.Question)
	if q == "" {
		q = defaultFoodQuestion
	}
	writeJSON(w, http.StatusOK, newAnswerResponse(h.oracle.WhatToEat(r.Context(), q, at, req.Voice)))
}

// coordinates returns nil unless both values are present. Present values must
// be valid WGS84 degrees.
func coordinates(lat, lon *float64) (*oracle.Coordinates, error) {
	if lat != nil && (*lat < -90 || *lat > 90) {
		return nil, fmt.Errorf("latitude %g is out of range [-90, 90]", *lat)
	}
	if lon != nil && (*lon < -180 || *lon > 180) {
		return nil, fmt.Errorf("longitude %g is out of range [-180, 180]", *lon)
	}
	if lat == nil || lon == nil {
		return nil, nil
	}
	return &oracle.Coordinates{Latitude: *lat, Longitude: *lon}, nil
}

// ── helpers ─────────────────────────────────────────────────────────────────

// decodeBody decodes a single JSON object from r into v. An empty body is
// accepted only when allowEmpty is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return fmt.Errorf("malformed request body: %w", err)
	}
	if dec.More() {
		return errors.New("malformed request body: trailing data after JSON object")
	}
	return nil
}

// audioFiles serves files below dir without directory listings.
func audioFiles(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

// Recover converts panics in next into 500 responses with a detail body.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			observe.Logger(r.Context()).Error("api: handler panicked",
				"method", r.Method,
				"path", r.URL.Path,
				"panic", rec,
			)
			writeError(w, http.StatusInternalServerError, fmt.Sprint(rec))
		}()
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: encode response", "err", err)
	}
}
