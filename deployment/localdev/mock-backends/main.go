package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatChoice struct {
	Index   int         `json:"index"`
	Message chatMessage `json:"message"`
}

// mode selects how the fake inference deployment answers.
// ok returns a diagnosis, fail returns HTTP 500, garbage returns non-JSON content.
var mode atomic.Value

func main() {
	addr := flag.String("addr", ":8090", "Listen address")
	initial := flag.String("mode", "ok", "Inference mode: ok, fail, garbage, slow")
	flag.Parse()
	mode.Store(*initial)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/mode", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if m := r.URL.Query().Get("set"); m != "" {
				mode.Store(m)
			}
		}
		writeJSON(w, map[string]any{"mode": mode.Load()})
	})

	mux.HandleFunc("/openai/deployments/{deployment}/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		if r.Header.Get("api-key") == "" {
			http.Error(w, `{"error":{"code":"401","message":"Access denied due to missing key"}}`, http.StatusUnauthorized)
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		content := `{"simplified_error":"The copy activity could not log in to the SQL database.","probable_reason":"The linked service password has expired or was rotated.","probable_fix":"Update the linked service secret in Key Vault and rerun the pipeline."}`
		switch mode.Load() {
		case "fail":
			http.Error(w, `{"error":{"code":"InternalServerError","message":"mock failure"}}`, http.StatusInternalServerError)
			return
		case "garbage":
			content = "I think the database is unhappy."
		case "slow":
			time.Sleep(30 * time.Second)
		}
		if req.MaxTokens == 1 {
			content = "P"
		}
		writeJSON(w, map[string]any{
			"id":      "chatcmpl-mock",
			"object":  "chat.completion",
			"model":   r.PathValue("deployment"),
			"choices": []chatChoice{{Message: chatMessage{Role: "assistant", Content: content}}},
		})
	})

	mux.HandleFunc("/teams/webhook", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var card map[string]any
		if err := json.NewDecoder(r.Body).Decode(&card); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("teams card: %v", card["title"])
		_, _ = w.Write([]byte("1"))
	})

	mux.HandleFunc("/{tenant}/oauth2/v2.0/token", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("client_secret") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]any{"error": "invalid_client"})
			return
		}
		writeJSON(w, map[string]any{
			"token_type":   "Bearer",
			"expires_in":   3599,
			"access_token": "mock-token-" + r.PathValue("tenant"),
		})
	})

	mux.HandleFunc("/v1.0/users/{sender}/sendMail", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		log.Printf("sendMail from %s: %d bytes", r.PathValue("sender"), len(body))
		w.WriteHeader(http.StatusAccepted)
	})

	logger := log.New(log.Writer(), "backends-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           logRequests(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Printf("listening on %s (mode=%s)", *addr, *initial)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
