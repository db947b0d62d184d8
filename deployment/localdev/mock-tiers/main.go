// Command mock-tiers serves fake tool and edge tier backends for local
// development, so the engine can be exercised without real services.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"strings"
	"time"
)

type toolCallRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type edgeResolveRequest struct {
	Summary     string `json:"summary"`
	Description string `json:"description"`
}

func main() {
	var toolAddr, edgeAddr string
	flag.StringVar(&toolAddr, "tool-addr", ":8001", "Tool backend listen address")
	flag.StringVar(&edgeAddr, "edge-addr", ":8002", "Edge backend listen address")
	flag.Parse()

	toolLogger := log.New(log.Writer(), "tool-mock ", log.LstdFlags|log.Lmicroseconds)
	edgeLogger := log.New(log.Writer(), "edge-mock ", log.LstdFlags|log.Lmicroseconds)

	go func() {
		srv := &http.Server{Addr: toolAddr, Handler: logRequests(toolLogger, toolMux())}
		toolLogger.Printf("listening on %s", toolAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			toolLogger.Fatalf("server error: %v", err)
		}
	}()

	srv := &http.Server{Addr: edgeAddr, Handler: logRequests(edgeLogger, edgeMux())}
	edgeLogger.Printf("listening on %s", edgeAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		edgeLogger.Fatalf("server error: %v", err)
	}
}

func toolMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"status":          "healthy",
			"tools_available": []string{"check_disk_space", "check_service_status", "ping_host"},
		})
	})

	mux.HandleFunc("/tools", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"tools": []map[string]string{
				{"name": "check_disk_space", "description": "Report filesystem usage"},
				{"name": "check_service_status", "description": "Query a systemd unit"},
				{"name": "ping_host", "description": "ICMP reachability probe"},
			},
		})
	})

	mux.HandleFunc("/tools/call", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req toolCallRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch req.Name {
		case "check_disk_space":
			writeJSON(w, map[string]any{
				"success": true,
				"result": map[string]any{
					"usage_percent": 94,
					"mounts":        []string{"/", "/var"},
				},
				"execution_time_ms": 42,
			})
		case "ping_host":
			writeJSON(w, map[string]any{
				"success":           true,
				"result":            map[string]any{"reachable": true, "rtt_ms": 1.4},
				"execution_time_ms": 12,
			})
		default:
			writeJSON(w, map[string]any{
				"success":           false,
				"error":             "unknown tool: " + req.Name,
				"execution_time_ms": 1,
			})
		}
	})

	return mux
}

func edgeMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"status": "healthy", "model_loaded": true, "kb_entries": 12})
	})

	mux.HandleFunc("/resolve", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req edgeResolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		// Low confidence for anything mentioning "database" so the cloud
		// escalation path can be exercised locally.
		if strings.Contains(strings.ToLower(req.Summary), "database") {
			writeJSON(w, map[string]any{
				"confidence":        0.45,
				"resolution":        "",
				"reasoning":         "no matching knowledge base entry",
				"should_escalate":   true,
				"escalation_reason": "unfamiliar failure mode",
				"tokens_input":      180,
				"tokens_output":     40,
			})
			return
		}
		writeJSON(w, map[string]any{
			"confidence":        0.85,
			"resolution":        "Restart the affected service and clear its cache directory.",
			"reasoning":         "matched a known incident pattern",
			"similar_incidents": 3,
			"should_escalate":   false,
			"tokens_input":      210,
			"tokens_output":     95,
		})
	})

	mux.HandleFunc("/kb/add", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{"added": true})
	})

	return mux
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
