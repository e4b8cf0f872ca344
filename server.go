package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"math"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/akl7777777/number-intel/internal/lookup"
	"github.com/akl7777777/number-intel/internal/model"
	"github.com/akl7777777/number-intel/internal/stats"
)

// ServerOptions carries the HTTP-facing settings.
type ServerOptions struct {
	Name            string
	AdminKey        string
	TrustXFF        bool
	StatsBackend    string
	CacheMax        int
	UpstreamTimeout time.Duration
}

// Server is the HTTP server.
type Server struct {
	service *lookup.Service
	opts    ServerOptions
	started time.Time
	router  chi.Router
}

// NewServer creates a new HTTP server.
func NewServer(svc *lookup.Service, opts ServerOptions) *Server {
	s := &Server{
		service: svc,
		opts:    opts,
		started: svc.Clock().Now(),
		router:  chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(requestID, accessLog, recoverer, cors)

	r.Get("/lookup", s.handleLookup)
	r.Get("/api", s.handleLookup)
	r.Get("/health", s.handleHealth)
	r.Get("/test", s.handleTest)
	r.Get("/stats", s.handleStats)
	r.Post("/admin/keys", s.handleAddKey)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, model.CodeNotFound, "Endpoint not found. Use /lookup for number information")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, model.CodeMethodNotAllowed, "Method not allowed")
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	req := lookup.Request{
		Key:      apiKey(r),
		Identity: clientIdentity(r, s.opts.TrustXFF),
		Number:   r.URL.Query().Get("number"),
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.service.Limiter().Limit()))

	res, err := s.service.Lookup(r.Context(), req)
	if err != nil {
		var le *lookup.Error
		if !errors.As(err, &le) {
			le = lookup.Internal(err)
		}
		if le.Code == model.CodeRateLimited {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(le.RetryAfter)))
		}
		writeJSON(w, le.Status, le.Envelope())
		return
	}

	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	if res.Cached {
		writeJSON(w, http.StatusOK, model.Cached(res.Payload, res.FetchedAt, s.opts.Name))
		return
	}
	writeJSON(w, http.StatusOK, model.Fresh(res.Payload, res.FetchedAt, s.opts.Name))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.service.Clock().Now()
	writeJSON(w, http.StatusOK, &model.HealthResponse{
		Status:    "ok",
		Server:    s.opts.Name,
		Timestamp: now.UTC().Format(time.RFC3339),
		Uptime:    now.Sub(s.started).Seconds(),
		CacheSize: s.service.Cache().Len(),
	})
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &model.MessageResponse{
		Success:   true,
		Message:   "API is working!",
		Server:    s.opts.Name,
		Timestamp: s.service.Clock().Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	key := apiKey(r)
	if key == "" {
		writeError(w, http.StatusUnauthorized, model.CodeMissingKey, "Please provide an API key")
		return
	}
	if !s.service.Keys().Valid(key) {
		writeError(w, http.StatusUnauthorized, model.CodeInvalidKey, "Please provide valid API key")
		return
	}

	c := s.service.Cache()
	l := s.service.Limiter()
	resp := &model.StatsResponse{
		CacheSize:       c.Len(),
		CacheTTL:        c.TTL().String(),
		CacheMaxEntries: s.opts.CacheMax,
		Keys:            s.service.Keys().Len(),
		RateLimit:       l.Limit(),
		RateWindow:      l.Window().String(),
		TrackedClients:  l.Identities(),
		UpstreamTimeout: s.opts.UpstreamTimeout.String(),
		StatsBackend:    s.opts.StatsBackend,
		LocalDB:         s.service.ASN().Loaded(),
	}
	if counter, ok := s.service.Stats().(stats.Counter); ok {
		resp.Outcomes = counter.Outcomes()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddKey(w http.ResponseWriter, r *http.Request) {
	if !s.adminAuthorized(r) {
		writeError(w, http.StatusUnauthorized, model.CodeUnauthorized, "Admin credential required")
		return
	}

	var key string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Key string `json:"key"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, model.CodeInvalidBody, "Body must be JSON like {\"key\":\"...\"}")
			return
		}
		key = body.Key
	} else {
		key = r.FormValue("key")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		writeError(w, http.StatusBadRequest, model.CodeMissingParameter, "Please provide key parameter")
		return
	}

	keys := s.service.Keys()
	if !keys.Add(key) {
		writeJSON(w, http.StatusOK, &model.KeyAddedResponse{Success: true, Message: "Key already exists", Keys: keys.Len()})
		return
	}
	log.Printf("[admin] API key added (total %d)", keys.Len())
	writeJSON(w, http.StatusCreated, &model.KeyAddedResponse{Success: true, Message: "Key added", Added: true, Keys: keys.Len()})
}

func (s *Server) adminAuthorized(r *http.Request) bool {
	if s.opts.AdminKey == "" {
		return false
	}
	token := r.Header.Get("X-Admin-Key")
	if token == "" {
		auth := r.Header.Get("Authorization")
		token = strings.TrimPrefix(auth, "Bearer ")
		if token == auth {
			token = ""
		}
	}
	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.AdminKey)) == 1
}

// apiKey reads the caller's key from the query string or X-API-Key.
func apiKey(r *http.Request) string {
	if k := r.URL.Query().Get("key"); k != "" {
		return k
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// clientIdentity picks the rate-limit bucket for r: the first
// X-Forwarded-For hop when trusted, else the remote host.
func clientIdentity(r *http.Request, trustXFF bool) string {
	if trustXFF {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// ---- Middleware ----

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		log.Printf("[http] %s %s %d %s rid=%s", r.Method, r.URL.Path, status, time.Since(start), w.Header().Get("X-Request-ID"))
	})
}

// recoverer turns a panicking handler into an internal_error envelope.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.Printf("[http] panic serving %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
			writeError(w, http.StatusInternalServerError, model.CodeInternal, "Something went wrong")
		}()
		next.ServeHTTP(w, r)
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[http] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code model.ErrorCode, msg string) {
	writeJSON(w, status, model.Failure(code, msg, 0))
}
