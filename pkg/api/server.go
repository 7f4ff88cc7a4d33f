package api

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"

	"github.com/muvahhid/molayeri-sub002/pkg/access"
	"github.com/muvahhid/molayeri-sub002/pkg/listing"
	"github.com/muvahhid/molayeri-sub002/pkg/photo"
	"github.com/muvahhid/molayeri-sub002/util"
	"github.com/muvahhid/molayeri-sub002/util/log"
)

// UserHeader carries the signed-in user's ID, set by the auth proxy in front
// of the panel.
const UserHeader = "X-User-ID"

// Options configures a Server.
type Options struct {
	Addr           string
	MaxUploadBytes int64
	UploadRate     float64 // upload requests per second, 0 disables limiting
	UploadBurst    int
	MaxConns       int // concurrent connections, 0 means unlimited
	MaxCount       int
	MinCount       int
	AllowedOrigins []string // extra websocket origins besides the serving host
}

// Server is the merchant panel's REST/WebSocket server.
type Server struct {
	opts       Options
	httpServer *http.Server
	mux        *http.ServeMux
	upgrader   websocket.Upgrader

	// WebSocket management
	clients   map[*wsClient]struct{}
	clientsMu sync.Mutex

	normalizer *photo.Normalizer
	publisher  *listing.Publisher
	previews   *photo.PreviewStore
	guard      *access.Guard
	roles      access.RoleLookup
	limiter    *rate.Limiter

	stopping *util.SafeFlag
	inFlight *util.SafeCounter // uploads being normalized

	// Draft batches per listing ID
	drafts   map[string]*photo.Batch
	draftsMu sync.Mutex
}

// NewServer creates a new API server. previews may be nil.
func NewServer(opts Options, n *photo.Normalizer, pub *listing.Publisher, previews *photo.PreviewStore, roles access.RoleLookup) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	if opts.MaxCount <= 0 {
		opts.MaxCount = photo.DefaultMaxCount
	}
	if opts.MinCount <= 0 {
		opts.MinCount = photo.DefaultMinCount
	}

	limit := rate.Inf
	if opts.UploadRate > 0 {
		limit = rate.Limit(opts.UploadRate)
	}
	burst := opts.UploadBurst
	if burst <= 0 {
		burst = 1
	}

	s := &Server{
		opts: opts,
		mux:  http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: checkOrigin(opts.AllowedOrigins),
		},
		clients:    make(map[*wsClient]struct{}),
		normalizer: n,
		publisher:  pub,
		previews:   previews,
		guard:      access.NewGuard(access.DefaultRules()),
		roles:      roles,
		limiter:    rate.NewLimiter(limit, burst),
		drafts:     make(map[string]*photo.Batch),
		stopping:   util.NewSafeFlag(false),
		inFlight:   util.NewSafeCounter(0),
	}
	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:    opts.Addr,
		Handler: s.mux,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.enableCORS(s.handleHealth))
	s.mux.HandleFunc("GET /ws", s.authorize(s.handleWebSocket))

	s.mux.HandleFunc("POST /api/photos/normalize", s.enableCORS(s.authorize(s.limitUploads(s.handleNormalize))))

	s.mux.HandleFunc("GET /merchant/listings/{id}/photos", s.enableCORS(s.authorize(s.handleListDraft)))
	s.mux.HandleFunc("POST /merchant/listings/{id}/photos", s.enableCORS(s.authorize(s.limitUploads(s.handleAddPhotos))))
	s.mux.HandleFunc("DELETE /merchant/listings/{id}/photos/{photoID}", s.enableCORS(s.authorize(s.handleRemovePhoto)))
	s.mux.HandleFunc("POST /merchant/listings/{id}/photos/{photoID}/cover", s.enableCORS(s.authorize(s.handleSetCover)))
	s.mux.HandleFunc("POST /merchant/listings/{id}/submit", s.enableCORS(s.authorize(s.handleSubmit)))

	s.mux.HandleFunc("DELETE /merchant/listings/{id}", s.enableCORS(s.authorize(s.handleDeleteListing)))
	s.mux.HandleFunc("DELETE /merchant/listings/{id}/published/{photoID}", s.enableCORS(s.authorize(s.handleRemovePublished)))
	s.mux.HandleFunc("POST /merchant/listings/{id}/published/{photoID}/cover", s.enableCORS(s.authorize(s.handleSetPublishedCover)))
	s.mux.HandleFunc("OPTIONS /", s.enableCORS(func(w http.ResponseWriter, r *http.Request) {}))

	if s.previews != nil {
		s.ServeDir("/previews", s.previews.Dir())
	}
}

// enableCORS adds CORS headers to the handler.
func (s *Server) enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+UserHeader)

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// authorize resolves the caller's session and runs the route guard.
func (s *Server) authorize(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := access.Resolve(r.Context(), s.roles, r.Header.Get(UserHeader))
		if err != nil {
			log.Printf("API: role lookup failed: %v", err)
			writeError(w, http.StatusServiceUnavailable, "role lookup unavailable")
			return
		}

		d := s.guard.Check(session, r.URL.Path)
		if !d.Allowed {
			status := http.StatusForbidden
			if !session.Authenticated() {
				status = http.StatusUnauthorized
			}
			writeJSON(w, status, map[string]string{
				"error":    http.StatusText(status),
				"redirect": d.Redirect,
			})
			return
		}

		next(w, r.WithContext(withSession(r.Context(), session)))
	}
}

// limitUploads rejects uploads beyond the configured rate and while stopping.
func (s *Server) limitUploads(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.stopping.Value() {
			writeError(w, http.StatusServiceUnavailable, "server is shutting down")
			return
		}
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "too many uploads, slow down")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
		s.inFlight.Increment()
		defer s.inFlight.Add(-1)
		next(w, r)
	}
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens on the configured address and serves until Stop is called.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections on l, at most MaxConns at a time.
func (s *Server) Serve(l net.Listener) error {
	if s.opts.MaxConns > 0 {
		l = netutil.LimitListener(l, s.opts.MaxConns)
	}
	log.Printf("API: listening on %s", l.Addr())
	return s.httpServer.Serve(l)
}

// Stop closes websocket clients, shuts the HTTP server down and releases
// the previews of every draft.
func (s *Server) Stop(ctx context.Context) error {
	if !s.stopping.SetOnce() {
		return nil
	}

	s.clientsMu.Lock()
	for c := range s.clients {
		s.removeClientLocked(c)
	}
	s.clientsMu.Unlock()

	err := s.httpServer.Shutdown(ctx)

	s.draftsMu.Lock()
	for id, b := range s.drafts {
		b.Close()
		delete(s.drafts, id)
	}
	s.draftsMu.Unlock()
	return err
}

// lookupDraft returns the draft batch for a listing if one exists.
func (s *Server) lookupDraft(listingID string) (*photo.Batch, bool) {
	s.draftsMu.Lock()
	defer s.draftsMu.Unlock()
	b, ok := s.drafts[listingID]
	return b, ok
}

// emptyDraft is a throwaway batch for listings that have no draft yet.
func (s *Server) emptyDraft() *photo.Batch {
	return photo.NewBatch(s.opts.MaxCount, s.opts.MinCount, nil)
}

// draftCount returns the number of listings with a draft in memory.
func (s *Server) draftCount() int {
	s.draftsMu.Lock()
	defer s.draftsMu.Unlock()
	return len(s.drafts)
}

// draft returns the draft batch for a listing, creating it on first use.
// Only uploads create drafts.
func (s *Server) draft(listingID string) *photo.Batch {
	s.draftsMu.Lock()
	defer s.draftsMu.Unlock()

	b, ok := s.drafts[listingID]
	if !ok {
		var previews photo.PreviewReleaser
		if s.previews != nil {
			previews = s.previews
		}
		b = photo.NewBatch(s.opts.MaxCount, s.opts.MinCount, previews)
		s.drafts[listingID] = b
	}
	return b
}

// dropDraft forgets a draft and releases its previews.
func (s *Server) dropDraft(listingID string) {
	s.draftsMu.Lock()
	b, ok := s.drafts[listingID]
	delete(s.drafts, listingID)
	s.draftsMu.Unlock()

	if ok {
		b.Close()
	}
}
