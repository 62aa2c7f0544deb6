package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/LancemDev/LostLink/internal/blobstore"
	"github.com/LancemDev/LostLink/internal/claim"
	"github.com/LancemDev/LostLink/internal/config"
	"github.com/LancemDev/LostLink/internal/docstore"
	"github.com/LancemDev/LostLink/internal/match"
	"github.com/LancemDev/LostLink/internal/model"
	"github.com/LancemDev/LostLink/internal/queue"
	"github.com/LancemDev/LostLink/internal/repository"
	"github.com/LancemDev/LostLink/internal/signing"
	"github.com/LancemDev/LostLink/internal/submit"
)

// Server exposes the registry over HTTP: report filing and history for users,
// found-item submission with photo upload, and the admin claim/reconciliation
// surface.
type Server struct {
	cfg          *config.Config
	repo         *repository.Items
	store        docstore.Store
	engine       *match.Engine
	workflow     *claim.Workflow
	orchestrator *submit.Orchestrator
	signer       *signing.Signer
	presigner    *blobstore.MinioStore
	queue        *asynq.Client
	server       *http.Server
	once         sync.Once
}

// Options carries the server dependencies. Queue and Presigner are optional:
// without a queue, background jobs run in-process; without a presigner,
// URL-mode photos redirect to their stored URL.
type Options struct {
	Config       *config.Config
	Repo         *repository.Items
	Store        docstore.Store
	Engine       *match.Engine
	Workflow     *claim.Workflow
	Orchestrator *submit.Orchestrator
	Signer       *signing.Signer
	Presigner    *blobstore.MinioStore
	Queue        *asynq.Client
}

// New constructs a Server.
func New(opts Options) *Server {
	return &Server{
		cfg:          opts.Config,
		repo:         opts.Repo,
		store:        opts.Store,
		engine:       opts.Engine,
		workflow:     opts.Workflow,
		orchestrator: opts.Orchestrator,
		signer:       opts.Signer,
		presigner:    opts.Presigner,
		queue:        opts.Queue,
	}
}

// Handler builds the route table wrapped in the CORS and logging middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/reports", s.handleReports)
	mux.HandleFunc("/items", s.handleItems)
	mux.HandleFunc("/items/", s.handleItemRoute)
	mux.HandleFunc("/operations/", s.handleOperationRoute)
	mux.HandleFunc("/admin/items", s.requireAdmin(s.handleAdminFound))
	mux.HandleFunc("/admin/claimed", s.requireAdmin(s.handleAdminClaimed))
	mux.HandleFunc("/admin/unreconciled", s.requireAdmin(s.handleUnreconciled))
	mux.HandleFunc("/admin/reconcile", s.requireAdmin(s.handleReconcile))
	mux.HandleFunc("/admin/feed/items", s.requireAdmin(s.handleItemFeed))
	return corsMiddleware(loggingMiddleware(mux))
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: s.Handler(),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	log.Printf("api listening on %s", s.cfg.Address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateReport(w, r)
	case http.MethodGet:
		s.handleReportHistory(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type reportRequest struct {
	UserID              string `json:"userId"`
	Category            string `json:"category"`
	ItemName            string `json:"itemName"`
	Description         string `json:"description"`
	LocationDescription string `json:"locationDescription"`
	DateLost            string `json:"dateLost"`
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	category, err := model.ParseCategory(req.Category)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	in := repository.ReportInput{
		UserID:              req.UserID,
		Category:            category,
		ItemName:            req.ItemName,
		Description:         req.Description,
		LocationDescription: req.LocationDescription,
	}
	if req.DateLost != "" {
		if t, err := time.Parse(time.RFC3339, req.DateLost); err == nil {
			in.DateLost = t
		}
	}
	id, err := s.repo.CreateLostReport(ctx, in)
	if err != nil {
		respondError(w, err)
		return
	}
	// Fire-and-forget: matching must never fail the submission.
	s.triggerMatch(ctx, id)
	respondJSON(w, http.StatusCreated, map[string]string{
		"id":     id,
		"status": string(model.ReportPending),
	})
}

func (s *Server) triggerMatch(ctx context.Context, reportID string) {
	if s.queue != nil {
		if err := queue.EnqueueMatch(ctx, s.queue, queue.MatchPayload{ReportID: reportID}); err != nil {
			log.Printf("enqueue match for %s: %v", reportID, err)
		}
		return
	}
	go s.engine.Run(context.WithoutCancel(ctx), reportID)
}

func (s *Server) handleReportHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	// Degrades to an empty list on store failure; "history unavailable"
	// renders the same as "no history".
	reports := s.repo.FetchReportsForUser(r.Context(), userID)
	if reports == nil {
		reports = []model.LostReport{}
	}
	respondJSON(w, http.StatusOK, reports)
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxImageBytes+64*1024)
	if err := r.ParseMultipartForm(s.cfg.MaxImageBytes); err != nil {
		http.Error(w, "expecting multipart form", http.StatusBadRequest)
		return
	}
	category, err := model.ParseCategory(r.FormValue("category"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	in := repository.FoundItemInput{
		AddedBy:             r.FormValue("addedBy"),
		Category:            category,
		ItemName:            r.FormValue("itemName"),
		Description:         r.FormValue("description"),
		LocationDescription: r.FormValue("locationDescription"),
		Status:              model.ItemStatus(r.FormValue("status")),
	}
	if v := r.FormValue("dateFound"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			in.DateFound = t
		}
	}
	asset, contentType, err := readPhoto(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	opID := s.orchestrator.Submit(r.Context(), in, asset, contentType)
	respondJSON(w, http.StatusAccepted, map[string]string{
		"operationId": opID,
		"status":      string(submit.StatusLoading),
	})
}

// readPhoto pulls the optional photo part out of the form, sniffing and
// checking its content type.
func readPhoto(r *http.Request) ([]byte, string, error) {
	file, _, err := r.FormFile("photo")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("read photo part: %w", err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("read photo: %w", err)
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty photo")
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("unsupported photo type %s", contentType)
	}
	return data, contentType, nil
}

func (s *Server) handleItemRoute(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/items/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	if len(parts) == 1 {
		s.handleItem(w, r, id)
		return
	}
	switch parts[1] {
	case "image":
		s.handleItemImage(w, r, id)
	case "claim":
		s.requireAdmin(func(w http.ResponseWriter, r *http.Request) {
			s.handleClaim(w, r, id)
		})(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleItem(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	item, err := s.repo.GetFoundItem(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleItemImage(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	item, err := s.repo.GetFoundItem(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if item.Image == nil || item.Image.IsZero() {
		http.Error(w, "item has no photo", http.StatusNotFound)
		return
	}
	if item.Image.Inline != "" {
		data, err := base64.StdEncoding.DecodeString(item.Image.Inline)
		if err != nil {
			http.Error(w, "corrupt inline photo", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", http.DetectContentType(data))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}
	if s.presigner != nil && item.Image.Key != "" {
		signed, err := s.presigner.PresignGet(r.Context(), item.Image.Key, s.cfg.SignedURLTTL)
		if err == nil {
			http.Redirect(w, r, signed, http.StatusTemporaryRedirect)
			return
		}
		log.Printf("presign photo for %s: %v", id, err)
	}
	http.Redirect(w, r, item.Image.URL, http.StatusTemporaryRedirect)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// The delete-then-insert move runs detached from the request: a client
	// disconnect between the two steps must not manufacture a partial
	// failure, and scheduling the repair must outlive the request too.
	ctx := context.WithoutCancel(r.Context())
	claimed, err := s.workflow.Claim(ctx, id)
	if err != nil {
		var partial *model.PartialFailureError
		if errors.As(err, &partial) {
			// The found item is gone but the claimed insert failed. Schedule
			// the repair and tell the operator exactly what happened.
			s.scheduleFinalize(ctx, id)
			respondJSON(w, http.StatusInternalServerError, map[string]string{
				"error":  "claim partially failed; recovery scheduled",
				"code":   "partial_failure",
				"itemId": id,
			})
			return
		}
		var notFound *model.NotFoundError
		if errors.As(err, &notFound) {
			respondJSON(w, http.StatusConflict, map[string]string{
				"error": "item already claimed",
			})
			return
		}
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, claimed)
}

func (s *Server) scheduleFinalize(ctx context.Context, id string) {
	if s.queue != nil {
		if err := queue.EnqueueFinalize(ctx, s.queue, queue.FinalizePayload{FoundItemID: id}); err != nil {
			log.Printf("enqueue finalize for %s: %v", id, err)
		}
		return
	}
	go func() {
		if err := s.workflow.Finalize(ctx, id); err != nil {
			log.Printf("finalize claim %s: %v", id, err)
		}
	}()
}

func (s *Server) handleOperationRoute(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/operations/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		respondJSON(w, http.StatusOK, s.orchestrator.Status(id))
		return
	}
	if parts[1] == "reset" && r.Method == http.MethodPost {
		s.orchestrator.Reset(id)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.NotFound(w, r)
}

func (s *Server) handleAdminFound(w http.ResponseWriter, r *http.Request) {
	items, err := s.repo.ListFound(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (s *Server) handleAdminClaimed(w http.ResponseWriter, r *http.Request) {
	items, err := s.repo.ListClaimed(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (s *Server) handleUnreconciled(w http.ResponseWriter, r *http.Request) {
	ids, err := s.workflow.Unreconciled(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	respondJSON(w, http.StatusOK, map[string][]string{"itemIds": ids})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	repaired, err := s.workflow.Reconcile(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	if repaired == nil {
		repaired = []string{}
	}
	respondJSON(w, http.StatusOK, map[string][]string{"repaired": repaired})
}

// handleItemFeed streams found-collection snapshots as server-sent events,
// backed by the store's change subscription.
func (s *Server) handleItemFeed(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	feed, cancel, err := s.store.Subscribe(r.Context(), docstore.CollectionFoundItems)
	if err != nil {
		respondError(w, err)
		return
	}
	defer cancel()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case docs, open := <-feed:
			if !open {
				return
			}
			payload, err := json.Marshal(docs)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			http.Error(w, "missing admin token", http.StatusUnauthorized)
			return
		}
		if _, ok := s.signer.Validate(token); !ok {
			http.Error(w, "invalid admin token", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func respondError(w http.ResponseWriter, err error) {
	var validation *model.ValidationError
	if errors.As(err, &validation) {
		http.Error(w, validation.Error(), http.StatusBadRequest)
		return
	}
	var notFound *model.NotFoundError
	if errors.As(err, &notFound) {
		http.Error(w, notFound.Error(), http.StatusNotFound)
		return
	}
	log.Printf("request failed: %v", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}
