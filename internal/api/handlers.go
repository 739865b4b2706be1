package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"leadharvest/internal/ai"
	"leadharvest/internal/auth"
	"leadharvest/internal/core"
	"leadharvest/internal/observability"
	"leadharvest/internal/scraper"
	"leadharvest/internal/store"
)

// maxPagesCap is the server-side safety ceiling regardless of what the client
// asks for; site-specific bounds are enforced below it by the adapter.
const maxPagesCap = 20

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id, err := s.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int{"id": id})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, expires, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		respondError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookie); err == nil {
		s.auth.Logout(r.Context(), cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.OwnerID(r.Context())
	limit, offset := parsePagination(r, 20)

	stage := r.URL.Query().Get("stage")
	if stage != "" && !store.ValidStage(stage) {
		respondError(w, http.StatusBadRequest, "Unknown stage: "+stage)
		return
	}

	leads, total, err := s.store.ListLeads(r.Context(), ownerID, stage, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch leads: "+err.Error())
		return
	}
	if leads == nil {
		leads = []store.Lead{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items":  leads,
		"limit":  limit,
		"offset": offset,
		"total":  total,
	})
}

type createLeadRequest struct {
	Title        string `json:"title"`
	Organization string `json:"organization"`
	Location     string `json:"location"`
	Compensation string `json:"compensation"`
	Snippet      string `json:"snippet"`
	DetailURL    string `json:"detail_url"`
	ExternalID   string `json:"external_id"`
	Stage        string `json:"stage"`
	Notes        string `json:"notes"`
}

func (s *Server) handleCreateLead(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.OwnerID(r.Context())

	var req createLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Organization) == "" {
		respondError(w, http.StatusBadRequest, "A title or organization is required")
		return
	}
	if req.Stage != "" && !store.ValidStage(req.Stage) {
		respondError(w, http.StatusBadRequest, "Unknown stage: "+req.Stage)
		return
	}

	id, err := s.store.CreateLead(r.Context(), ownerID, &store.Lead{
		Title:        req.Title,
		Organization: req.Organization,
		Location:     req.Location,
		Compensation: req.Compensation,
		Snippet:      req.Snippet,
		DetailURL:    req.DetailURL,
		ExternalID:   req.ExternalID,
		Stage:        req.Stage,
		Notes:        req.Notes,
	})
	if errors.Is(err, store.ErrDuplicate) {
		respondError(w, http.StatusConflict, "Lead already exists")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create lead: "+err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int{"id": id})
}

func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.OwnerID(r.Context())
	leadID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid lead ID")
		return
	}

	lead, err := s.store.GetLead(r.Context(), ownerID, leadID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Lead not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch lead: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, lead)
}

type updateLeadRequest struct {
	Stage *string `json:"stage"`
	Notes *string `json:"notes"`
}

func (s *Server) handleUpdateLead(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.OwnerID(r.Context())
	leadID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid lead ID")
		return
	}

	var req updateLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Stage == nil && req.Notes == nil {
		respondError(w, http.StatusBadRequest, "Nothing to update")
		return
	}
	if req.Stage != nil && !store.ValidStage(*req.Stage) {
		respondError(w, http.StatusBadRequest, "Unknown stage: "+*req.Stage)
		return
	}

	err = s.store.UpdateLead(r.Context(), ownerID, leadID, req.Stage, req.Notes)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Lead not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update lead: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func (s *Server) handleDeleteLead(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.OwnerID(r.Context())
	leadID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid lead ID")
		return
	}

	err = s.store.DeleteLead(r.Context(), ownerID, leadID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Lead not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete lead: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleStageSummary(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.OwnerID(r.Context())
	summary, err := s.store.StageSummary(r.Context(), ownerID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch summary: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

type scrapeRequest struct {
	Keyword       string `json:"keyword"`
	Location      string `json:"location"`
	MaxPages      int    `json:"max_pages"`
	FetchStrategy string `json:"fetch_strategy"`
	Site          string `json:"site"`
}

type scrapeError struct {
	Page int    `json:"page"`
	Kind string `json:"kind"`
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.OwnerID(r.Context())

	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	site, err := resolveSite(req.Site)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	strategy, err := scraper.ParseStrategy(req.FetchStrategy)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = 3
	}
	if maxPages > maxPagesCap {
		maxPages = maxPagesCap
	}

	cfg := core.RunConfig{
		Site:     site,
		Strategy: strategy,
		Keyword:  req.Keyword,
		Location: req.Location,
		MaxPages: maxPages,
		// Interactive single-shot requests fail fast instead of grinding on.
		ContinueOnError: false,
		OnProgress: func(ev core.ProgressEvent) {
			slog.Info("scrape progress", "page", ev.CurrentPage, "total", ev.TotalPages, "found", ev.ListingsFound)
		},
	}

	result, err := s.runner.Run(r.Context(), cfg)
	if err != nil {
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			respondError(w, http.StatusBadRequest, ve.Error())
			return
		}
		respondError(w, http.StatusBadGateway, "Scrape could not start: "+err.Error())
		return
	}

	imported, err := s.store.BulkImportLeads(r.Context(), ownerID, result.Listings)
	if err != nil {
		observability.IncError(observability.ErrorStore, "api")
		respondError(w, http.StatusInternalServerError, "Failed to import leads: "+err.Error())
		return
	}
	observability.AddLeadsImported(imported)

	// Surface coarse failure reasons and counts only; raw messages stay in
	// the logs.
	errs := make([]scrapeError, 0, len(result.Stats.Errors))
	for _, e := range result.Stats.Errors {
		errs = append(errs, scrapeError{Page: e.Page, Kind: e.Kind})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   result.Status,
		"imported": imported,
		"listings": len(result.Listings),
		"stats": map[string]interface{}{
			"requests_attempted":  result.Stats.RequestsAttempted,
			"requests_succeeded":  result.Stats.RequestsSucceeded,
			"requests_failed":     result.Stats.RequestsFailed,
			"fragments_extracted": result.Stats.FragmentsExtracted,
			"duplicates_removed":  result.Stats.DuplicatesRemoved,
			"invalid_removed":     result.Stats.InvalidRemoved,
			"duration_ms":         result.Stats.Duration.Milliseconds(),
			"errors":              errs,
		},
	})
}

type scrapeBatchRequest struct {
	Jobs []scrapeRequest `json:"jobs"`
}

// maxBatchJobs bounds one request; batches run sequentially with an inter-job
// delay, so a large list would hold the connection open for a long time.
const maxBatchJobs = 10

func (s *Server) handleScrapeBatch(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.OwnerID(r.Context())

	var req scrapeBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Jobs) == 0 {
		respondError(w, http.StatusBadRequest, "No jobs given")
		return
	}
	if len(req.Jobs) > maxBatchJobs {
		respondError(w, http.StatusBadRequest, "Too many jobs in one batch")
		return
	}

	configs := make([]core.RunConfig, 0, len(req.Jobs))
	for i, job := range req.Jobs {
		site, err := resolveSite(job.Site)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("job %d: %v", i, err))
			return
		}
		strategy, err := scraper.ParseStrategy(job.FetchStrategy)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("job %d: %v", i, err))
			return
		}
		maxPages := job.MaxPages
		if maxPages <= 0 {
			maxPages = 3
		}
		if maxPages > maxPagesCap {
			maxPages = maxPagesCap
		}
		configs = append(configs, core.RunConfig{
			Site:     site,
			Strategy: strategy,
			Keyword:  job.Keyword,
			Location: job.Location,
			MaxPages: maxPages,
		})
	}

	results := s.batch.Run(r.Context(), configs)

	totalImported := 0
	items := make([]map[string]interface{}, 0, len(results))
	for _, br := range results {
		item := map[string]interface{}{
			"site":     string(br.Config.Site),
			"strategy": string(br.Config.Strategy),
			"keyword":  br.Config.Keyword,
		}
		if br.Err != nil {
			item["status"] = "failed"
			var ve *core.ValidationError
			if errors.As(br.Err, &ve) {
				item["error"] = ve.Error()
			} else {
				item["error"] = "run could not start"
			}
			items = append(items, item)
			continue
		}

		imported, err := s.store.BulkImportLeads(r.Context(), ownerID, br.Result.Listings)
		if err != nil {
			observability.IncError(observability.ErrorStore, "api")
			item["status"] = "failed"
			item["error"] = "import failed"
			items = append(items, item)
			continue
		}
		observability.AddLeadsImported(imported)
		totalImported += imported

		item["status"] = string(br.Result.Status)
		item["listings"] = len(br.Result.Listings)
		item["imported"] = imported
		items = append(items, item)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":     items,
		"imported": totalImported,
	})
}

// resolveSite accepts either a site name ("indeed") or a full site URL and
// resolves it to a known target. An unrecognized domain is a configuration
// error surfaced to the caller, never a run failure.
func resolveSite(raw string) (scraper.Site, error) {
	if strings.Contains(raw, ".") || strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("invalid site URL %q", raw)
		}
		host := u.Hostname()
		if host == "" {
			host = strings.Split(raw, "/")[0]
		}
		site, ok := scraper.SiteForHost(host)
		if !ok {
			return "", fmt.Errorf("no adapter for domain %q", host)
		}
		return site, nil
	}
	return scraper.ParseSite(raw)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, observability.Snapshot())
}

type prepGuideRequest struct {
	LeadID int `json:"lead_id"`
}

func (s *Server) handlePrepGuide(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.OwnerID(r.Context())

	var req prepGuideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	lead, err := s.store.GetLead(r.Context(), ownerID, req.LeadID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Lead not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch lead: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 45*time.Second)
	defer cancel()

	guide, err := s.prep.Generate(ctx, ai.PrepRequest{
		Title:        lead.Title,
		Organization: lead.Organization,
		Location:     lead.Location,
		Description:  lead.Snippet,
		Stage:        lead.Stage,
	})
	if err != nil {
		respondError(w, http.StatusBadGateway, "Guide generation failed")
		return
	}
	respondJSON(w, http.StatusOK, guide)
}

func parsePagination(r *http.Request, defaultLimit int) (int, int) {
	q := r.URL.Query()
	limit := defaultLimit
	offset := 0

	if v := q.Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := q.Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}

	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
