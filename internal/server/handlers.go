package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ppiankov/groundcheck/internal/document"
	"github.com/ppiankov/groundcheck/internal/grounding"
	"github.com/ppiankov/groundcheck/internal/match"
	"github.com/ppiankov/groundcheck/internal/model"
	"github.com/ppiankov/groundcheck/internal/store"
)

// Error details returned in the "detail" field
const (
	detailInsufficientSupport = "insufficient_support"
	detailInvalidRequest      = "invalid_request"
	detailPersistenceFailed   = "persistence_failed"
	detailStorageDisabled     = "storage_disabled"
	detailVerificationFailed  = "verification_failed"
)

// VerifyRequest is the body of POST /v1/verify
type VerifyRequest struct {
	Document   model.NormalizedDocument  `json:"document"`
	Candidates []model.CandidateCitation `json:"candidates"`
	Artifact   string                    `json:"artifact"`
	Persist    *bool                     `json:"persist,omitempty"` // Default true
}

// VerifyResponse is the body of a successful verification
type VerifyResponse struct {
	PassID    string                   `json:"pass_id,omitempty"`
	Citations []model.VerifiedCitation `json:"citations"`
	Grounding model.GroundingSummary   `json:"grounding"`
}

// AnalyzeRequest is the body of POST /v1/analyze
type AnalyzeRequest struct {
	Document model.NormalizedDocument `json:"document"`
}

// SpansRequest is the body of POST /v1/spans
type SpansRequest struct {
	Text         string `json:"text"`
	Quote        string `json:"quote"`
	ContextChars *int   `json:"context_chars,omitempty"`
}

// SpansResponse lists every occurrence of a quotation
type SpansResponse struct {
	Spans []match.SpanMatch `json:"spans"`
	Count int               `json:"count"`
}

// HealthResponse is the body of GET /healthz
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Storage bool   `json:"storage"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
		Storage: s.verifier.Store() != nil,
	})
}

func (s *Server) handleVerify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	doc := &req.Document
	if err := prepareDocument(doc); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Artifact == "" {
		req.Artifact = "summary"
	}

	ctx := c.Request.Context()
	var resp VerifyResponse
	if req.Persist == nil || *req.Persist {
		pass, err := s.verifier.VerifyPass(ctx, doc, req.Artifact, req.Candidates)
		if err != nil {
			s.verifyFailed(c, err)
			return
		}
		resp = VerifyResponse{PassID: pass.PassID, Citations: pass.Citations, Grounding: pass.Grounding}
	} else {
		citations, err := s.verifier.VerifyDocument(ctx, doc, req.Candidates)
		if err != nil {
			s.verifyFailed(c, err)
			return
		}
		resp = VerifyResponse{Citations: citations, Grounding: s.verifier.Aggregator().Aggregate(citations)}
	}

	if requirePublishable(c) {
		if err := grounding.Gate(resp.Grounding); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"detail":    detailInsufficientSupport,
				"pass_id":   resp.PassID,
				"grounding": resp.Grounding,
			})
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	doc := &req.Document
	if err := prepareDocument(doc); err != nil {
		badRequest(c, err.Error())
		return
	}

	report, err := s.pipeline.Analyze(c.Request.Context(), doc)
	if err != nil {
		s.verifyFailed(c, err)
		return
	}

	if requirePublishable(c) && !report.Publishable {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"detail": detailInsufficientSupport,
			"report": report,
		})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleSpans(c *gin.Context) {
	var req SpansRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.Quote == "" {
		badRequest(c, "quote is required")
		return
	}

	contextChars := match.DefaultContextChars
	if req.ContextChars != nil {
		contextChars = *req.ContextChars
	}

	spans := s.verifier.Matcher().FindSpans(req.Text, req.Quote, contextChars)
	if spans == nil {
		spans = []match.SpanMatch{}
	}
	c.JSON(http.StatusOK, SpansResponse{Spans: spans, Count: len(spans)})
}

func (s *Server) handleCitations(c *gin.Context) {
	st := s.storeOrAbort(c)
	if st == nil {
		return
	}
	documentID, versionID := c.Param("document_id"), c.Param("version_id")

	records, err := st.ListByVersion(c.Request.Context(), documentID, versionID)
	if err != nil {
		s.verifyFailed(c, err)
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	c.JSON(http.StatusOK, gin.H{
		"document_id": documentID,
		"version_id":  versionID,
		"citations":   records,
		"count":       len(records),
	})
}

func (s *Server) handlePasses(c *gin.Context) {
	st := s.storeOrAbort(c)
	if st == nil {
		return
	}
	documentID, versionID := c.Param("document_id"), c.Param("version_id")

	passes, err := st.ListPasses(c.Request.Context(), documentID, versionID)
	if err != nil {
		s.verifyFailed(c, err)
		return
	}
	if passes == nil {
		passes = []store.PassSummary{}
	}
	c.JSON(http.StatusOK, gin.H{
		"document_id": documentID,
		"version_id":  versionID,
		"passes":      passes,
		"count":       len(passes),
	})
}

func (s *Server) storeOrAbort(c *gin.Context) store.Store {
	st := s.verifier.Store()
	if st == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": detailStorageDisabled})
	}
	return st
}

func (s *Server) verifyFailed(c *gin.Context, err error) {
	var perr *store.PersistenceError
	if errors.As(err, &perr) {
		s.logger.Error("Persistence failed", zap.String("op", perr.Op), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": detailPersistenceFailed, "error": err.Error()})
		return
	}
	s.logger.Warn("Verification failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"detail": detailVerificationFailed, "error": err.Error()})
}

// prepareDocument canonicalizes the format and derives a missing version id
func prepareDocument(doc *model.NormalizedDocument) error {
	if doc.DocumentID == "" {
		return errors.New("document.document_id is required")
	}
	// Unrecognized formats fall back to UNKNOWN
	doc.Format, _ = model.ParseFormat(string(doc.Format))
	if doc.VersionID == "" {
		doc.VersionID = document.VersionID([]byte(doc.Text))
	}
	return doc.Validate()
}

func requirePublishable(c *gin.Context) bool {
	v, err := strconv.ParseBool(c.DefaultQuery("require_publishable", "false"))
	return err == nil && v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"detail": detailInvalidRequest, "error": msg})
}
