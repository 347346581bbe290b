package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/eshaffer321/recon-monitor/internal/api/dto"
	"github.com/eshaffer321/recon-monitor/internal/application/recon"
	"github.com/eshaffer321/recon-monitor/internal/domain/txn"
)

// RecordAnalyzer classifies one statement line and checks its markup.
type RecordAnalyzer interface {
	AnalyzeRecord(ctx context.Context, rec txn.Record) recon.FXRow
}

// FXHandler serves ad hoc FX analysis.
type FXHandler struct {
	*Base
	analyzer RecordAnalyzer
	location *time.Location
}

// NewFXHandler creates a new FX handler. Date-only timestamps are read in loc.
func NewFXHandler(analyzer RecordAnalyzer, loc *time.Location) *FXHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &FXHandler{
		Base:     &Base{},
		analyzer: analyzer,
		location: loc,
	}
}

// Analyze handles POST /api/fx/analyze.
func (h *FXHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req dto.AnalyzeRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}

	rec := txn.Record{
		ID:              req.ID,
		Narration:       req.Narration,
		Counterparty:    req.Counterparty,
		LocalAmount:     req.LocalAmount,
		ForeignAmount:   req.ForeignAmount,
		StatedCurrency:  req.StatedCurrency,
		ReceiptCurrency: req.ReceiptCurrency,
		MerchantCountry: req.MerchantCountry,
		CardLast4:       req.CardLast4,
	}
	if req.Timestamp != "" {
		ts, err := h.parseTimestamp(req.Timestamp)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, dto.ValidationError("timestamp must be RFC3339 or YYYY-MM-DD"))
			return
		}
		rec.Timestamp = ts
	}

	row := h.analyzer.AnalyzeRecord(r.Context(), rec)

	h.WriteJSON(w, http.StatusOK, dto.AnalyzeRecordResponse{
		ID:            rec.ID,
		IsForeign:     row.Context.IsForeign,
		IsDCC:         row.Context.IsDCC,
		Currency:      row.Context.Currency,
		Source:        string(row.Context.Source),
		Confidence:    row.Context.Confidence,
		Notes:         row.Context.Notes,
		InterbankRate: row.Rate,
		ExpectedLocal: row.Expected,
		ActualRate:    row.Markup.ActualRate,
		MarkupPct:     row.Markup.MarkupPct,
		Deviation:     row.Markup.Deviation,
		MarkupStatus:  string(row.Markup.Status),
		MarkupRisk:    string(row.Markup.Risk),
		Flagged:       row.Markup.Flagged,
		Reason:        row.Markup.Reason,
	})
}

func (h *FXHandler) parseTimestamp(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.ParseInLocation("2006-01-02", value, h.location)
}
