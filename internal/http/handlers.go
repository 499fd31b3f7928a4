package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"finos/internal/core"
	"finos/internal/log"
	"finos/internal/services"
	"finos/internal/sheets"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.Ready(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleReceipts(w http.ResponseWriter, r *http.Request) {
	st := s.opts.Receipts.State()
	out := receiptsDTO{
		Account:  st.Account,
		Loading:  st.Loading,
		Receipts: toReceiptDTOs(st.Receipts),
	}
	if st.Err != nil {
		out.Error = st.Err.Error()
	}
	NewJSONResponse(out).Write(w)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	q, err := s.parseQuery(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	d := s.opts.Receipts.Dashboard(q.Filter, q.Currency)
	NewJSONResponse(toDashboardDTO(d, q, s.opts.Converter)).Write(w)
}

func (s *Server) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	out := []currencyDTO{}
	if conv := s.opts.Converter; conv != nil {
		for _, code := range conv.Supported() {
			out = append(out, currencyDTO{Code: code, Label: conv.Describe(code)})
		}
	}
	NewJSONResponse(out).Write(w)
}

func (s *Server) handleUpdateCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	categories, err := decodeCategories(w, r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	err = s.opts.Receipts.UpdateCategories(ctx, id, categories)
	switch {
	case errors.Is(err, services.ErrReceiptNotFound):
		NotFoundError("receipt not found").Write(w)
		return
	case errors.Is(err, services.ErrCategoryUpdateFailed):
		log.FromContext(ctx).WarnContext(ctx, "Category update failed",
			log.FieldOperation, log.OpUpdateCategories, log.FieldReceiptID, id, log.FieldError, err)
		ErrorResponse(http.StatusBadGateway, err.Error()).Write(w)
		return
	case err != nil:
		log.FromContext(ctx).ErrorContext(ctx, "Category update error", log.FieldReceiptID, id, log.FieldError, err)
		InternalServerError("category update failed").Write(w)
		return
	}

	for _, rc := range s.opts.Receipts.State().Receipts {
		if rc.ID == id {
			NewJSONResponse(toReceiptDTOs([]core.Receipt{rc})[0]).Write(w)
			return
		}
	}
	// The account changed while the update was in flight.
	NotFoundError("receipt not found").Write(w)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse(toSyncStatusDTO(s.opts.Sync.Status())).Write(w)
}

func (s *Server) handleRetrySync(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.opts.RetryTimeout)
	defer cancel()

	st, err := s.opts.Sync.Retry(ctx)
	body := toSyncStatusDTO(st)
	switch {
	case errors.Is(err, services.ErrNoAccount):
		ErrorResponse(http.StatusConflict, st.Message).Data(body).Write(w)
	case err != nil:
		log.FromContext(ctx).WarnContext(ctx, "Sync retry failed", log.FieldOperation, log.OpRetrySync, log.FieldError, err)
		ErrorResponse(http.StatusBadGateway, st.Message).Data(body).Write(w)
	default:
		NewJSONResponse(body).Write(w)
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.opts.Exporter == nil {
		ErrorResponse(http.StatusServiceUnavailable, "export is not configured").Write(w)
		return
	}
	q, err := s.parseQuery(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	report := sheets.Report{
		Account:     q.Filter.Account,
		Currency:    q.Currency,
		Filter:      q.Filter,
		GeneratedAt: time.Now(),
		Dashboard:   s.opts.Receipts.Dashboard(q.Filter, q.Currency),
	}
	ref, err := s.opts.Exporter.Export(ctx, report)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Dashboard export failed", log.FieldOperation, log.OpExport, log.FieldError, err)
		ErrorResponse(http.StatusBadGateway, "dashboard export failed").Write(w)
		return
	}
	log.FromContext(ctx).InfoContext(ctx, "Dashboard exported", log.FieldOperation, log.OpExport, "ref", ref)
	NewJSONResponse(map[string]string{"ref": ref}).Write(w)
}

func (s *Server) parseQuery(r *http.Request) (dashboardQuery, error) {
	account := s.opts.Receipts.State().Account
	return parseDashboardQuery(r.URL.Query(), account, s.opts.DisplayCurrency, s.opts.Converter)
}
