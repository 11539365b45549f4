package rails

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"railstock/api/shared/respond"
	"railstock/infrastructure/apperror"
	"railstock/infrastructure/sqlite"
)

// ListQueryHandler lists active rails with roll counts.
func ListQueryHandler(db *sqlite.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := List(r.Context(), db, ListFilters{
			WarehouseID: r.URL.Query().Get("warehouseId"),
			Zone:        r.URL.Query().Get("zone"),
		})
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, map[string]any{"rails": views})
	}
}

// DetailQueryHandler returns one rail by code.
func DetailQueryHandler(db *sqlite.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := LoadView(r.Context(), db, chi.URLParam(r, "code"))
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, view)
	}
}

// InventoryQueryHandler lists the active rolls on a rail.
func InventoryQueryHandler(db *sqlite.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inv, err := LoadInventory(r.Context(), db, chi.URLParam(r, "code"))
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, inv)
	}
}

// LabelsPDFHandler renders printable labels for active rails.
func LabelsPDFHandler(db *sqlite.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		zone := strings.TrimSpace(r.URL.Query().Get("zone"))
		labels, err := LoadLabels(r.Context(), db, zone)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		if len(labels) == 0 {
			respond.Error(w, r, apperror.NotFound("No rails to print"))
			return
		}
		pdfBytes, err := renderRailLabelsPDF(labels, time.Now())
		if err != nil {
			respond.Error(w, r, apperror.Internal("failed to build label pdf", err))
			return
		}
		filename := "rail-labels.pdf"
		if zone != "" {
			filename = fmt.Sprintf("rail-labels-%s.pdf", strings.ToLower(zone))
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", "inline; filename="+filename)
		_, _ = w.Write(pdfBytes)
	}
}
