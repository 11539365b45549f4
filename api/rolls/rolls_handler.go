package rolls

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"railstock/api/shared/respond"
	"railstock/infrastructure/apperror"
	"railstock/infrastructure/audit"
	"railstock/infrastructure/sqlite"
)

// SearchQueryHandler lists rolls matching the query-string filters.
func SearchQueryHandler(db *sqlite.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseFilters(r)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		rows, err := Search(r.Context(), db, f)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, map[string]any{"rolls": rows})
	}
}

// DetailQueryHandler returns one roll with placement and recent movements.
func DetailQueryHandler(db *sqlite.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail, err := LoadDetail(r.Context(), db, chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, detail)
	}
}

type updateRequest struct {
	Patch
	UserID string `json:"userId"`
}

// UpdateCommandHandler applies a partial attribute update.
func UpdateCommandHandler(db *sqlite.DB, auditSvc *audit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateRequest
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}
		roll, err := UpdateAttributes(r.Context(), db, auditSvc, strings.TrimSpace(req.UserID), chi.URLParam(r, "id"), req.Patch, time.Now().UTC().Truncate(time.Millisecond))
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, map[string]any{"roll": roll})
	}
}

func parseFilters(r *http.Request) (Filters, error) {
	q := r.URL.Query()
	f := Filters{
		Query:    q.Get("query"),
		Status:   q.Get("status"),
		RailCode: q.Get("railCode"),
		Color:    q.Get("color"),
		Supplier: q.Get("supplier"),
	}
	if f.Status != "" && f.Status != "active" && f.Status != "removed" {
		return f, apperror.ValidationFields(map[string]string{"status": "oneof"})
	}
	var err error
	if f.WidthMin, err = optionalInt(q.Get("widthMin"), "widthMin"); err != nil {
		return f, err
	}
	if f.WidthMax, err = optionalInt(q.Get("widthMax"), "widthMax"); err != nil {
		return f, err
	}
	if f.GrammageMin, err = optionalInt(q.Get("grammageMin"), "grammageMin"); err != nil {
		return f, err
	}
	if f.GrammageMax, err = optionalInt(q.Get("grammageMax"), "grammageMax"); err != nil {
		return f, err
	}
	limit, err := optionalInt(q.Get("limit"), "limit")
	if err != nil {
		return f, err
	}
	if limit != nil {
		f.Limit = *limit
	}
	return f, nil
}

func optionalInt(raw, field string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, apperror.ValidationFields(map[string]string{field: "number"})
	}
	return &v, nil
}
