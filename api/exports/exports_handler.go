package exports

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	appcontext "railstock/api/shared/context"
	"railstock/api/shared/respond"
	"railstock/infrastructure/apperror"
	"railstock/infrastructure/metrics"
	"railstock/infrastructure/sqlite"
)

// EventsNDJSONHandler streams the movement feed as NDJSON.
func EventsNDJSONHandler(db *sqlite.DB, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		since, err := parseSince(r.URL.Query().Get("since"))
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		limit, err := parseLimit(r.URL.Query().Get("limit"))
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		events, err := ListEvents(r.Context(), db, since, limit)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Content-Disposition", "attachment; filename=warehouse-events-"+time.Now().UTC().Format("2006-01-02")+".ndjson")
		if err := WriteEventsNDJSON(w, events); err != nil {
			appcontext.LoggerFromContext(r.Context()).Errorw("write events feed failed", "err", err)
			return
		}
		m.AddExported(FeedEvents, len(events))
		if err := recordExportRun(r.Context(), db, FeedEvents, len(events), respond.DeviceID(r, "")); err != nil {
			appcontext.LoggerFromContext(r.Context()).Errorw("record export run failed", "type", FeedEvents, "err", err)
		}
	}
}

// SnapshotCSVHandler writes the current inventory as CSV.
func SnapshotCSVHandler(db *sqlite.DB, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := loadSnapshot(r.Context(), db)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=warehouse-snapshot-"+time.Now().UTC().Format("2006-01-02")+".csv")
		if err := WriteSnapshotCSV(w, rows); err != nil {
			appcontext.LoggerFromContext(r.Context()).Errorw("write snapshot failed", "err", err)
			return
		}
		m.AddExported(FeedSnapshot, len(rows))
		if err := recordExportRun(r.Context(), db, FeedSnapshot, len(rows), respond.DeviceID(r, "")); err != nil {
			appcontext.LoggerFromContext(r.Context()).Errorw("record export run failed", "type", FeedSnapshot, "err", err)
		}
	}
}

func parseSince(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, apperror.ValidationFields(map[string]string{"since": "datetime"})
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultEventLimit, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, apperror.ValidationFields(map[string]string{"limit": "gt"})
	}
	return v, nil
}
