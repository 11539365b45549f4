package http

import (
	"railstock/api/exports"
	"railstock/api/ledger"
	"railstock/api/rails"
	"railstock/api/rolls"
	"railstock/api/users"

	"github.com/go-chi/chi/v5"
)

// RegisterUserRoutes registers device registration and lookup.
func (s *Server) RegisterUserRoutes(r chi.Router) {
	r.Post("/users/register", users.RegisterCommandHandler(s.DB, s.Audit, s.UserCache))
	r.Get("/users/me", users.MeQueryHandler(s.DB, s.UserCache))
}

// RegisterRailRoutes registers rail catalog, inventory and label routes.
func (s *Server) RegisterRailRoutes(r chi.Router) {
	r.Get("/rails", rails.ListQueryHandler(s.DB))
	r.Get("/rails/labels.pdf", rails.LabelsPDFHandler(s.DB))
	r.Get("/rails/{code}", rails.DetailQueryHandler(s.DB))
	r.Get("/rails/{code}/inventory", rails.InventoryQueryHandler(s.DB))
}

// RegisterRollRoutes registers roll queries and ledger transitions.
func (s *Server) RegisterRollRoutes(r chi.Router) {
	r.Get("/rolls", rolls.SearchQueryHandler(s.DB))
	r.Post("/rolls/receive", ledger.ReceiveCommandHandler(s.Ledger))
	r.Post("/rolls/batch-move", ledger.BatchMoveCommandHandler(s.Ledger))
	r.Get("/rolls/{id}", rolls.DetailQueryHandler(s.DB))
	r.Put("/rolls/{id}", rolls.UpdateCommandHandler(s.DB, s.Audit))
	r.Post("/rolls/{id}/move", ledger.MoveCommandHandler(s.Ledger))
	r.Post("/rolls/{id}/remove", ledger.RemoveCommandHandler(s.Ledger))
}

// RegisterExportRoutes registers the downstream feeds.
func (s *Server) RegisterExportRoutes(r chi.Router) {
	r.Get("/export/events.ndjson", exports.EventsNDJSONHandler(s.DB, s.Metrics))
	r.Get("/export/snapshot.csv", exports.SnapshotCSVHandler(s.DB, s.Metrics))
}
