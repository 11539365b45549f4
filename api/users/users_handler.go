package users

import (
	"net/http"

	"railstock/api/shared/respond"
	"railstock/infrastructure/audit"
	"railstock/infrastructure/cache"
	"railstock/infrastructure/sqlite"
)

type registerRequest struct {
	Name     string `json:"name" validate:"required"`
	DeviceID string `json:"deviceId"`
}

// RegisterCommandHandler registers a worker or rebinds an existing one to the device.
func RegisterCommandHandler(db *sqlite.DB, auditSvc *audit.Service, userCache *cache.UserCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}
		deviceID := ""
		if d := respond.DeviceID(r, req.DeviceID); d != nil {
			deviceID = *d
		}
		result, err := Register(r.Context(), db, auditSvc, userCache, req.Name, deviceID)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		if result.Existing {
			respond.JSON(w, http.StatusOK, map[string]any{"message": "Logged in as existing user", "user": result.User})
			return
		}
		respond.JSON(w, http.StatusCreated, map[string]any{"message": "User registered successfully", "user": result.User})
	}
}

// MeQueryHandler returns the user bound to the deviceId query parameter.
func MeQueryHandler(db *sqlite.DB, userCache *cache.UserCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceID := ""
		if d := respond.DeviceID(r, r.URL.Query().Get("deviceId")); d != nil {
			deviceID = *d
		}
		user, err := FindByDevice(r.Context(), db, userCache, deviceID)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, user)
	}
}
