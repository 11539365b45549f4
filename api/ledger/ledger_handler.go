package ledger

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"railstock/api/shared/respond"
)

type receiveRequest struct {
	EAN          string  `json:"ean" validate:"required"`
	MaterialName string  `json:"materialName" validate:"required"`
	Description  *string `json:"description"`
	WidthMM      *int    `json:"widthMm" validate:"omitempty,gt=0"`
	GrammageGM2  *int    `json:"grammageGm2" validate:"omitempty,gt=0"`
	Color        *string `json:"color"`
	Supplier     *string `json:"supplier"`
	BatchNo      *string `json:"batchNo"`
	Photo        *string `json:"photo"`
	ToRailCode   string  `json:"toRailCode" validate:"required"`
	UserID       string  `json:"userId" validate:"required"`
	DeviceID     string  `json:"deviceId"`
}

type moveRequest struct {
	ToRailCode string `json:"toRailCode" validate:"required"`
	UserID     string `json:"userId" validate:"required"`
	DeviceID   string `json:"deviceId"`
}

type removeRequest struct {
	Reason   string `json:"reason"`
	UserID   string `json:"userId" validate:"required"`
	DeviceID string `json:"deviceId"`
}

type batchMoveRequest struct {
	RollIDs    []string `json:"rollIds" validate:"required,min=1,dive,required"`
	ToRailCode string   `json:"toRailCode" validate:"required"`
	UserID     string   `json:"userId" validate:"required"`
	DeviceID   string   `json:"deviceId"`
}

// ReceiveCommandHandler registers a new roll on a rail.
func ReceiveCommandHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req receiveRequest
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}
		result, err := svc.Receive(r.Context(), ReceiveInput{
			EAN:          req.EAN,
			MaterialName: req.MaterialName,
			Description:  req.Description,
			WidthMM:      req.WidthMM,
			GrammageGM2:  req.GrammageGM2,
			Color:        req.Color,
			Supplier:     req.Supplier,
			BatchNo:      req.BatchNo,
			Photo:        req.Photo,
			ToRailCode:   req.ToRailCode,
			UserID:       req.UserID,
			DeviceID:     respond.DeviceID(r, req.DeviceID),
		})
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusCreated, map[string]any{
			"message":  "Roll received successfully",
			"roll":     result.Roll,
			"movement": result.Movement,
		})
	}
}

// MoveCommandHandler moves one roll to another rail.
func MoveCommandHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moveRequest
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}
		result, err := svc.Move(r.Context(), MoveInput{
			RollID:     chi.URLParam(r, "id"),
			ToRailCode: req.ToRailCode,
			UserID:     req.UserID,
			DeviceID:   respond.DeviceID(r, req.DeviceID),
		})
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, map[string]any{
			"message":  "Roll moved successfully",
			"movement": result.Movement,
		})
	}
}

// RemoveCommandHandler takes a roll out of the warehouse.
func RemoveCommandHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req removeRequest
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}
		result, err := svc.Remove(r.Context(), RemoveInput{
			RollID:   chi.URLParam(r, "id"),
			Reason:   req.Reason,
			UserID:   req.UserID,
			DeviceID: respond.DeviceID(r, req.DeviceID),
		})
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		if result.AlreadyRemoved {
			respond.Warning(w, "Roll already removed")
			return
		}
		respond.JSON(w, http.StatusOK, map[string]any{
			"message":  "Roll removed successfully",
			"movement": result.Movement,
		})
	}
}

// BatchMoveCommandHandler moves several rolls to one rail atomically.
func BatchMoveCommandHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req batchMoveRequest
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}
		result, err := svc.BatchMove(r.Context(), BatchMoveInput{
			RollIDs:    req.RollIDs,
			ToRailCode: req.ToRailCode,
			UserID:     req.UserID,
			DeviceID:   respond.DeviceID(r, req.DeviceID),
		})
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, map[string]any{
			"message":   fmt.Sprintf("Successfully moved %d rolls", result.Count),
			"count":     result.Count,
			"batchId":   result.BatchID,
			"movements": result.Movements,
			"skipped":   result.Skipped,
		})
	}
}
