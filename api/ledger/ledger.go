// Package ledger applies roll state transitions. Every transition is one
// write transaction that updates the roll, its location and the movement log
// together, with all preconditions read inside that transaction.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"railstock/api/locations"
	"railstock/api/movements"
	"railstock/api/rails"
	"railstock/api/rolls"
	"railstock/api/users"
	"railstock/infrastructure/apperror"
	"railstock/infrastructure/audit"
	"railstock/infrastructure/cache"
	"railstock/infrastructure/metrics"
	"railstock/infrastructure/sqlite"
	"railstock/models"
)

const (
	opReceive   = "receive"
	opMove      = "move"
	opRemove    = "remove"
	opBatchMove = "batch_move"
)

type Service struct {
	DB      *sqlite.DB
	Audit   *audit.Service
	Metrics *metrics.Metrics
	Logger  *zap.SugaredLogger
	Rails   *cache.RailCache
	Now     func() time.Time
}

func NewService(db *sqlite.DB, auditSvc *audit.Service, m *metrics.Metrics, log *zap.SugaredLogger, railCache *cache.RailCache) *Service {
	return &Service{DB: db, Audit: auditSvc, Metrics: m, Logger: log, Rails: railCache}
}

// Receive creates a roll on a rail and records its RECEIVE.
func (s *Service) Receive(ctx context.Context, in ReceiveInput) (ReceiveResult, error) {
	start := time.Now()
	var result ReceiveResult
	if missing := missingFields(map[string]string{
		"ean":          in.EAN,
		"materialName": in.MaterialName,
		"toRailCode":   in.ToRailCode,
		"userId":       in.UserID,
	}); missing != nil {
		err := missing
		s.observe(opReceive, start, err, false)
		return result, err
	}

	err := s.DB.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		now := s.now()
		rail, err := s.placementRail(ctx, tx, in.ToRailCode, "Rail not found")
		if err != nil {
			return err
		}
		if _, err := users.FindByID(ctx, tx, strings.TrimSpace(in.UserID)); err != nil {
			return err
		}
		roll, err := rolls.Create(ctx, tx, rolls.CreateInput{
			EAN:          in.EAN,
			MaterialName: in.MaterialName,
			Description:  in.Description,
			WidthMM:      in.WidthMM,
			GrammageGM2:  in.GrammageGM2,
			Color:        in.Color,
			Supplier:     in.Supplier,
			BatchNo:      in.BatchNo,
			Photo:        in.Photo,
			ReceivedAt:   now,
		})
		if err != nil {
			return err
		}
		loc, err := locations.Place(ctx, tx, roll.ID, rail.ID, now)
		if err != nil {
			return err
		}
		m, err := movements.Append(ctx, tx, movements.AppendInput{
			Type:     models.MovementReceive,
			RollID:   roll.ID,
			ToRailID: &rail.ID,
			UserID:   strings.TrimSpace(in.UserID),
			DeviceID: in.DeviceID,
			At:       now,
		})
		if err != nil {
			return err
		}
		result = ReceiveResult{Roll: roll, Location: loc, Movement: m}
		return nil
	})
	s.observe(opReceive, start, err, false)
	if err != nil {
		return ReceiveResult{}, err
	}
	s.log().Infow("roll received", "roll_id", result.Roll.ID, "ean", result.Roll.EAN, "rail_code", rails.NormalizeCode(in.ToRailCode), "user_id", in.UserID)
	return result, nil
}

// Move relocates an active roll to another rail and records its MOVE.
func (s *Service) Move(ctx context.Context, in MoveInput) (MoveResult, error) {
	start := time.Now()
	var result MoveResult
	if missing := missingFields(map[string]string{
		"rollId":     in.RollID,
		"toRailCode": in.ToRailCode,
		"userId":     in.UserID,
	}); missing != nil {
		s.observe(opMove, start, missing, false)
		return result, missing
	}

	err := s.DB.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		now := s.now()
		roll, err := rolls.FindByID(ctx, tx, in.RollID)
		if err != nil {
			return err
		}
		if roll.Removed() {
			return apperror.Conflict("Cannot move removed roll")
		}
		rail, err := s.placementRail(ctx, tx, in.ToRailCode, "Target rail not found")
		if err != nil {
			return err
		}
		current, err := locations.Find(ctx, tx, roll.ID)
		if err != nil {
			return err
		}
		if current.RailID == nil {
			return apperror.Conflict("Roll has no current rail")
		}
		if *current.RailID == rail.ID {
			return apperror.Conflict("Roll is already on this rail")
		}
		if _, err := users.FindByID(ctx, tx, strings.TrimSpace(in.UserID)); err != nil {
			return err
		}
		from := *current.RailID
		loc, err := locations.Relocate(ctx, tx, roll.ID, rail.ID, now)
		if err != nil {
			return err
		}
		m, err := movements.Append(ctx, tx, movements.AppendInput{
			Type:       models.MovementMove,
			RollID:     roll.ID,
			FromRailID: &from,
			ToRailID:   &rail.ID,
			UserID:     strings.TrimSpace(in.UserID),
			DeviceID:   in.DeviceID,
			At:         now,
		})
		if err != nil {
			return err
		}
		result = MoveResult{Location: loc, Movement: m}
		return nil
	})
	s.observe(opMove, start, err, false)
	if err != nil {
		return MoveResult{}, err
	}
	s.log().Infow("roll moved", "roll_id", in.RollID, "from_rail_id", *result.Movement.FromRailID, "to_rail_id", *result.Movement.ToRailID, "user_id", in.UserID)
	return result, nil
}

// Remove takes a roll out of the warehouse and records its REMOVE. Removing
// a roll that is already removed changes nothing.
func (s *Service) Remove(ctx context.Context, in RemoveInput) (RemoveResult, error) {
	start := time.Now()
	var result RemoveResult
	if missing := missingFields(map[string]string{
		"rollId": in.RollID,
		"userId": in.UserID,
	}); missing != nil {
		s.observe(opRemove, start, missing, false)
		return result, missing
	}

	err := s.DB.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		now := s.now()
		roll, err := rolls.FindByID(ctx, tx, in.RollID)
		if err != nil {
			return err
		}
		if roll.Removed() {
			result = RemoveResult{AlreadyRemoved: true}
			return nil
		}
		if _, err := users.FindByID(ctx, tx, strings.TrimSpace(in.UserID)); err != nil {
			return err
		}
		prior, err := locations.Clear(ctx, tx, roll.ID)
		if err != nil {
			return err
		}
		if err := rolls.MarkRemoved(ctx, tx, roll.ID, now); err != nil {
			return err
		}
		var attrs *models.MovementAttributes
		if reason := strings.TrimSpace(in.Reason); reason != "" {
			attrs = &models.MovementAttributes{Remove: &models.RemoveAttributes{Reason: reason}}
		}
		m, err := movements.Append(ctx, tx, movements.AppendInput{
			Type:       models.MovementRemove,
			RollID:     roll.ID,
			FromRailID: prior,
			UserID:     strings.TrimSpace(in.UserID),
			DeviceID:   in.DeviceID,
			At:         now,
			Attributes: attrs,
		})
		if err != nil {
			return err
		}
		result = RemoveResult{Movement: &m}
		return nil
	})
	s.observe(opRemove, start, err, result.AlreadyRemoved)
	if err != nil {
		return RemoveResult{}, err
	}
	if result.AlreadyRemoved {
		s.log().Warnw("remove of already removed roll", "roll_id", in.RollID, "user_id", in.UserID)
		return result, nil
	}
	s.log().Infow("roll removed", "roll_id", in.RollID, "reason", in.Reason, "user_id", in.UserID)
	return result, nil
}

// BatchMove moves every listed roll to one rail in a single transaction.
// Each roll's current rail is read inside the transaction. Rolls with no
// current rail, or already on the target, are skipped; repeated ids are
// handled once. Any other failure rolls back the whole batch.
func (s *Service) BatchMove(ctx context.Context, in BatchMoveInput) (BatchMoveResult, error) {
	start := time.Now()
	result := BatchMoveResult{Movements: make([]models.Movement, 0), Skipped: make([]string, 0)}
	if len(in.RollIDs) == 0 {
		err := apperror.ValidationFields(map[string]string{"rollIds": "required"})
		err.Message = "Missing or invalid rollIds array"
		s.observe(opBatchMove, start, err, false)
		return result, err
	}
	if missing := missingFields(map[string]string{
		"toRailCode": in.ToRailCode,
		"userId":     in.UserID,
	}); missing != nil {
		s.observe(opBatchMove, start, missing, false)
		return result, missing
	}

	err := s.DB.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		now := s.now()
		rail, err := s.placementRail(ctx, tx, in.ToRailCode, "Rail not found")
		if err != nil {
			return err
		}
		if _, err := users.FindByID(ctx, tx, strings.TrimSpace(in.UserID)); err != nil {
			return err
		}
		batchID := uuid.NewString()
		attrs := &models.MovementAttributes{Move: &models.MoveAttributes{BatchID: batchID}}
		moved := make([]models.Movement, 0, len(in.RollIDs))
		skipped := make([]string, 0)
		for _, rollID := range uniqueIDs(in.RollIDs) {
			current, err := locations.Find(ctx, tx, rollID)
			if errors.Is(err, apperror.ErrNotFound) {
				skipped = append(skipped, rollID)
				continue
			}
			if err != nil {
				return err
			}
			if current.RailID == nil || *current.RailID == rail.ID {
				skipped = append(skipped, rollID)
				continue
			}
			from := *current.RailID
			if _, err := locations.Relocate(ctx, tx, rollID, rail.ID, now); err != nil {
				return err
			}
			m, err := movements.Append(ctx, tx, movements.AppendInput{
				Type:       models.MovementMove,
				RollID:     rollID,
				FromRailID: &from,
				ToRailID:   &rail.ID,
				UserID:     strings.TrimSpace(in.UserID),
				DeviceID:   in.DeviceID,
				At:         now,
				Attributes: attrs,
			})
			if err != nil {
				return err
			}
			moved = append(moved, m)
		}
		result = BatchMoveResult{BatchID: batchID, Movements: moved, Count: len(moved), Skipped: skipped}
		return s.Audit.Write(ctx, tx, strings.TrimSpace(in.UserID), "ledger.batch_move", "batch", batchID, nil, map[string]any{
			"toRailCode": rail.Code,
			"count":      result.Count,
			"skipped":    skipped,
		})
	})
	s.observe(opBatchMove, start, err, false)
	if err != nil {
		return BatchMoveResult{Movements: make([]models.Movement, 0), Skipped: make([]string, 0)}, err
	}
	s.Metrics.ObserveBatch(result.Count)
	s.log().Infow("batch move", "batch_id", result.BatchID, "rail_code", rails.NormalizeCode(in.ToRailCode), "moved", result.Count, "skipped", len(result.Skipped), "user_id", in.UserID)
	return result, nil
}

// uniqueIDs trims ids and drops repeats, keeping first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// placementRail resolves code to an active rail. Inactive rails are not
// valid targets and are reported as missing.
func (s *Service) placementRail(ctx context.Context, tx bun.Tx, code, notFound string) (models.Rail, error) {
	rail, err := rails.Resolve(ctx, tx, s.Rails, code)
	if errors.Is(err, apperror.ErrNotFound) {
		return models.Rail{}, apperror.NotFound("%s", notFound)
	}
	if err != nil {
		return models.Rail{}, err
	}
	if !rail.IsActive {
		return models.Rail{}, apperror.NotFound("%s", notFound)
	}
	return rail, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC().Truncate(time.Millisecond)
	}
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (s *Service) log() *zap.SugaredLogger {
	if s.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return s.Logger
}

func (s *Service) observe(op string, start time.Time, err error, warning bool) {
	outcome := metrics.OutcomeOK
	switch {
	case err != nil && apperror.KindOf(err) == apperror.KindInternal:
		outcome = metrics.OutcomeError
		s.log().Errorw("ledger operation failed", "operation", op, "err", err)
	case err != nil:
		outcome = metrics.OutcomeRejected
	case warning:
		outcome = metrics.OutcomeWarning
	}
	s.Metrics.ObserveOperation(op, outcome, time.Since(start))
}

// missingFields returns a validation error naming every blank field.
func missingFields(fields map[string]string) *apperror.Error {
	missing := make(map[string]string)
	names := make([]string, 0)
	for _, name := range []string{"rollIds", "rollId", "ean", "materialName", "toRailCode", "userId"} {
		v, ok := fields[name]
		if !ok {
			continue
		}
		if strings.TrimSpace(v) == "" {
			missing[name] = "required"
			names = append(names, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	err := apperror.ValidationFields(missing)
	err.Message = "Missing required fields: " + strings.Join(names, ", ")
	return err
}
