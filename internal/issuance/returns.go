package issuance

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/angelmondragon/epiguard-backend/internal/equipment"
	"github.com/angelmondragon/epiguard-backend/internal/live"
	"github.com/angelmondragon/epiguard-backend/pkg/db/models"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
)

// Return reverses an issuance: the units go back to the registry and the
// record is marked returned, once. The ledger row is claimed before the
// equipment row is touched so return and delete lock in the same order.
func (s *service) Return(ctx context.Context, actor Actor, id uuid.UUID, input ReturnInput) (rec *Record, err error) {
	defer func() { s.metrics.ObserveOutcome("return", outcomeOf(err)) }()

	if !actor.valid() {
		return nil, unauthenticated()
	}
	ctx = s.logg.WithIssuanceID(ctx, id.String())

	var returned *models.Issuance
	err = s.coord.Run(ctx, "return", func(ctx context.Context, uow UnitOfWork) error {
		current, err := uow.Ledger.FindByID(ctx, id)
		if err != nil {
			return mapLedgerError(err, "load issuance")
		}
		if current.Returned {
			return alreadyReturned(id)
		}
		if _, err := uow.Equipment.FindAny(ctx, current.EquipmentID); err != nil {
			if errors.Is(err, equipment.ErrNotFound) {
				return equipmentMissing(current.EquipmentID)
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load equipment")
		}

		mark := ReturnMark{
			At:        s.now().UTC(),
			By:        actor.UserID,
			Notes:     input.Notes,
			Signature: input.Signature,
		}
		if err := uow.Ledger.MarkReturned(ctx, id, mark); err != nil {
			if errors.Is(err, ErrAlreadyReturned) {
				return alreadyReturned(id)
			}
			return mapLedgerError(err, "mark issuance returned")
		}
		if _, err := uow.Equipment.IncrementStock(ctx, current.EquipmentID, current.Quantity); err != nil {
			if errors.Is(err, equipment.ErrNotFound) {
				return equipmentMissing(current.EquipmentID)
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restore stock")
		}

		detailed, err := uow.Ledger.FindDetailed(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload issuance")
		}
		returned = detailed
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := FromModel(*returned)
	ctx = s.logg.WithEquipmentID(ctx, returned.EquipmentID.String())
	s.logg.Info(ctx, "equipment returned")
	s.broadcast(ctx, live.EventReturned, out)
	s.record(ctx, actor.UserID, enums.ActivityIssuanceReturned, map[string]any{
		"issuance_id":  id,
		"equipment_id": returned.EquipmentID,
		"quantity":     returned.Quantity,
	})
	return &out, nil
}
