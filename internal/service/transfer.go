package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"celustock/backend/internal/domain"
	"celustock/backend/internal/store"
)

// CreateTransfer moves a batch of units from origin to destination in one
// store transaction. Either every unit moves or none does; a unit that is
// missing, sold or not at origin rejects the batch with a *store.ConflictError
// naming each offender.
func (s *Service) CreateTransfer(ctx context.Context, req domain.TransferCreateRequest) (domain.Transfer, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Transfer{}, err
	}

	req.OriginStoreID = strings.TrimSpace(req.OriginStoreID)
	req.DestinationStoreID = strings.TrimSpace(req.DestinationStoreID)
	req.Note = strings.TrimSpace(req.Note)
	req.ScanCodes = trimCodes(req.ScanCodes)
	if !actor.IsAdmin() && req.OriginStoreID != actor.StoreID {
		return domain.Transfer{}, store.Permission("employee %s may only transfer from store %s", actor.EmployeeID, actor.StoreID)
	}
	if err := s.validateRequest(req); err != nil {
		return domain.Transfer{}, err
	}
	if req.OriginStoreID == req.DestinationStoreID {
		return domain.Transfer{}, store.Validation("origin and destination must differ")
	}
	if err := store.CheckBatchCodes(req.ScanCodes); err != nil {
		return domain.Transfer{}, err
	}

	items := make([]domain.TransferItem, 0, len(req.ScanCodes))
	for _, code := range req.ScanCodes {
		items = append(items, domain.TransferItem{ScanCode: code})
	}
	transfer := domain.Transfer{
		OriginStoreID:      req.OriginStoreID,
		DestinationStoreID: req.DestinationStoreID,
		EmployeeID:         actor.EmployeeID,
		Note:               req.Note,
		CreatedAt:          s.now().UTC(),
		Items:              items,
	}

	var created *domain.Transfer
	err = s.withStoreLock(ctx, transfer.OriginStoreID, func() error {
		var createErr error
		created, createErr = s.repo.CreateTransfer(ctx, transfer)
		return createErr
	})
	if err != nil {
		return domain.Transfer{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"transfer_id": created.ID,
		"origin":      created.OriginStoreID,
		"destination": created.DestinationStoreID,
		"units":       len(created.Items),
	}).Info("transfer committed")
	s.logAudit(ctx, created.OriginStoreID, "transfer_create", "transfer", created.ID, fmt.Sprintf("destination=%s,units=%d", created.DestinationStoreID, len(created.Items)))
	return *created, nil
}

func (s *Service) GetTransfer(ctx context.Context, id string) (domain.Transfer, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Transfer{}, err
	}
	transfer, err := s.repo.GetTransfer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Transfer{}, err
	}
	if !actor.IsAdmin() && transfer.OriginStoreID != actor.StoreID && transfer.DestinationStoreID != actor.StoreID {
		return domain.Transfer{}, store.Permission("transfer %s does not involve store %s", transfer.ID, actor.StoreID)
	}
	return *transfer, nil
}

// ListTransfers returns transfers touching the scoped store, newest first.
func (s *Service) ListTransfers(ctx context.Context, filter domain.MovementFilter) ([]domain.Transfer, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	scope, err := scopeStore(actor, filter.StoreID)
	if err != nil {
		return nil, err
	}
	filter.StoreID = scope
	if filter.Limit < 1 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.ListTransfers(ctx, filter)
}
