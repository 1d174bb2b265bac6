/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audit persists Room/Peer lifecycle transitions and Control-API
// mutations as AuditLog rows, both via a direct synchronous call from a
// Room (room.AuditSink) and via the in-process event bus for mutations
// raised outside of a Room's mailbox.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/signalcore/internal/events"
	"github.com/friendsincode/signalcore/internal/models"
	"github.com/friendsincode/signalcore/internal/room"
)

// Service persists audit entries.
type Service struct {
	db     *gorm.DB
	bus    events.PubSub
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus events.PubSub, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

var _ room.AuditSink = (*Service)(nil)

// Record implements room.AuditSink. It persists asynchronously so the
// calling Room's mailbox is never blocked on a database round trip.
func (s *Service) Record(roomID, memberID, action, resourceType, resourceID string, details map[string]any) {
	entry := &models.AuditLog{
		RoomID:       roomID,
		MemberID:     memberID,
		Action:       models.AuditAction(action),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
	}
	go func() {
		if err := s.Log(context.Background(), entry); err != nil {
			s.logger.Error().Err(err).Str("action", action).Msg("failed to log audit entry")
		}
	}()
}

// Start subscribes to Control-API mutation events published on the bus
// by components outside a Room's mailbox (for example Room/Registry
// creation and close) and persists them as audit entries.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().Msg("audit service starting")

	roomCreated := s.bus.Subscribe(events.EventRoomCreated)
	roomClosed := s.bus.Subscribe(events.EventRoomClosed)

	defer func() {
		s.bus.Unsubscribe(events.EventRoomCreated, roomCreated)
		s.bus.Unsubscribe(events.EventRoomClosed, roomClosed)
	}()

	s.logger.Info().Msg("audit service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("audit service stopping")
			return

		case payload := <-roomCreated:
			s.logAuditEntry(ctx, models.AuditActionRoomCreated, payload)

		case payload := <-roomClosed:
			s.logAuditEntry(ctx, models.AuditActionRoomClosed, payload)
		}
	}
}

// logAuditEntry creates an audit log entry from an event payload.
func (s *Service) logAuditEntry(ctx context.Context, action models.AuditAction, payload events.Payload) {
	entry := &models.AuditLog{
		Action:  action,
		Details: make(map[string]any),
	}

	if roomID, ok := payload["room_id"].(string); ok {
		entry.RoomID = roomID
	}
	if memberID, ok := payload["member_id"].(string); ok {
		entry.MemberID = memberID
	}
	if resourceType, ok := payload["resource_type"].(string); ok {
		entry.ResourceType = resourceType
	}
	if resourceID, ok := payload["resource_id"].(string); ok {
		entry.ResourceID = resourceID
	}

	for k, v := range payload {
		switch k {
		case "room_id", "member_id", "resource_type", "resource_id":
		default:
			entry.Details[k] = v
		}
	}

	if err := s.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("action", string(action)).
			Msg("failed to log audit entry")
	}
}

// Log records an audit entry directly.
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.Details == nil {
		entry.Details = make(map[string]any)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}

	s.logger.Debug().
		Str("action", string(entry.Action)).
		Str("id", entry.ID).
		Msg("audit entry logged")

	return nil
}

// QueryFilters defines filters for querying audit logs.
type QueryFilters struct {
	RoomID    *string
	MemberID  *string
	Action    *models.AuditAction
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// Query retrieves audit logs with filters, most recent first.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})

	if filters.RoomID != nil {
		query = query.Where("room_id = ?", *filters.RoomID)
	}
	if filters.MemberID != nil {
		query = query.Where("member_id = ?", *filters.MemberID)
	}
	if filters.Action != nil {
		query = query.Where("action = ?", *filters.Action)
	}
	if filters.StartTime != nil {
		query = query.Where("timestamp >= ?", *filters.StartTime)
	}
	if filters.EndTime != nil {
		query = query.Where("timestamp <= ?", *filters.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	} else {
		query = query.Limit(100)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("timestamp DESC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
