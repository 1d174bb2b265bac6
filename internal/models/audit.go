/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction defines the type of audited Control-API mutation or
// Room/Peer lifecycle transition.
type AuditAction string

const (
	AuditActionRoomCreated      AuditAction = "room.created"
	AuditActionRoomClosed       AuditAction = "room.closed"
	AuditActionMemberCreated    AuditAction = "member.created"
	AuditActionMemberDeleted    AuditAction = "member.deleted"
	AuditActionMemberJoined     AuditAction = "member.joined"
	AuditActionMemberLeft       AuditAction = "member.left"
	AuditActionEndpointCreated  AuditAction = "endpoint.created"
	AuditActionEndpointDeleted  AuditAction = "endpoint.deleted"
	AuditActionPeerStarted      AuditAction = "peer.started"
	AuditActionPeerStopped      AuditAction = "peer.stopped"
	AuditActionPeerFailed       AuditAction = "peer.failed"
)

// AuditLog records one Control-API mutation or Room/Peer lifecycle
// transition for operational inspection.
type AuditLog struct {
	ID           string         `gorm:"type:uuid;primaryKey"`
	Timestamp    time.Time      `gorm:"index:idx_audit_timestamp;not null"`
	RoomID       string         `gorm:"type:varchar(255);index:idx_audit_room"`
	MemberID     string         `gorm:"type:varchar(255);index:idx_audit_member"`
	Action       AuditAction    `gorm:"type:varchar(64);index:idx_audit_action;not null"`
	ResourceType string         `gorm:"type:varchar(64)"`
	ResourceID   string         `gorm:"type:varchar(255)"`
	Details      map[string]any `gorm:"type:jsonb;serializer:json"`
	CreatedAt    time.Time
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}
