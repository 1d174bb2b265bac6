/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/google/uuid"
)

// CallbackKind identifies which Room/Peer lifecycle transition a
// CallbackTarget is resolved for.
type CallbackKind string

const (
	CallbackOnJoin  CallbackKind = "OnJoin"
	CallbackOnLeave CallbackKind = "OnLeave"
	CallbackOnStart CallbackKind = "OnStart"
	CallbackOnStop  CallbackKind = "OnStop"
)

// CallbackTarget is a resolved delivery destination for a Room lifecycle
// callback, stored in the callback_targets table. Applying a Room spec
// does not create these rows from a Member's on_join_url/on_leave_url.
type CallbackTarget struct {
	ID     string       `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID string       `gorm:"type:varchar(255);index;not null" json:"room_id"`
	URL    string       `gorm:"type:varchar(512);not null" json:"url"`
	Kind   CallbackKind `gorm:"type:varchar(16);not null" json:"kind"`
	Secret string       `gorm:"type:varchar(255)" json:"-"`
	Active bool         `gorm:"not null;default:true" json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (CallbackTarget) TableName() string {
	return "callback_targets"
}

// NewCallbackTarget creates a new callback target with a random HMAC
// secret.
func NewCallbackTarget(roomID, url string, kind CallbackKind) *CallbackTarget {
	return &CallbackTarget{
		ID:     uuid.NewString(),
		RoomID: roomID,
		URL:    url,
		Kind:   kind,
		Secret: uuid.NewString(),
		Active: true,
	}
}

// CallbackLog records one delivery attempt, including retries, against a
// CallbackTarget.
type CallbackLog struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	TargetID   string    `gorm:"type:uuid;index;not null" json:"target_id"`
	Event      string    `gorm:"type:varchar(64);not null" json:"event"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	StatusCode int       `json:"status_code"`
	Response   string    `gorm:"type:text" json:"response,omitempty"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
	Duration   int       `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (CallbackLog) TableName() string {
	return "callback_logs"
}
