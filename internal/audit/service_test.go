/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/signalcore/internal/events"
	"github.com/friendsincode/signalcore/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&models.AuditLog{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestRecordPersistsEntry(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, events.NewBus(), zerolog.Nop())

	svc.Record("room1", "alice", "member.joined", "member", "alice", map[string]any{"reason": "ok"})

	deadline := time.Now().Add(time.Second)
	var count int64
	for time.Now().Before(deadline) {
		db.Model(&models.AuditLog{}).Count(&count)
		if count > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if count != 1 {
		t.Fatalf("expected one audit row, got %d", count)
	}

	var entry models.AuditLog
	if err := db.First(&entry).Error; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.RoomID != "room1" || entry.MemberID != "alice" || entry.Action != "member.joined" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestQueryFiltersByRoom(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, events.NewBus(), zerolog.Nop())

	if err := svc.Log(context.Background(), &models.AuditLog{RoomID: "room1", Action: models.AuditActionMemberJoined}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Log(context.Background(), &models.AuditLog{RoomID: "room2", Action: models.AuditActionMemberJoined}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	roomID := "room1"
	logs, total, err := svc.Query(context.Background(), QueryFilters{RoomID: &roomID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(logs) != 1 || logs[0].RoomID != "room1" {
		t.Fatalf("expected one room1 entry, got total=%d logs=%v", total, logs)
	}
}
