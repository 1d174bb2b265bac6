/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package callback implements at-least-once HTTP delivery of Room
// lifecycle callbacks (OnJoin/OnLeave/OnStart/OnStop), fanned out
// asynchronously so a slow or unreachable target never blocks a Room's
// mailbox.
package callback

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/signalcore/internal/models"
	"github.com/friendsincode/signalcore/internal/room"
)

const maxAttempts = 5

// Payload is the JSON body posted to a callback target.
type Payload struct {
	Event          string    `json:"event"`
	Timestamp      time.Time `json:"timestamp"`
	FID            string    `json:"fid"`
	MediaDirection string    `json:"media_direction,omitempty"`
	MediaType      string    `json:"media_type,omitempty"`
	Reason         string    `json:"reason,omitempty"`
}

// TargetResolver looks up the active callback targets for a room and
// kind. The server implements it by reading active rows of the
// callback_targets table; applying a Room spec does not create those
// rows from a Member's on_join_url/on_leave_url.
type TargetResolver interface {
	ResolveTargets(roomID string, kind models.CallbackKind) []models.CallbackTarget
}

// Service delivers Room lifecycle callbacks and implements
// room.CallbackSink.
type Service struct {
	db        *gorm.DB
	targets   TargetResolver
	logger    zerolog.Logger
	client    *http.Client
	deliveries func(outcome string)
}

// NewService constructs a callback delivery service.
func NewService(db *gorm.DB, targets TargetResolver, logger zerolog.Logger, onDelivery func(outcome string)) *Service {
	if onDelivery == nil {
		onDelivery = func(string) {}
	}
	return &Service{
		db:         db,
		targets:    targets,
		logger:     logger.With().Str("component", "callback").Logger(),
		client:     &http.Client{Timeout: 10 * time.Second},
		deliveries: onDelivery,
	}
}

var _ room.CallbackSink = (*Service)(nil)

// OnJoin implements room.CallbackSink.
func (s *Service) OnJoin(fid string, at time.Time) {
	s.deliver(fid, models.CallbackOnJoin, Payload{Event: "OnJoin", Timestamp: at, FID: fid})
}

// OnLeave implements room.CallbackSink.
func (s *Service) OnLeave(fid string, at time.Time, reason room.CloseReason) {
	s.deliver(fid, models.CallbackOnLeave, Payload{Event: "OnLeave", Timestamp: at, FID: fid, Reason: reason.String()})
}

// OnStart implements room.CallbackSink.
func (s *Service) OnStart(fid, mediaDirection, mediaType string, at time.Time) {
	s.deliver(fid, models.CallbackOnStart, Payload{Event: "OnStart", Timestamp: at, FID: fid, MediaDirection: mediaDirection, MediaType: mediaType})
}

// OnStop implements room.CallbackSink.
func (s *Service) OnStop(fid, mediaDirection, mediaType, reason string, at time.Time) {
	s.deliver(fid, models.CallbackOnStop, Payload{Event: "OnStop", Timestamp: at, FID: fid, MediaDirection: mediaDirection, MediaType: mediaType, Reason: reason})
}

// deliver resolves targets for the room embedded in fid and fans the
// payload out asynchronously, one goroutine per target, so Room
// message handling is never blocked on callback delivery.
func (s *Service) deliver(fid string, kind models.CallbackKind, payload Payload) {
	roomID := fid
	for i, c := range fid {
		if c == '/' {
			roomID = fid[:i]
			break
		}
	}
	targets := s.targets.ResolveTargets(roomID, kind)
	for _, t := range targets {
		go s.deliverWithRetry(t, payload)
	}
}

func (s *Service) deliverWithRetry(target models.CallbackTarget, payload Payload) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("target", target.ID).Msg("failed to marshal callback payload")
		return
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxAttempts-1)
	attempt := 0
	outcome := "failure"

	err = backoff.Retry(func() error {
		attempt++
		status, respBody, sendErr := s.send(target, payload.Event, body)
		s.logDelivery(target, payload.Event, body, status, respBody, sendErr)
		if sendErr != nil {
			return sendErr
		}
		if status < 200 || status >= 300 {
			return fmt.Errorf("callback target returned status %d", status)
		}
		return nil
	}, bo)

	if err == nil {
		outcome = "success"
	}
	s.deliveries(outcome)
}

func (s *Service) send(target models.CallbackTarget, event string, body []byte) (int, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "signalcore-callback/1.0")
	req.Header.Set("X-Event", event)
	req.Header.Set("X-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	if target.Secret != "" {
		req.Header.Set("X-Signature", signPayload(body, target.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	return resp.StatusCode, "", nil
}

func signPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

func (s *Service) logDelivery(target models.CallbackTarget, event string, payload []byte, status int, response string, sendErr error) {
	errMsg := ""
	if sendErr != nil {
		errMsg = sendErr.Error()
	}
	row := &models.CallbackLog{
		ID:         uuid.NewString(),
		TargetID:   target.ID,
		Event:      event,
		Payload:    string(payload),
		StatusCode: status,
		Response:   response,
		Error:      errMsg,
	}
	if s.db == nil {
		return
	}
	if err := s.db.Create(row).Error; err != nil {
		s.logger.Error().Err(err).Msg("failed to log callback delivery")
	}
}
