/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package turnauth issues and revokes the short-lived TURN credentials
// handed to peers so they can relay media through Coturn when direct
// connectivity fails. Credentials follow Coturn's lt-cred-mech
// static-auth-secret scheme so a Coturn instance sharing the same secret
// can validate them without this service talking to Coturn directly.
package turnauth

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/signalcore/internal/trace"
)

// UnreachablePolicy controls what happens when the credential store
// cannot be reached.
type UnreachablePolicy int

const (
	// ReturnErr fails the request outright.
	ReturnErr UnreachablePolicy = iota
	// ReturnStatic returns a preconfigured static bundle instead.
	ReturnStatic
)

// StaticServer is a preconfigured ICE server entry usable without a
// dynamic credential (TURN static auth, or a plain STUN server).
type StaticServer struct {
	URLs []string
	User string
	Pass string
}

// Config configures the service.
type Config struct {
	// Host/Port identify the Coturn realm credentials are scoped to.
	Host string
	Port int
	// Secret is the shared static-auth-secret used to derive credentials.
	Secret string
	// TTL is how long an issued credential remains valid.
	TTL time.Duration
	// Static is returned verbatim under ReturnStatic, and merged into
	// every dynamic IceUser's URL list.
	Static []StaticServer
}

// IceUser is the credential bundle handed to a Peer.
type IceUser struct {
	Address    string
	Username   string
	Credential string
	URLs       []string
	IsStatic   bool
}

// Service is the single mailboxed actor that owns TURN credential
// issuance for the process. All state lives in Redis so multiple
// instances of this service (one per process in a multi-instance
// deployment) share a consistent view of issued credentials.
type Service struct {
	cfg     Config
	redis   *redis.Client
	logger  zerolog.Logger
	reqCh   chan request
	closeCh chan struct{}
}

type requestKind int

const (
	kindCreate requestKind = iota
	kindDelete
)

type request struct {
	kind     requestKind
	roomID   string
	peerID   string
	policy   UnreachablePolicy
	resultCh chan result
}

type result struct {
	user IceUser
	err  error
}

// New constructs the service. redisClient may be nil, in which case every
// create() degrades to the ReturnStatic policy (or fails under ReturnErr).
func New(cfg Config, redisClient *redis.Client, logger zerolog.Logger) *Service {
	if cfg.TTL == 0 {
		cfg.TTL = time.Hour
	}
	s := &Service{
		cfg:     cfg,
		redis:   redisClient,
		logger:  logger.With().Str("component", "turnauth").Logger(),
		reqCh:   make(chan request),
		closeCh: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Service) run() {
	for {
		select {
		case req := <-s.reqCh:
			switch req.kind {
			case kindCreate:
				user, err := s.create(req.roomID, req.peerID, req.policy)
				req.resultCh <- result{user: user, err: err}
			case kindDelete:
				err := s.delete(req.roomID, req.peerID)
				req.resultCh <- result{err: err}
			}
		case <-s.closeCh:
			return
		}
	}
}

// Close stops the service's mailbox goroutine.
func (s *Service) Close() {
	close(s.closeCh)
}

// Create allocates an IceUser for peerID in roomID, applying policy if
// the credential store is unreachable.
func (s *Service) Create(ctx context.Context, roomID, peerID string, policy UnreachablePolicy) (IceUser, error) {
	resultCh := make(chan result, 1)
	select {
	case s.reqCh <- request{kind: kindCreate, roomID: roomID, peerID: peerID, policy: policy, resultCh: resultCh}:
	case <-ctx.Done():
		return IceUser{}, ctx.Err()
	}
	select {
	case r := <-resultCh:
		return r.user, r.err
	case <-ctx.Done():
		return IceUser{}, ctx.Err()
	}
}

// Delete revokes the credential previously issued for peerID, if any.
// Deleting an unknown peer is a no-op.
func (s *Service) Delete(ctx context.Context, roomID, peerID string) error {
	resultCh := make(chan result, 1)
	select {
	case s.reqCh <- request{kind: kindDelete, roomID: roomID, peerID: peerID, resultCh: resultCh}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case r := <-resultCh:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) create(roomID, peerID string, policy UnreachablePolicy) (IceUser, error) {
	static := s.staticBundle()

	if s.redis == nil || s.cfg.Secret == "" {
		if policy == ReturnStatic {
			return static, nil
		}
		return IceUser{}, trace.New(fmt.Errorf("turnauth: credential store unavailable"), "turnauth")
	}

	username, credential := s.deriveCredential(peerID)
	record := fmt.Sprintf("%s:%s:%d", roomID, peerID, time.Now().Add(s.cfg.TTL).Unix())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := turnKey(roomID, peerID)
	if err := s.redis.Set(ctx, key, record, s.cfg.TTL).Err(); err != nil {
		s.logger.Warn().Err(err).Str("room_id", roomID).Str("peer_id", peerID).Msg("credential store unreachable")
		if policy == ReturnStatic {
			return static, nil
		}
		return IceUser{}, trace.New(fmt.Errorf("turnauth: write credential: %w", err), "turnauth")
	}

	urls := []string{fmt.Sprintf("turn:%s:%d", s.cfg.Host, s.cfg.Port)}
	for _, st := range s.cfg.Static {
		urls = append(urls, st.URLs...)
	}

	return IceUser{
		Address:    fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Username:   username,
		Credential: credential,
		URLs:       urls,
	}, nil
}

func (s *Service) delete(roomID, peerID string) error {
	if s.redis == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.redis.Del(ctx, turnKey(roomID, peerID)).Err(); err != nil {
		return trace.New(fmt.Errorf("turnauth: delete credential: %w", err), "turnauth")
	}
	return nil
}

func (s *Service) staticBundle() IceUser {
	if len(s.cfg.Static) == 0 {
		return IceUser{IsStatic: true}
	}
	first := s.cfg.Static[0]
	return IceUser{
		Username:   first.User,
		Credential: first.Pass,
		URLs:       first.URLs,
		IsStatic:   true,
	}
}

// deriveCredential implements Coturn's lt-cred-mech: username is
// "<expiry-unix>:<random>" and the credential is
// base64(HMAC-SHA1(secret, username)).
func (s *Service) deriveCredential(peerID string) (username, credential string) {
	expiry := time.Now().Add(s.cfg.TTL).Unix()
	username = fmt.Sprintf("%d:%s", expiry, uuid.NewString())
	mac := hmac.New(sha1.New, []byte(s.cfg.Secret))
	mac.Write([]byte(username))
	credential = base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return username, credential
}

func turnKey(roomID, peerID string) string {
	return fmt.Sprintf("signalcore:turn:%s:%s", roomID, peerID)
}
