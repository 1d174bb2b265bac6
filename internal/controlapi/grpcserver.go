/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package controlapi

import (
	"context"

	"google.golang.org/grpc"

	"github.com/friendsincode/signalcore/internal/room"
)

// ApplyRequest is the gRPC/REST request body for a room reconcile call.
type ApplyRequest struct {
	Spec RoomSpec `json:"spec"`
}

// ApplyResponse is returned after a successful Apply.
type ApplyResponse struct {
	RoomID string `json:"room_id"`
}

// ErrorResponse is the structured error body returned by both the gRPC
// and REST-JSON surfaces.
type ErrorResponse struct {
	Code int    `json:"error_code"`
	Text string `json:"text"`
}

// Rooms is the subset of room.Registry the gRPC/REST surfaces need.
type Rooms interface {
	GetOrCreate(id string) *room.Room
	Delete(id string)
}

// Server implements the Control-API gRPC service using plain Go structs
// registered on a JSON codec (see codec.go) instead of generated protobuf
// stubs.
type Server struct {
	rooms Rooms
}

// NewServer constructs a Control-API gRPC/REST server bound to a room
// registry.
func NewServer(rooms Rooms) *Server {
	return &Server{rooms: rooms}
}

// Apply reconciles a room's live state to match spec, creating and
// deleting members/endpoints as needed.
func (s *Server) Apply(ctx context.Context, req *ApplyRequest) (*ApplyResponse, error) {
	rm := s.rooms.GetOrCreate(req.Spec.ID)
	if err := Apply(rm, req.Spec); err != nil {
		return nil, err
	}
	return &ApplyResponse{RoomID: req.Spec.ID}, nil
}

// serviceDesc is the hand-written equivalent of a protoc-generated
// grpc.ServiceDesc: one unary method, Apply.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "signalcore.controlapi.ControlAPI",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Apply",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				req := new(ApplyRequest)
				if err := dec(req); err != nil {
					return nil, err
				}
				server := srv.(*Server)
				if interceptor == nil {
					return server.Apply(ctx, req)
				}
				info := &grpc.UnaryServerInfo{Server: server, FullMethod: "/signalcore.controlapi.ControlAPI/Apply"}
				handler := func(ctx context.Context, req any) (any, error) {
					return server.Apply(ctx, req.(*ApplyRequest))
				}
				return interceptor(ctx, req, info, handler)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "controlapi/controlapi.proto",
}

// Register attaches the Control-API service to a gRPC server.
func Register(s *grpc.Server, impl *Server) {
	s.RegisterService(&serviceDesc, impl)
}
