package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/stevemurr/state-table-server/command"
)

// ExecuteProcedure is the Connect procedure carrying one request as a
// google.protobuf.Struct. Replies use the same shapes as the JSON transport.
const ExecuteProcedure = "/statetable.v1.StateService/Execute"

func newRPCHandler(router *command.Router, opts ...connect.HandlerOption) (string, http.Handler) {
	return ExecuteProcedure, connect.NewUnaryHandler(
		ExecuteProcedure,
		func(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
			raw, err := protojson.Marshal(req.Msg)
			if err != nil {
				return nil, connect.NewError(connect.CodeInvalidArgument, err)
			}
			out, err := toStruct(router.HandleRaw(ctx, raw))
			if err != nil {
				return nil, connect.NewError(connect.CodeInternal, err)
			}
			return connect.NewResponse(out), nil
		},
		opts...,
	)
}

// toStruct converts a response through its JSON form, which normalizes
// records and numeric types into Struct-compatible values.
func toStruct(resp command.Response) (*structpb.Struct, error) {
	b, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}
