// Package grpcserver implements the CampaignService gRPC server.
//
// It delegates all business logic to campaign.Service and kanban.Service and
// handles only the gRPC transport concerns: metadata extraction, ownership
// checks, error mapping and conversion between domain types and
// google.protobuf.Struct payloads.
package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"jobmate/campaign-service/internal/campaign"
	"jobmate/campaign-service/internal/kanban"
	"jobmate/campaign-service/internal/logger"
	"jobmate/campaign-service/internal/model"
)

// Server implements CampaignServiceServer.
type Server struct {
	campaigns *campaign.Service
	cards     *kanban.Service
}

// NewServer constructs a gRPC Server backed by the given services.
func NewServer(campaigns *campaign.Service, cards *kanban.Service) *Server {
	return &Server{campaigns: campaigns, cards: cards}
}

// ─── Campaign RPCs ────────────────────────────────────────────────────────────

type idRequest struct {
	ID string `json:"id"`
}

// CreateCampaign validates and stores a campaign for the caller.
func (s *Server) CreateCampaign(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var spec campaign.Spec
	if err := decode(req, &spec); err != nil {
		return nil, err
	}
	c, err := s.campaigns.Create(ctx, userID, spec)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return encode(c)
}

// UpdateCampaign replaces the editable fields of a campaign.
func (s *Server) UpdateCampaign(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		ID string `json:"id"`
		campaign.Spec
	}
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if err := s.ownCampaign(ctx, in.ID); err != nil {
		return nil, err
	}
	c, err := s.campaigns.Update(ctx, in.ID, in.Spec)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return encode(c)
}

// PauseCampaign stops scheduling a campaign.
func (s *Server) PauseCampaign(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.campaignAction(ctx, req, s.campaigns.Pause)
}

// ResumeCampaign re-enables scheduling.
func (s *Server) ResumeCampaign(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.campaignAction(ctx, req, s.campaigns.Resume)
}

// ArchiveCampaign soft-deletes a campaign.
func (s *Server) ArchiveCampaign(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.campaignAction(ctx, req, s.campaigns.Archive)
}

// GetCampaign returns one campaign.
func (s *Server) GetCampaign(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.campaignAction(ctx, req, s.campaigns.Get)
}

// ListCampaigns returns the caller's campaigns.
func (s *Server) ListCampaigns(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var in struct {
		IncludeArchived bool `json:"includeArchived"`
	}
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	list, err := s.campaigns.List(ctx, userID, in.IncludeArchived)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return encode(map[string]any{"campaigns": list})
}

func (s *Server) campaignAction(
	ctx context.Context,
	req *structpb.Struct,
	fn func(context.Context, string) (*model.Campaign, error),
) (*structpb.Struct, error) {
	var in idRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if err := s.ownCampaign(ctx, in.ID); err != nil {
		return nil, err
	}
	c, err := fn(ctx, in.ID)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return encode(c)
}

// ─── Card RPCs ────────────────────────────────────────────────────────────────

// GetCard returns one card.
func (s *Server) GetCard(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in idRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	card, err := s.ownCard(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	return encode(card)
}

// ListCards returns the caller's cards, best match first.
func (s *Server) ListCards(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var in struct {
		CampaignID string `json:"campaignId"`
		Status     string `json:"status"`
	}
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	cards, err := s.cards.ListCards(ctx, kanban.CardFilter{
		UserID:     userID,
		CampaignID: in.CampaignID,
		Status:     kanban.Status(in.Status),
	})
	if err != nil {
		return nil, toGRPCError(err)
	}
	return encode(map[string]any{"cards": cards})
}

// TransitionCard moves a card to a new pipeline status on behalf of the caller.
func (s *Server) TransitionCard(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		ID           string `json:"id"`
		To           string `json:"to"`
		ExpectedFrom string `json:"expectedFrom"`
	}
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	card, err := s.ownCard(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	moved, err := s.cards.Transition(ctx, kanban.TransitionRequest{
		CardID:       in.ID,
		To:           kanban.Status(in.To),
		ExpectedFrom: kanban.Status(in.ExpectedFrom),
		Actor:        card.UserID,
	})
	if err != nil {
		return nil, toGRPCError(err)
	}
	return encode(moved)
}

// AddNote replaces the note on a card.
func (s *Server) AddNote(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		ID   string `json:"id"`
		Note string `json:"note"`
	}
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if _, err := s.ownCard(ctx, in.ID); err != nil {
		return nil, err
	}
	card, err := s.cards.AddNote(ctx, in.ID, in.Note)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return encode(card)
}

// SetImportantDates replaces the deadline and interview date of a card.
func (s *Server) SetImportantDates(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		ID                  string     `json:"id"`
		ApplicationDeadline *time.Time `json:"applicationDeadline"`
		InterviewDate       *time.Time `json:"interviewDate"`
	}
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if _, err := s.ownCard(ctx, in.ID); err != nil {
		return nil, err
	}
	card, err := s.cards.SetImportantDates(ctx, in.ID, kanban.ImportantDates{
		ApplicationDeadline: in.ApplicationDeadline,
		InterviewDate:       in.InterviewDate,
	})
	if err != nil {
		return nil, toGRPCError(err)
	}
	return encode(card)
}

// AddContact appends a contact to a card.
func (s *Server) AddContact(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		ID string `json:"id"`
		kanban.Contact
	}
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if _, err := s.ownCard(ctx, in.ID); err != nil {
		return nil, err
	}
	card, err := s.cards.AddContact(ctx, in.ID, in.Contact)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return encode(card)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// userIDFromCtx extracts the x-user-id value forwarded by the Gateway
// via gRPC metadata.
func userIDFromCtx(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get("x-user-id")
	if len(vals) == 0 || vals[0] == "" {
		return "", status.Error(codes.Unauthenticated, "missing x-user-id metadata")
	}
	return vals[0], nil
}

// ownCampaign hides other users' campaigns behind NotFound.
func (s *Server) ownCampaign(ctx context.Context, id string) error {
	userID, err := userIDFromCtx(ctx)
	if err != nil {
		return err
	}
	c, err := s.campaigns.Get(ctx, id)
	if err != nil {
		return toGRPCError(err)
	}
	if c.UserID != userID {
		return toGRPCError(&model.NotFoundError{Kind: "campaign", ID: id})
	}
	return nil
}

func (s *Server) ownCard(ctx context.Context, id string) (*kanban.ApplicationCard, error) {
	userID, err := userIDFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	card, err := s.cards.GetCard(ctx, id)
	if err != nil {
		return nil, toGRPCError(err)
	}
	if card.UserID != userID {
		return nil, toGRPCError(&model.NotFoundError{Kind: "card", ID: id})
	}
	return card, nil
}

// toGRPCError maps domain errors to gRPC status errors.
func toGRPCError(err error) error {
	var (
		ve  *model.ValidationError
		ite *kanban.InvalidTransitionError
		ext *model.ExternalServiceError
	)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &ve):
		return status.Error(codes.InvalidArgument, ve.Error())
	case errors.As(err, &ite):
		return status.Error(codes.FailedPrecondition, ite.Error())
	case errors.Is(err, kanban.ErrConflict):
		return status.Error(codes.Aborted, err.Error())
	case errors.As(err, &ext):
		return status.Error(codes.Unavailable, ext.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, "internal server error")
}

func decode(req *structpb.Struct, v any) error {
	raw, err := json.Marshal(req.AsMap())
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	return nil
}

func encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// LoggingInterceptor logs every unary call with its code and duration.
func LoggingInterceptor(log logger.Logger) grpc.UnaryServerInterceptor {
	log = log.With(logger.String("component", "grpc"))
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		fields := []logger.Field{
			logger.String("method", info.FullMethod),
			logger.String("code", code.String()),
			logger.Duration("duration", time.Since(start)),
		}
		if code == codes.Internal || code == codes.Unknown {
			log.Error("grpc call failed", append(fields, logger.Error(err))...)
		} else {
			log.Debug("grpc call", fields...)
		}
		return resp, err
	}
}
