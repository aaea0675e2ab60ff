package mcptools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/draftforge/contentplan/internal/pipeline"
)

// PipelineService handles MCP tool calls for the orchestrator server mode.
// It wraps a pipeline.Manager to create, run, and inspect sessions.
type PipelineService struct {
	mgr *pipeline.Manager
}

// NewPipelineService creates a PipelineService backed by the given manager.
func NewPipelineService(mgr *pipeline.Manager) *PipelineService {
	return &PipelineService{mgr: mgr}
}

// CreateSession creates a new pending session from the given parameters.
func (s *PipelineService) CreateSession(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input CreateSessionInput,
) (*mcp.CallToolResult, CreateSessionOutput, error) {
	sess, err := s.mgr.CreateSession(ctx, pipeline.CreateSessionRequest{Params: input.Params})
	if err != nil {
		return nil, CreateSessionOutput{}, err
	}

	return nil, CreateSessionOutput{
		SessionID: sess.ID,
		Status:    string(sess.Status),
		Stages:    sess.StageIDs,
	}, nil
}

// RunSession starts a pending session and returns its current status.
func (s *PipelineService) RunSession(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RunSessionInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	if input.SessionID == "" {
		return nil, StatusOutput{}, fmt.Errorf("sessionId is required")
	}

	snap, err := s.mgr.RunSession(ctx, input.SessionID)
	if err != nil {
		return nil, StatusOutput{}, err
	}
	return nil, statusOutput(snap), nil
}

// GetStatus returns the session's current snapshot.
func (s *PipelineService) GetStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetStatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	if input.SessionID == "" {
		return nil, StatusOutput{}, fmt.Errorf("sessionId is required")
	}

	snap, err := s.mgr.GetStatus(ctx, input.SessionID)
	if err != nil {
		return nil, StatusOutput{}, err
	}
	return nil, statusOutput(snap), nil
}

// CancelSession requests cancellation of a session.
func (s *PipelineService) CancelSession(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input CancelSessionInput,
) (*mcp.CallToolResult, CancelSessionOutput, error) {
	if input.SessionID == "" {
		return nil, CancelSessionOutput{}, fmt.Errorf("sessionId is required")
	}

	accepted, err := s.mgr.CancelSession(ctx, input.SessionID)
	if err != nil {
		return nil, CancelSessionOutput{}, err
	}

	out := CancelSessionOutput{
		SessionID: input.SessionID,
		Cancelled: accepted,
	}
	if !accepted {
		out.Message = "session already reached a terminal status"
	}
	return nil, out, nil
}

// ListSessions returns a summary of all live sessions.
func (s *PipelineService) ListSessions(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ListSessionsInput,
) (*mcp.CallToolResult, ListSessionsOutput, error) {
	snaps, err := s.mgr.ListSessions(ctx)
	if err != nil {
		return nil, ListSessionsOutput{}, err
	}

	summaries := make([]SessionSummary, 0, len(snaps))
	for _, snap := range snaps {
		done := 0
		for _, st := range snap.Stages {
			if st.Status == pipeline.StageSucceeded {
				done++
			}
		}
		summaries = append(summaries, SessionSummary{
			SessionID:    snap.SessionID,
			Status:       string(snap.Status),
			CurrentStage: snap.CurrentStage,
			StagesDone:   done,
			StagesTotal:  len(snap.Stages),
		})
	}

	return nil, ListSessionsOutput{Sessions: summaries}, nil
}

// statusOutput converts a snapshot into the tool result shape.
func statusOutput(snap *pipeline.SessionSnapshot) StatusOutput {
	stages := make([]StageStatusOutput, len(snap.Stages))
	for i, st := range snap.Stages {
		stages[i] = StageStatusOutput{
			ID:           st.ID,
			Status:       string(st.Status),
			Attempts:     st.Attempts,
			Score:        st.Score,
			Deficiencies: st.Deficiencies,
			Reason:       string(st.Reason),
		}
	}
	return StatusOutput{
		SessionID:    snap.SessionID,
		Status:       string(snap.Status),
		CurrentStage: snap.CurrentStage,
		Stages:       stages,
		FinalResult:  snap.FinalResult,
	}
}
