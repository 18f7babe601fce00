package server

import (
	"context"
	"net/http"

	"github.com/stratalabs/vestflow/internal/auth"
	"github.com/stratalabs/vestflow/internal/vesting"
)

// Admin bulk operations require a signed command envelope. Verification and
// the audit write happen before the operation runs; the operation's per-item
// result list goes back verbatim, partial completion included.

func (s *Server) handleAdminPauseAll(w http.ResponseWriter, r *http.Request) {
	s.adminBulk(w, r, "pause-all", func(ctx context.Context, cmd *auth.Command) (*vesting.BulkResult, error) {
		return s.engine.PauseAll(ctx)
	})
}

func (s *Server) handleAdminResumeAll(w http.ResponseWriter, r *http.Request) {
	s.adminBulk(w, r, "resume-all", func(ctx context.Context, cmd *auth.Command) (*vesting.BulkResult, error) {
		return s.engine.ResumeAll(ctx)
	})
}

func (s *Server) handleAdminEmergencyStop(w http.ResponseWriter, r *http.Request) {
	s.adminBulk(w, r, "emergency-stop", func(ctx context.Context, cmd *auth.Command) (*vesting.BulkResult, error) {
		return s.engine.EmergencyStop(ctx, cmd.Reason)
	})
}

func (s *Server) adminBulk(w http.ResponseWriter, r *http.Request, action string, fn func(ctx context.Context, cmd *auth.Command) (*vesting.BulkResult, error)) {
	var env auth.Envelope
	if !s.decode(w, r, &env) {
		return
	}
	cmd, err := s.authn.Verify(env)
	if err != nil {
		s.logger.Warn("admin command rejected", "action", action, "wallet", env.Wallet, "error", err)
		s.writeDomainError(w, err)
		return
	}
	if cmd.Action != action {
		s.writeError(w, http.StatusBadRequest, "signed action does not match endpoint")
		return
	}

	if err := s.store.RecordAdminAction(r.Context(), env.Wallet, action, map[string]any{
		"reason": cmd.Reason,
	}); err != nil {
		s.logger.Error("failed to record admin action", "action", action, "error", err)
	}

	result, err := fn(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}
