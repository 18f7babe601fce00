package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (s *Server) handleAddMembership(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	var body struct {
		Wallet   string  `json:"wallet"`
		Amount   float64 `json:"amount"`
		NFTCount int     `json:"nft_count"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	m, err := s.engine.AddManualMembership(r.Context(), id, body.Wallet, body.Amount, body.NFTCount)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleListMemberships(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	memberships, err := s.store.ListActiveMemberships(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"memberships": memberships})
}

func (s *Server) handleRemoveMembership(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	wallet := chi.URLParam(r, "wallet")
	reason := r.URL.Query().Get("reason")
	if err := s.engine.RemoveMembership(r.Context(), id, wallet, reason); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "wallet": wallet})
}

func (s *Server) handleRecordClaim(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MembershipID uuid.UUID `json:"membership_id"`
		AmountBase   uint64    `json:"amount_base"`
		TxRef        string    `json:"tx_ref"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	claim, err := s.engine.RecordClaim(r.Context(), body.MembershipID, body.AmountBase, body.TxRef)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, claim)
}
