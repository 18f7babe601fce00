package server

import "net/http"

func (s *Server) handleTreasuryStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.treasury.Status(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleTreasuryBreakdown(w http.ResponseWriter, r *http.Request) {
	report, err := s.treasury.Breakdown(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}
