package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/couchcryptid/nutrient-calc/internal/domain"
)

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req domain.CalculationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.calc.Calculate(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListSamples(w http.ResponseWriter, r *http.Request) {
	samples, err := s.samples.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"samples": samples})
}

func (s *Server) handleGetSample(w http.ResponseWriter, r *http.Request) {
	sample, err := s.samples.Sample(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

func (s *Server) handlePutSample(w http.ResponseWriter, r *http.Request) {
	var sample domain.Sample
	if err := decodeJSON(w, r, &sample); err != nil {
		s.writeError(w, r, err)
		return
	}
	sample.Name = r.PathValue("name")

	if err := s.samples.Put(r.Context(), sample); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("sample stored", "sample", sample.Name, "ions", len(sample.Ions))
	writeJSON(w, http.StatusOK, sample)
}

func (s *Server) handleDeleteSample(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.samples.Delete(r.Context(), name); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("sample deleted", "sample", name)
	w.WriteHeader(http.StatusNoContent)
}

// decodeJSON reads a size-limited JSON body. Enum decode failures keep their
// sentinel; anything else is reported as an invalid request.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, domain.ErrUnknownNitrogenSource) || errors.Is(err, domain.ErrUnknownIronChelate) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrUnknownNitrogenSource),
		errors.Is(err, domain.ErrUnknownIronChelate):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCompositionNotFound),
		errors.Is(err, domain.ErrSampleNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
