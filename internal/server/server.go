// Package server exposes a CifarResNet over HTTP.
//
// Routes:
//
//	GET  /v1/model         architecture and parameter count
//	GET  /v1/penalty       current orthogonality penalty
//	GET  /v1/paths/{index} one path's first-layer weights
//	POST /v1/predict       logits for a batch under all/random/selected mode
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"

	"github.com/orthopath/orthopath/internal/resnet"
	"github.com/orthopath/orthopath/internal/tensor"
)

// MaxBatch bounds the number of images in one predict request.
const MaxBatch = 256

// Server serves one model. The model is switched to evaluation mode and
// every forward pass holds the server lock.
type Server[B tensor.Backend] struct {
	sync.Mutex
	model   *resnet.CifarResNet[B]
	backend B
	router  *mux.Router
	logger  *log.Logger
}

// New creates a server for model. A nil logger uses log.Default().
func New[B tensor.Backend](model *resnet.CifarResNet[B], backend B, logger *log.Logger) *Server[B] {
	if logger == nil {
		logger = log.Default()
	}
	model.Eval()
	s := &Server[B]{
		model:   model,
		backend: backend,
		router:  mux.NewRouter(),
		logger:  logger,
	}
	s.router.HandleFunc("/v1/model", s.modelInfo()).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/penalty", s.penalty()).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/paths/{index:[0-9]+}", s.pathWeights()).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/predict", s.predict()).Methods(http.MethodPost)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server[B]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ModelInfo is the /v1/model response.
type ModelInfo struct {
	Depth      int `json:"depth"`
	NumClasses int `json:"num_classes"`
	NumConvs   int `json:"num_convs"`
	Parameters int `json:"parameters"`
}

// PenaltyResponse is the /v1/penalty response.
type PenaltyResponse struct {
	Penalty float64 `json:"penalty"`
}

// PathResponse is the /v1/paths/{index} response.
type PathResponse struct {
	Index int       `json:"index"`
	Shape []int     `json:"shape"`
	Norm  float64   `json:"norm"`
	Data  []float32 `json:"data"`
}

// PredictRequest is the /v1/predict body. Mode is "all", "random" or
// "selected"; Path is required for "selected". Data holds Shape's
// elements in row-major order.
type PredictRequest struct {
	Mode  string    `json:"mode"`
	Path  *int      `json:"path,omitempty"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// PredictResponse carries one [N][num_classes] logits block per evaluated
// path, and the argmax class of every sample.
type PredictResponse struct {
	Paths       []int         `json:"paths"`
	Logits      [][][]float32 `json:"logits"`
	Predictions [][]int       `json:"predictions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server[B]) modelInfo() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.Lock()
		defer s.Unlock()
		cfg := s.model.Config()
		s.writeJSON(w, http.StatusOK, ModelInfo{
			Depth:      cfg.Depth,
			NumClasses: cfg.NumClasses,
			NumConvs:   cfg.NumConvs,
			Parameters: s.model.NumParameters(),
		})
	}
}

func (s *Server[B]) penalty() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.Lock()
		defer s.Unlock()
		s.writeJSON(w, http.StatusOK, PenaltyResponse{Penalty: s.model.OrthogonalityPenalty()})
	}
}

func (s *Server[B]) pathWeights() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.Atoi(mux.Vars(r)["index"])
		if err != nil || index >= s.model.NumConvs() {
			s.writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", resnet.ErrPathIndex, mux.Vars(r)["index"]))
			return
		}

		s.Lock()
		defer s.Unlock()
		weight := s.model.PathWeights()[index]
		data := append([]float32(nil), weight.Data()...)
		norm := 0.0
		for _, v := range data {
			norm += float64(v) * float64(v)
		}
		s.writeJSON(w, http.StatusOK, PathResponse{
			Index: index,
			Shape: weight.Shape(),
			Norm:  math.Sqrt(norm),
			Data:  data,
		})
	}
}

func (s *Server[B]) predict() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PredictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
			return
		}

		mode, err := requestMode(req)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		x, err := s.requestInput(req)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}

		s.Lock()
		out, err := s.model.Forward(x, mode)
		s.Unlock()
		if err != nil {
			s.writeError(w, statusFor(err), err)
			return
		}

		resp := PredictResponse{Paths: out.Paths}
		for _, logits := range out.Logits {
			rows, preds := splitRows(logits)
			resp.Logits = append(resp.Logits, rows)
			resp.Predictions = append(resp.Predictions, preds)
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

func requestMode(req PredictRequest) (resnet.Mode, error) {
	switch req.Mode {
	case "", "all":
		return resnet.All(), nil
	case "random":
		return resnet.Random(), nil
	case "selected":
		if req.Path == nil {
			return resnet.Mode{}, fmt.Errorf("%w: selected mode requires path", resnet.ErrInvalidMode)
		}
		return resnet.Selected(*req.Path), nil
	default:
		return resnet.Mode{}, fmt.Errorf("%w: %q", resnet.ErrInvalidMode, req.Mode)
	}
}

func (s *Server[B]) requestInput(req PredictRequest) (*tensor.Tensor[float32, B], error) {
	shape := tensor.Shape(req.Shape)
	if len(shape) != 4 {
		return nil, fmt.Errorf("%w: shape must be [N, C, H, W], got %v", resnet.ErrInvalidInput, req.Shape)
	}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", resnet.ErrInvalidInput, err)
	}
	if shape[0] > MaxBatch {
		return nil, fmt.Errorf("%w: batch %d exceeds %d", resnet.ErrInvalidInput, shape[0], MaxBatch)
	}
	x, err := tensor.FromSlice(req.Data, shape, s.backend)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", resnet.ErrInvalidInput, err)
	}
	return x, nil
}

// splitRows converts [N, K] logits into rows and per-row argmax.
func splitRows[B tensor.Backend](logits *tensor.Tensor[float32, B]) ([][]float32, []int) {
	shape := logits.Shape()
	data := logits.Data()
	rows := make([][]float32, shape[0])
	preds := make([]int, shape[0])
	for n := range rows {
		rows[n] = append([]float32(nil), data[n*shape[1]:(n+1)*shape[1]]...)
		for k, v := range rows[n] {
			if v > rows[n][preds[n]] {
				preds[n] = k
			}
		}
	}
	return rows, preds
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, resnet.ErrInvalidInput),
		errors.Is(err, resnet.ErrInvalidMode),
		errors.Is(err, resnet.ErrPathIndex):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server[B]) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Println("error encoding response:", err)
	}
}

func (s *Server[B]) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Println("request failed:", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}
