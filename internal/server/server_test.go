package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orthopath/orthopath/internal/backend/cpu"
	"github.com/orthopath/orthopath/internal/resnet"
	"github.com/orthopath/orthopath/internal/tensor"
)

func newTestServer(t *testing.T) (*httptest.Server, *resnet.CifarResNet[*cpu.CPUBackend]) {
	t.Helper()
	backend := cpu.New()
	model, err := resnet.New(resnet.Config{Depth: 8, NumClasses: 4, NumConvs: 3, Seed: 5}, backend)
	require.NoError(t, err)

	srv := httptest.NewServer(New(model, backend, log.New(io.Discard, "", 0)))
	t.Cleanup(srv.Close)
	return srv, model
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp.StatusCode
}

func postPredict(t *testing.T, url string, req PredictRequest) (*http.Response, []byte) {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	resp, err := http.Post(url+"/v1/predict", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func randomBatch(n int) ([]int, []float32) {
	shape := []int{n, 3, 32, 32}
	data := make([]float32, tensor.Shape(shape).NumElements())
	rng := rand.New(rand.NewSource(1))
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}
	return shape, data
}

func TestModelInfo(t *testing.T) {
	srv, model := newTestServer(t)

	var info ModelInfo
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/model", &info))
	assert.Equal(t, ModelInfo{Depth: 8, NumClasses: 4, NumConvs: 3, Parameters: model.NumParameters()}, info)
	assert.False(t, model.Training(), "server must hold the model in eval mode")
}

func TestPenalty(t *testing.T) {
	srv, model := newTestServer(t)

	var resp PenaltyResponse
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/penalty", &resp))
	assert.InDelta(t, model.OrthogonalityPenalty(), resp.Penalty, 1e-9)
}

func TestPathWeights(t *testing.T) {
	srv, model := newTestServer(t)

	var resp PathResponse
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/paths/2", &resp))
	assert.Equal(t, 2, resp.Index)
	assert.Equal(t, []int{16, 3, 3, 3}, resp.Shape)
	assert.Equal(t, model.PathWeights()[2].Data(), resp.Data)
	assert.Greater(t, resp.Norm, 0.0)

	var errResp errorResponse
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/v1/paths/3", &errResp))
	assert.Contains(t, errResp.Error, "path index")
}

func TestPredict_MatchesForward(t *testing.T) {
	srv, model := newTestServer(t)
	shape, data := randomBatch(2)

	resp, body := postPredict(t, srv.URL, PredictRequest{Mode: "all", Shape: shape, Data: data})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var got PredictResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, []int{0, 1, 2}, got.Paths)
	require.Len(t, got.Logits, 3)
	require.Len(t, got.Predictions, 3)

	x, err := tensor.FromSlice(data, tensor.Shape(shape), cpu.New())
	require.NoError(t, err)
	want, err := model.ForwardAll(x)
	require.NoError(t, err)

	for p := range want {
		require.Len(t, got.Logits[p], 2)
		assert.Equal(t, want[p].Data()[:4], got.Logits[p][0])
		assert.Equal(t, want[p].Data()[4:], got.Logits[p][1])
	}
}

func TestPredict_SelectedAndRandom(t *testing.T) {
	srv, _ := newTestServer(t)
	shape, data := randomBatch(1)

	path := 1
	resp, body := postPredict(t, srv.URL, PredictRequest{Mode: "selected", Path: &path, Shape: shape, Data: data})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var selected PredictResponse
	require.NoError(t, json.Unmarshal(body, &selected))
	assert.Equal(t, []int{1}, selected.Paths)
	require.Len(t, selected.Logits, 1)
	assert.Len(t, selected.Logits[0][0], 4)

	resp, body = postPredict(t, srv.URL, PredictRequest{Mode: "random", Shape: shape, Data: data})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var random PredictResponse
	require.NoError(t, json.Unmarshal(body, &random))
	require.Len(t, random.Paths, 1)
	assert.Contains(t, []int{0, 1, 2}, random.Paths[0])
}

func TestPredict_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t)
	shape, data := randomBatch(1)
	outOfRange := 7

	tests := []struct {
		name string
		req  PredictRequest
		want string
	}{
		{"unknown mode", PredictRequest{Mode: "some", Shape: shape, Data: data}, "invalid forward mode"},
		{"selected without path", PredictRequest{Mode: "selected", Shape: shape, Data: data}, "requires path"},
		{"path out of range", PredictRequest{Mode: "selected", Path: &outOfRange, Shape: shape, Data: data}, "path index"},
		{"rank 3", PredictRequest{Mode: "all", Shape: []int{3, 32, 32}, Data: data}, "invalid input"},
		{"wrong channels", PredictRequest{Mode: "all", Shape: []int{3, 1, 32, 32}, Data: data}, "invalid input"},
		{"data length", PredictRequest{Mode: "all", Shape: []int{2, 3, 32, 32}, Data: data}, "invalid input"},
		{"zero dim", PredictRequest{Mode: "all", Shape: []int{0, 3, 32, 32}, Data: nil}, "invalid input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := postPredict(t, srv.URL, tt.req)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var errResp errorResponse
			require.NoError(t, json.Unmarshal(body, &errResp))
			assert.Contains(t, errResp.Error, tt.want)
		})
	}
}

func TestPredict_MalformedJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/predict", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/predict")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestSplitRows(t *testing.T) {
	logits, err := tensor.FromSlice([]float32{0.1, 0.9, 0.3, 2, -1, 0}, tensor.Shape{2, 3}, cpu.New())
	require.NoError(t, err)

	rows, preds := splitRows(logits)
	assert.Equal(t, [][]float32{{0.1, 0.9, 0.3}, {2, -1, 0}}, rows)
	assert.Equal(t, []int{1, 0}, preds)
}
