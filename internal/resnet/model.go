package resnet

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/orthopath/orthopath/internal/nn"
	"github.com/orthopath/orthopath/internal/tensor"
)

// Output holds the logits of one forward pass. Paths[k] is the path that
// produced Logits[k]; ALL mode yields every path in index order.
type Output[B tensor.Backend] struct {
	Paths  []int
	Logits []*tensor.Tensor[float32, B]
}

// Single returns the only logits tensor of a RANDOM or SELECTED pass.
// Panics if the output holds more than one tensor.
func (o *Output[B]) Single() *tensor.Tensor[float32, B] {
	if len(o.Logits) != 1 {
		panic(fmt.Sprintf("resnet: Single called on output with %d logits tensors", len(o.Logits)))
	}
	return o.Logits[0]
}

// CifarResNet is the multi-path backbone:
//
//	x -> convs[path] -> bn_1 -> relu -> stage_1 -> stage_2 -> stage_3
//	  -> avgpool(8) -> flatten -> classifier -> logits
//
// The structure is fixed at construction. A new model is in training mode.
type CifarResNet[B tensor.Backend] struct {
	cfg        Config
	convs      []*nn.Conv2D[B]
	bn1        *nn.BatchNorm2D[B]
	relu       *nn.ReLU[B]
	stages     [3]*Stage[B]
	avgpool    *nn.AvgPool2D[B]
	classifier *nn.Linear[B]
	sampler    PathSampler
	training   bool
	backend    B
}

// New builds a model from cfg.
func New[B tensor.Backend](cfg Config, backend B) (*CifarResNet[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &CifarResNet[B]{
		cfg:      cfg,
		convs:    make([]*nn.Conv2D[B], cfg.NumConvs),
		bn1:      nn.NewBatchNorm2D(StemChannels, backend),
		relu:     nn.NewReLU[B](),
		avgpool:  nn.NewAvgPool2D[B](PoolSize, PoolSize),
		training: true,
		backend:  backend,
	}
	for i := range m.convs {
		m.convs[i] = nn.NewConv2D(InputChannels, StemChannels, 3, 3, 1, 1, false, backend)
	}

	inPlanes := StemChannels
	for s := range m.stages {
		stage, err := NewStage(cfg.BlocksPerStage(), inPlanes, stageWidths[s], stageStrides[s], backend)
		if err != nil {
			return nil, fmt.Errorf("stage_%d: %w", s+1, err)
		}
		m.stages[s] = stage
		inPlanes = stageWidths[s] * Expansion
	}
	m.classifier = nn.NewLinear(stageWidths[2]*Expansion, cfg.NumClasses, backend)

	samplerSeed := time.Now().UnixNano()
	if cfg.Seed >= 0 {
		rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // G404: weight init, not security
		m.resetParameters(rng)
		samplerSeed = rng.Int63()
	}
	m.sampler = newLockedSampler(samplerSeed)

	return m, nil
}

// ResNet20 builds the depth-20 preset.
func ResNet20[B tensor.Backend](numClasses, numConvs int, backend B) (*CifarResNet[B], error) {
	return New(Config{Depth: 20, NumClasses: numClasses, NumConvs: numConvs, Seed: -1}, backend)
}

// resetParameters redraws every convolution and the classifier from rng,
// in module order.
func (m *CifarResNet[B]) resetParameters(rng *rand.Rand) {
	for _, conv := range m.convs {
		conv.ResetParameters(rng)
	}
	for _, stage := range m.stages {
		for _, block := range stage.Blocks() {
			for _, conv := range block.Convs() {
				conv.ResetParameters(rng)
			}
		}
	}
	m.classifier.ResetParameters(rng)
}

// SetSampler replaces the sampler Random() draws from. The sampler must be
// safe for the caller's concurrency; a nil sampler restores a fresh
// mutex-guarded default.
func (m *CifarResNet[B]) SetSampler(sampler PathSampler) {
	if sampler == nil {
		sampler = newLockedSampler(time.Now().UnixNano())
	}
	m.sampler = sampler
}

// Forward evaluates the paths mode selects.
//
// Errors: ErrInvalidInput for a malformed batch, ErrPathIndex for a
// selected (or sampled) index outside [0, NumConvs). Nothing is computed
// when an error is returned.
func (m *CifarResNet[B]) Forward(x *tensor.Tensor[float32, B], mode Mode) (*Output[B], error) {
	if err := m.checkInput(x.Shape()); err != nil {
		return nil, err
	}

	switch mode.kind {
	case ModeAll:
		out := &Output[B]{
			Paths:  make([]int, m.cfg.NumConvs),
			Logits: make([]*tensor.Tensor[float32, B], m.cfg.NumConvs),
		}
		for i := range m.convs {
			out.Paths[i] = i
			out.Logits[i] = m.forwardPath(x, i)
		}
		return out, nil

	case ModeRandom:
		sampler := mode.sampler
		if sampler == nil {
			sampler = m.sampler
		}
		i := sampler.Intn(m.cfg.NumConvs)
		if err := m.checkPath(i); err != nil {
			return nil, fmt.Errorf("sampler: %w", err)
		}
		return m.single(x, i), nil

	case ModeSelected:
		if err := m.checkPath(mode.index); err != nil {
			return nil, err
		}
		return m.single(x, mode.index), nil

	default:
		return nil, fmt.Errorf("%w: kind %d", ErrInvalidMode, mode.kind)
	}
}

// ForwardAll returns the logits of every path in index order.
func (m *CifarResNet[B]) ForwardAll(x *tensor.Tensor[float32, B]) ([]*tensor.Tensor[float32, B], error) {
	out, err := m.Forward(x, All())
	if err != nil {
		return nil, err
	}
	return out.Logits, nil
}

// ForwardRandom returns the logits of one sampled path and its index.
func (m *CifarResNet[B]) ForwardRandom(x *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], int, error) {
	out, err := m.Forward(x, Random())
	if err != nil {
		return nil, 0, err
	}
	return out.Single(), out.Paths[0], nil
}

// ForwardPath returns the logits of path i.
func (m *CifarResNet[B]) ForwardPath(x *tensor.Tensor[float32, B], i int) (*tensor.Tensor[float32, B], error) {
	out, err := m.Forward(x, Selected(i))
	if err != nil {
		return nil, err
	}
	return out.Single(), nil
}

func (m *CifarResNet[B]) single(x *tensor.Tensor[float32, B], i int) *Output[B] {
	return &Output[B]{
		Paths:  []int{i},
		Logits: []*tensor.Tensor[float32, B]{m.forwardPath(x, i)},
	}
}

func (m *CifarResNet[B]) forwardPath(x *tensor.Tensor[float32, B], i int) *tensor.Tensor[float32, B] {
	out := m.relu.Forward(m.bn1.Forward(m.convs[i].Forward(x)))
	for _, stage := range m.stages {
		out = stage.Forward(out)
	}
	out = m.avgpool.Forward(out).Flatten()
	return m.classifier.Forward(out)
}

func (m *CifarResNet[B]) checkPath(i int) error {
	if i < 0 || i >= m.cfg.NumConvs {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrPathIndex, i, m.cfg.NumConvs)
	}
	return nil
}

// checkInput requires [N, 3, H, W] with H and W reduced by the two stride-2
// stages to a size the 8x8 pool collapses to 1x1.
func (m *CifarResNet[B]) checkInput(shape tensor.Shape) error {
	if len(shape) != 4 || shape[1] != InputChannels {
		return fmt.Errorf("%w: expected [N, %d, H, W], got %v", ErrInvalidInput, InputChannels, shape)
	}
	for _, dim := range shape[2:] {
		final := dim
		for _, s := range stageStrides {
			final = (final-1)/s + 1
		}
		if final < PoolSize || final >= 2*PoolSize {
			return fmt.Errorf("%w: spatial size %v reaches %dx%d before pooling, need %d..%d (e.g. 32x32)",
				ErrInvalidInput, shape[2:], final, final, PoolSize, 2*PoolSize-1)
		}
	}
	return nil
}

// Train switches every batch-norm layer to batch statistics.
func (m *CifarResNet[B]) Train() {
	m.SetTraining(true)
}

// Eval switches every batch-norm layer to running statistics.
func (m *CifarResNet[B]) Eval() {
	m.SetTraining(false)
}

// SetTraining sets the batch-norm mode of the whole model.
func (m *CifarResNet[B]) SetTraining(training bool) {
	m.training = training
	m.bn1.SetTraining(training)
	for _, stage := range m.stages {
		stage.SetTraining(training)
	}
}

// Training reports whether the model is in training mode.
func (m *CifarResNet[B]) Training() bool {
	return m.training
}

// Config returns the construction configuration.
func (m *CifarResNet[B]) Config() Config {
	return m.cfg
}

// NumConvs returns the number of paths.
func (m *CifarResNet[B]) NumConvs() int {
	return m.cfg.NumConvs
}

// Paths returns the first-layer convolutions, one per path.
func (m *CifarResNet[B]) Paths() []*nn.Conv2D[B] {
	return m.convs
}

// PathWeights returns the weight tensor of every path, in index order.
func (m *CifarResNet[B]) PathWeights() []*tensor.Tensor[float32, B] {
	weights := make([]*tensor.Tensor[float32, B], len(m.convs))
	for i, conv := range m.convs {
		weights[i] = conv.Weight().Tensor()
	}
	return weights
}

// Stages returns stage_1..stage_3.
func (m *CifarResNet[B]) Stages() [3]*Stage[B] {
	return m.stages
}

// Classifier returns the final linear layer.
func (m *CifarResNet[B]) Classifier() *nn.Linear[B] {
	return m.classifier
}

// Parameters returns every trainable parameter: path weights, bn_1, the
// stages and the classifier, in that order.
func (m *CifarResNet[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, conv := range m.convs {
		params = append(params, conv.Parameters()...)
	}
	params = append(params, m.bn1.Parameters()...)
	for _, stage := range m.stages {
		params = append(params, stage.Parameters()...)
	}
	return append(params, m.classifier.Parameters()...)
}

// NumParameters returns the number of scalar trainable parameters.
func (m *CifarResNet[B]) NumParameters() int {
	n := 0
	for _, p := range m.Parameters() {
		n += p.Tensor().NumElements()
	}
	return n
}

// ZeroGrad clears every parameter gradient.
func (m *CifarResNet[B]) ZeroGrad() {
	for _, p := range m.Parameters() {
		p.ZeroGrad()
	}
}

func (m *CifarResNet[B]) children() map[string]nn.Module[B] {
	children := map[string]nn.Module[B]{
		"bn_1":       m.bn1,
		"classifier": m.classifier,
	}
	for i, conv := range m.convs {
		children["convs."+strconv.Itoa(i)] = conv
	}
	for s, stage := range m.stages {
		children["stage_"+strconv.Itoa(s+1)] = stage
	}
	return children
}

// StateDict returns every parameter and batch-norm buffer under its
// PyTorch name: convs.{i}.weight, bn_1.*, stage_{s}.{b}.conv_a.weight,
// stage_{s}.{b}.bn_a.*, ..., classifier.weight and classifier.bias.
// The returned tensors alias the model's storage.
func (m *CifarResNet[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for prefix, child := range m.children() {
		nn.MergeStateDict(sd, prefix, child.StateDict())
	}
	return sd
}

// LoadStateDict copies stateDict into the model. Every entry StateDict
// names must be present with matching shape and dtype; unknown keys are
// rejected except PyTorch's num_batches_tracked counters. Every entry is
// validated before any is copied, so a failed load leaves the model as it was.
func (m *CifarResNet[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	expected := m.StateDict()
	var unexpected []string
	for key := range stateDict {
		if _, ok := expected[key]; !ok && !strings.HasSuffix(key, ".num_batches_tracked") {
			unexpected = append(unexpected, key)
		}
	}
	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		return fmt.Errorf("unexpected keys in state dict: %s", strings.Join(unexpected, ", "))
	}
	if err := nn.CheckStateDict(expected, stateDict); err != nil {
		return err
	}

	for prefix, child := range m.children() {
		if err := child.LoadStateDict(nn.SubStateDict(stateDict, prefix)); err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
	}
	return nil
}

// String returns a summary of the architecture.
func (m *CifarResNet[B]) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CifarResNet(depth=%d, num_classes=%d, num_convs=%d)\n", m.cfg.Depth, m.cfg.NumClasses, m.cfg.NumConvs)
	fmt.Fprintf(&sb, "  convs: %d x %s\n", len(m.convs), m.convs[0])
	fmt.Fprintf(&sb, "  bn_1: %s\n", m.bn1)
	for s, stage := range m.stages {
		fmt.Fprintf(&sb, "  stage_%d: %d blocks, first %s\n", s+1, len(stage.Blocks()), stage.Blocks()[0])
	}
	fmt.Fprintf(&sb, "  avgpool: %s\n", m.avgpool)
	fmt.Fprintf(&sb, "  classifier: %s", m.classifier)
	return sb.String()
}
