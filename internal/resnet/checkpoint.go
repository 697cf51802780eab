package resnet

import (
	"fmt"
	"io"
	"strconv"

	"github.com/orthopath/orthopath/internal/serialization"
	"github.com/orthopath/orthopath/internal/tensor"
)

// Checkpoint metadata keys.
const (
	MetaFormat     = "format"
	MetaDepth      = "depth"
	MetaNumClasses = "num_classes"
	MetaNumConvs   = "num_convs"

	formatName = "orthopath.cifar_resnet"
)

// Metadata returns the checkpoint metadata describing m's architecture.
func (m *CifarResNet[B]) Metadata() map[string]string {
	return map[string]string{
		MetaFormat:     formatName,
		MetaDepth:      strconv.Itoa(m.cfg.Depth),
		MetaNumClasses: strconv.Itoa(m.cfg.NumClasses),
		MetaNumConvs:   strconv.Itoa(m.cfg.NumConvs),
	}
}

// Save writes m's state dict and architecture to a SafeTensors file.
func Save[B tensor.Backend](path string, m *CifarResNet[B]) error {
	if err := serialization.WriteFile(path, m.StateDict(), m.Metadata()); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// Load rebuilds a model from a checkpoint written by Save. The model is
// returned in evaluation mode.
func Load[B tensor.Backend](path string, backend B) (*CifarResNet[B], error) {
	stateDict, metadata, err := serialization.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	m, err := fromStateDict(stateDict, metadata, backend)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return m, nil
}

// Encode writes m to w in the checkpoint format.
func Encode[B tensor.Backend](w io.Writer, m *CifarResNet[B]) error {
	return serialization.Encode(w, m.StateDict(), m.Metadata())
}

// Decode reads a model written by Encode.
func Decode[B tensor.Backend](r io.Reader, backend B) (*CifarResNet[B], error) {
	stateDict, metadata, err := serialization.Decode(r)
	if err != nil {
		return nil, err
	}
	return fromStateDict(stateDict, metadata, backend)
}

// Upper bounds on the architecture a checkpoint may request. The model is
// built before its weights are checked, so these cap what a malformed file
// can allocate.
const (
	MaxCheckpointDepth   = 1202
	MaxCheckpointClasses = 100_000
	MaxCheckpointConvs   = 1024
)

// ConfigFromMetadata parses the architecture recorded by Metadata.
func ConfigFromMetadata(metadata map[string]string) (Config, error) {
	if f := metadata[MetaFormat]; f != formatName {
		return Config{}, fmt.Errorf("%w: format %q, want %q", ErrInvalidCheckpoint, f, formatName)
	}
	cfg := Config{Seed: -1}
	for _, field := range []struct {
		key string
		dst *int
		max int
	}{
		{MetaDepth, &cfg.Depth, MaxCheckpointDepth},
		{MetaNumClasses, &cfg.NumClasses, MaxCheckpointClasses},
		{MetaNumConvs, &cfg.NumConvs, MaxCheckpointConvs},
	} {
		v, err := strconv.Atoi(metadata[field.key])
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s=%q", ErrInvalidCheckpoint, field.key, metadata[field.key])
		}
		if v > field.max {
			return Config{}, fmt.Errorf("%w: %s=%d exceeds %d", ErrInvalidCheckpoint, field.key, v, field.max)
		}
		*field.dst = v
	}
	return cfg, nil
}

func fromStateDict[B tensor.Backend](stateDict map[string]*tensor.RawTensor, metadata map[string]string, backend B) (*CifarResNet[B], error) {
	cfg, err := ConfigFromMetadata(metadata)
	if err != nil {
		return nil, err
	}
	m, err := New(cfg, backend)
	if err != nil {
		return nil, err
	}
	if err := m.LoadStateDict(stateDict); err != nil {
		return nil, err
	}
	m.Eval()
	return m, nil
}
