package resnet

import "fmt"

// Architecture constants.
const (
	InputChannels = 3
	StemChannels  = 16
	PoolSize      = 8

	// Expansion is the channel multiplier of a basic block.
	Expansion = 1
)

// stageWidths and stageStrides describe stage_1..stage_3.
var (
	stageWidths  = [3]int{16, 32, 64}
	stageStrides = [3]int{1, 2, 2}
)

// Config holds the backbone hyperparameters.
type Config struct {
	// Depth is the total number of weighted layers; (Depth-2) must be a
	// positive multiple of 6 (20, 32, 44, 56, 110).
	Depth int

	// NumClasses is the classifier output width.
	NumClasses int

	// NumConvs is the number of first-layer paths.
	NumConvs int

	// Seed drives weight initialization and the default path sampler.
	// -1 draws fresh randomness.
	Seed int64
}

// DefaultConfig returns the ResNet-20, CIFAR-10, 10-path configuration.
func DefaultConfig() Config {
	return Config{
		Depth:      20,
		NumClasses: 10,
		NumConvs:   10,
		Seed:       -1,
	}
}

// Validate checks the hyperparameters.
func (c Config) Validate() error {
	if c.Depth < 8 || (c.Depth-2)%6 != 0 {
		return fmt.Errorf("%w: %d (depth-2 must be a positive multiple of 6, e.g. 20, 32, 44, 56, 110)", ErrInvalidDepth, c.Depth)
	}
	if c.NumClasses <= 0 {
		return fmt.Errorf("%w: num_classes must be positive, got %d", ErrInvalidConfig, c.NumClasses)
	}
	if c.NumConvs <= 0 {
		return fmt.Errorf("%w: num_convs must be positive, got %d", ErrInvalidConfig, c.NumConvs)
	}
	return nil
}

// BlocksPerStage returns (Depth-2)/6.
func (c Config) BlocksPerStage() int {
	return (c.Depth - 2) / 6
}
