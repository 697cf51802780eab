package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"runtime"
	"time"

	"github.com/orthopath/orthopath/internal/backend/cpu"
	"github.com/orthopath/orthopath/internal/nn"
	"github.com/orthopath/orthopath/internal/optim"
	"github.com/orthopath/orthopath/internal/parallel"
	"github.com/orthopath/orthopath/internal/resnet"
	"github.com/orthopath/orthopath/internal/server"
	"github.com/orthopath/orthopath/internal/tensor"
)

// modelFlags are shared by every command that needs a model.
type modelFlags struct {
	depth      int
	numClasses int
	numConvs   int
	seed       int64
	checkpoint string
	workers    int
}

func (f *modelFlags) register(fs *flag.FlagSet) {
	def := resnet.DefaultConfig()
	fs.IntVar(&f.depth, "depth", def.Depth, "network depth (20, 32, 44, 56, 110)")
	fs.IntVar(&f.numClasses, "classes", def.NumClasses, "number of output classes")
	fs.IntVar(&f.numConvs, "convs", def.NumConvs, "number of first-layer paths")
	fs.Int64Var(&f.seed, "seed", def.Seed, "initialization seed (-1 = random)")
	fs.StringVar(&f.checkpoint, "checkpoint", "", "load weights and architecture from a SafeTensors checkpoint")
	fs.IntVar(&f.workers, "workers", runtime.NumCPU(), "CPU worker goroutines (1 = sequential)")
}

func (f *modelFlags) backend() *cpu.CPUBackend {
	cfg := parallel.DefaultConfig()
	cfg.NumWorkers = f.workers
	cfg.Enabled = f.workers > 1
	return cpu.NewWithConfig(cfg)
}

func (f *modelFlags) build(backend *cpu.CPUBackend) (*resnet.CifarResNet[*cpu.CPUBackend], error) {
	if f.checkpoint != "" {
		log.Println("loading checkpoint", f.checkpoint)
		return resnet.Load(f.checkpoint, backend)
	}
	return resnet.New(resnet.Config{
		Depth:      f.depth,
		NumClasses: f.numClasses,
		NumConvs:   f.numConvs,
		Seed:       f.seed,
	}, backend)
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func runSummary(args []string, out io.Writer) error {
	var mf modelFlags
	fs := newFlagSet("summary", out)
	mf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	model, err := mf.build(mf.backend())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, model)
	fmt.Fprintf(out, "parameters: %d\n", model.NumParameters())
	return nil
}

func runForward(args []string, out io.Writer) error {
	var mf modelFlags
	fs := newFlagSet("forward", out)
	mf.register(fs)
	modeFlag := fs.String("mode", "all", "forward mode: all, random or a path index")
	batch := fs.Int("batch", 4, "number of random 3x32x32 images")
	inputSeed := fs.Int64("input-seed", 1, "seed for the random input batch")
	train := fs.Bool("train", false, "use batch statistics instead of running statistics")
	if err := fs.Parse(args); err != nil {
		return err
	}

	mode, err := resnet.ParseMode(*modeFlag)
	if err != nil {
		return err
	}
	backend := mf.backend()
	model, err := mf.build(backend)
	if err != nil {
		return err
	}
	model.SetTraining(*train)

	rng := rand.New(rand.NewSource(*inputSeed)) //nolint:gosec // G404: synthetic input
	x := tensor.RandnFrom[float32](tensor.Shape{*batch, resnet.InputChannels, 32, 32}, rng, backend)

	start := time.Now()
	output, err := model.Forward(x, mode)
	if err != nil {
		return err
	}
	log.Printf("forward %s: %d path(s) in %v", mode, len(output.Paths), time.Since(start).Round(time.Millisecond))

	for k, logits := range output.Logits {
		fmt.Fprintf(out, "path %d: logits %v argmax %v\n", output.Paths[k], logits.Shape(), argmax(logits.Data(), logits.Shape()[1]))
	}
	return nil
}

func runPenalty(args []string, out io.Writer) error {
	var mf modelFlags
	fs := newFlagSet("penalty", out)
	mf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	model, err := mf.build(mf.backend())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "orthogonality penalty: %.6g\n", model.OrthogonalityPenalty())
	return err
}

func runOrthogonalize(args []string, out io.Writer) error {
	var mf modelFlags
	fs := newFlagSet("orthogonalize", out)
	mf.register(fs)
	steps := fs.Int("steps", 100, "number of SGD steps on the penalty")
	lr := fs.Float64("lr", 0.01, "learning rate")
	momentum := fs.Float64("momentum", 0, "momentum factor")
	path := fs.String("out", "", "write the result to this checkpoint")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *steps < 0 {
		return fmt.Errorf("%w: -steps must be non-negative", errUsage)
	}

	backend := mf.backend()
	model, err := mf.build(backend)
	if err != nil {
		return err
	}

	paths := model.Paths()
	params := make([]*nn.Parameter[*cpu.CPUBackend], len(paths))
	for i, conv := range paths {
		params[i] = conv.Weight()
	}
	opt := optim.NewSGD(params, optim.SGDConfig{LR: float32(*lr), Momentum: float32(*momentum)}, backend)

	before := model.OrthogonalityPenalty()
	for range *steps {
		opt.ZeroGrad()
		model.AccumulateOrthogonalityGrad(1)
		opt.Step()
	}
	opt.ZeroGrad()
	fmt.Fprintf(out, "orthogonality penalty: %.6g -> %.6g after %d steps\n", before, model.OrthogonalityPenalty(), *steps)

	if *path == "" {
		return nil
	}
	if err := resnet.Save(*path, model); err != nil {
		return err
	}
	log.Printf("wrote %s", *path)
	return nil
}

func runInit(args []string, out io.Writer) error {
	var mf modelFlags
	fs := newFlagSet("init", out)
	mf.register(fs)
	path := fs.String("out", "orthopath.safetensors", "checkpoint path to write")
	if err := fs.Parse(args); err != nil {
		return err
	}

	model, err := mf.build(mf.backend())
	if err != nil {
		return err
	}
	if err := resnet.Save(*path, model); err != nil {
		return err
	}
	log.Printf("wrote %s (%d parameters)", *path, model.NumParameters())
	return nil
}

func runServe(args []string, out io.Writer) error {
	var mf modelFlags
	fs := newFlagSet("serve", out)
	mf.register(fs)
	addr := fs.String("addr", ":8080", "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	backend := mf.backend()
	model, err := mf.build(backend)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           server.New(model, backend, log.Default()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("serving %d-path ResNet-%d at http://%s", model.NumConvs(), model.Config().Depth, *addr)
	return srv.ListenAndServe()
}

// argmax returns the index of the largest value in each row of width k.
func argmax(data []float32, k int) []int {
	preds := make([]int, len(data)/k)
	for n := range preds {
		row := data[n*k : (n+1)*k]
		for j, v := range row {
			if v > row[preds[n]] {
				preds[n] = j
			}
		}
	}
	return preds
}
