// Package trainer drives the joint training loop: batching, parallel
// per-example gradient computation, the single parameter update per
// batch, periodic evaluation and deploy snapshots.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/happyhackingspace/slu/crf"
	"github.com/happyhackingspace/slu/internal/config"
	"github.com/happyhackingspace/slu/internal/dataset"
	"github.com/happyhackingspace/slu/internal/deploy"
	"github.com/happyhackingspace/slu/model"
)

// State is the mutable loop state, passed explicitly so the controller
// can be tested in isolation.
type State struct {
	Epoch        int
	Step         int
	BestAccuracy float64
}

// Metrics summarizes one evaluation pass over the test split.
type Metrics struct {
	SlotCorrect   int
	SlotTotal     int
	SeqCorrect    int
	SeqTotal      int
	IntentCorrect int
	IntentTotal   int
}

// SlotAccuracy is the token-level slot tagging accuracy.
func (m *Metrics) SlotAccuracy() float64 { return ratio(m.SlotCorrect, m.SlotTotal) }

// SequenceAccuracy is the fraction of fully correct slot sequences.
func (m *Metrics) SequenceAccuracy() float64 { return ratio(m.SeqCorrect, m.SeqTotal) }

// IntentAccuracy is the intent classification accuracy.
func (m *Metrics) IntentAccuracy() float64 { return ratio(m.IntentCorrect, m.IntentTotal) }

// Joint averages sequence and intent accuracy; the deploy-on-best
// policy tracks this number.
func (m *Metrics) Joint() float64 {
	return (m.SequenceAccuracy() + m.IntentAccuracy()) / 2
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Trainer owns the model parameters for the duration of training. The
// parameters are mutated in exactly one place, the optimizer step at
// the end of each batch; gradient workers only read them.
type Trainer struct {
	cfg     *config.Config
	net     *model.Network
	opt     *model.Adam
	vocab   *dataset.Vocab
	slots   *dataset.Index
	intents *dataset.Index
	train   []dataset.Encoded
	test    []dataset.Example
	rng     *rand.Rand
	workers int
}

// New prepares a training run. Training examples are encoded up front
// against the freshly built (and from here on frozen) vocabularies.
func New(cfg *config.Config, net *model.Network, vocab *dataset.Vocab, slots, intents *dataset.Index,
	trainExamples, testExamples []dataset.Example) (*Trainer, error) {

	encoded := make([]dataset.Encoded, 0, len(trainExamples))
	for _, ex := range trainExamples {
		enc, err := dataset.Encode(ex, vocab, slots, intents, cfg.Train.SequenceLength)
		if err != nil {
			// Label sets were built from this very split; an unseen
			// label here is a programming error, not bad data.
			return nil, fmt.Errorf("trainer: encoding training split: %w", err)
		}
		encoded = append(encoded, enc)
	}

	return &Trainer{
		cfg:     cfg,
		net:     net,
		opt:     model.NewAdam(cfg.Train.LearningRate),
		vocab:   vocab,
		slots:   slots,
		intents: intents,
		train:   encoded,
		test:    testExamples,
		rng:     rand.New(rand.NewSource(cfg.Train.Seed)),
		workers: runtime.GOMAXPROCS(0),
	}, nil
}

// Run executes the configured number of epochs. Cancellation is
// honored between batches, so an interrupted run always leaves the
// parameters of the last completed batch intact. The best-eval and
// final parameter states are deployed to the configured path.
func (t *Trainer) Run(ctx context.Context) (*State, error) {
	state := &State{}
	slog.Info("Training started",
		"examples", len(t.train),
		"epochs", t.cfg.Train.Epochs,
		"batch_size", t.cfg.Train.BatchSize,
		"workers", t.workers)

	for epoch := 1; epoch <= t.cfg.Train.Epochs; epoch++ {
		state.Epoch = epoch
		batches := dataset.MakeBatches(t.train, t.cfg.Train.BatchSize, t.rng)

		for bi, batch := range batches {
			if err := ctx.Err(); err != nil {
				return state, fmt.Errorf("trainer: interrupted at epoch %d step %d: %w", epoch, state.Step, err)
			}

			loss, err := t.step(&batch)
			if err != nil {
				var ne *crf.NumericError
				if errors.As(err, &ne) {
					return state, fmt.Errorf("trainer: batch %d of epoch %d: %w", bi, epoch, err)
				}
				return state, err
			}
			state.Step++

			if state.Step%50 == 0 {
				slog.Debug("Batch complete", "epoch", epoch, "step", state.Step, "loss", loss)
			}
			if t.cfg.Train.EvalSteps > 0 && state.Step%t.cfg.Train.EvalSteps == 0 {
				t.evalAndSnapshot(state)
			}
		}
		slog.Info("Epoch complete", "epoch", epoch, "step", state.Step)
	}

	t.evalAndSnapshot(state)
	if err := t.saveArtifact(); err != nil {
		return state, err
	}
	slog.Info("Training done", "steps", state.Step, "best_accuracy", state.BestAccuracy, "deploy", t.cfg.Deploy.Path)
	return state, nil
}

// step computes the joint loss gradient over one batch and applies a
// single parameter update. Per-example work fans out over a worker
// pool; each worker accumulates into a private gradient buffer and the
// buffers are merged before the one optimizer step (accumulate then
// apply).
func (t *Trainer) step(batch *dataset.Batch) (float64, error) {
	n := batch.Size()
	workers := min(t.workers, n)

	grads := make([]*model.Grads, workers)
	losses := make([]float64, workers)
	seeds := make([]int64, workers)
	for w := 0; w < workers; w++ {
		grads[w] = t.net.NewGrads()
		seeds[w] = t.rng.Int63()
	}

	var mu sync.Mutex
	next := 0
	takeExample := func() int {
		mu.Lock()
		defer mu.Unlock()
		if next >= n {
			return -1
		}
		i := next
		next++
		return i
	}

	g := new(errgroup.Group)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seeds[w]))
			for {
				i := takeExample()
				if i < 0 {
					return nil
				}
				ids, gold, intent := batch.Row(i)
				loss, err := t.exampleGradient(ids, gold, intent, rng, grads[w])
				if err != nil {
					return err
				}
				losses[w] += loss
			}
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	merged := grads[0]
	total := losses[0]
	for w := 1; w < workers; w++ {
		merged.Merge(grads[w])
		total += losses[w]
	}
	merged.Scale(1 / float64(n))
	t.opt.Step(t.net, merged)
	return total / float64(n), nil
}

// exampleGradient runs one example forward and backward, adding its
// gradient contribution to g. The model parameters are only read here.
func (t *Trainer) exampleGradient(ids, gold []int, intent int, rng *rand.Rand, g *model.Grads) (float64, error) {
	emissions, logits, cache := t.net.Forward(ids, true, rng)

	nll, gradE, gradTrans, err := t.net.CRF.Loss(emissions, gold)
	if err != nil {
		return 0, err
	}
	ce, gradLogits := model.SoftmaxCrossEntropy(logits, intent)

	w := t.cfg.Train.IntentLossWeight
	if w != 1 {
		for i := range gradLogits {
			gradLogits[i] *= w
		}
	}

	t.net.Backward(cache, gradE, gradLogits, g)
	for i := range gradTrans {
		for j := range gradTrans[i] {
			g.Trans[i][j] += gradTrans[i][j]
		}
	}
	return nll + w*ce, nil
}

// evalAndSnapshot evaluates on the test split and deploys when the
// joint accuracy improves. It runs strictly between batches, so it
// always sees a settled parameter state.
func (t *Trainer) evalAndSnapshot(state *State) {
	if len(t.test) == 0 {
		return
	}
	m := Evaluate(t.net, t.vocab, t.slots, t.intents, t.test)
	slog.Info("Evaluation",
		"epoch", state.Epoch,
		"step", state.Step,
		"slot_acc", fmt.Sprintf("%.4f", m.SlotAccuracy()),
		"seq_acc", fmt.Sprintf("%.4f", m.SequenceAccuracy()),
		"intent_acc", fmt.Sprintf("%.4f", m.IntentAccuracy()))

	if m.Joint() > state.BestAccuracy {
		state.BestAccuracy = m.Joint()
		if err := t.saveArtifact(); err != nil {
			slog.Warn("Best-eval snapshot failed", "error", err)
		} else {
			slog.Info("Best-eval snapshot deployed", "accuracy", fmt.Sprintf("%.4f", state.BestAccuracy))
		}
	}
}

func (t *Trainer) saveArtifact() error {
	return deploy.Save(t.cfg.Deploy.Path, &deploy.Artifact{
		Tokenizer:    t.cfg.Tokenizer,
		Vocab:        t.vocab,
		SlotLabels:   t.slots,
		IntentLabels: t.intents,
		Network:      t.net,
	})
}

// Evaluate decodes every example read-only against the current
// parameters. Examples with labels outside the frozen label sets are
// reported and skipped; they never abort the rest of the pass.
func Evaluate(net *model.Network, vocab *dataset.Vocab, slots, intents *dataset.Index, examples []dataset.Example) *Metrics {
	m := &Metrics{}
	for _, ex := range examples {
		enc, err := dataset.Encode(ex, vocab, slots, intents, 0)
		if err != nil {
			var le *dataset.LabelError
			if errors.As(err, &le) {
				slog.Warn("Skipping example with unseen label", "error", err)
				continue
			}
			slog.Warn("Skipping unencodable example", "error", err)
			continue
		}

		emissions, logits, _ := net.Forward(enc.Tokens, false, nil)
		path, _, err := net.CRF.Decode(emissions)
		if err != nil {
			slog.Warn("Decode failed", "error", err)
			continue
		}

		allCorrect := true
		for i, want := range enc.Slots {
			if path[i] == want {
				m.SlotCorrect++
			} else {
				allCorrect = false
			}
			m.SlotTotal++
		}
		if allCorrect {
			m.SeqCorrect++
		}
		m.SeqTotal++

		if model.Argmax(logits) == enc.Intent {
			m.IntentCorrect++
		}
		m.IntentTotal++
	}
	return m
}
