// Package resolver decides which answer to give a discovered question.
//
// Sources are tried in order: an exact answer-bank hit, the closest fuzzy bank match, the
// experience-question heuristic and finally the operator. Answers obtained from the operator are
// written back to the bank before Resolve returns.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/xkilldash9x/applypilot/internal/answerbank"
	"github.com/xkilldash9x/applypilot/internal/form"
)

// Source records how an answer was obtained.
type Source string

const (
	SourceExact     Source = "Exact"
	SourceFuzzy     Source = "Fuzzy"
	SourceHeuristic Source = "Heuristic"
	SourceElicited  Source = "Elicited"
)

// Resolution is the chosen answer for one descriptor.
type Resolution struct {
	Answer string
	Source Source
	// MatchedQuestion is the bank question an Exact or Fuzzy answer came from.
	MatchedQuestion string
	// Score is the word-overlap ratio of a Fuzzy match.
	Score float64
}

// Elicitor obtains an answer from the operator.
type Elicitor interface {
	Elicit(ctx context.Context, d form.Descriptor) (string, error)
}

// Rand is the random source behind the heuristic.
type Rand interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// Options tunes matching.
type Options struct {
	// FuzzyThreshold is exclusive: a candidate must score strictly above it.
	FuzzyThreshold float64
	// FuzzyDisabled turns off word-overlap matching entirely.
	FuzzyDisabled        bool
	HeuristicEnabled     bool
	HeuristicProbability float64
	// Rand defaults to math/rand/v2.
	Rand Rand
}

// Resolver maps descriptors to answers.
type Resolver struct {
	bank     *answerbank.Bank
	elicitor Elicitor
	opts     Options
	logger   *zap.Logger
}

// New builds a resolver over bank.
func New(bank *answerbank.Bank, elicitor Elicitor, opts Options, logger *zap.Logger) *Resolver {
	if opts.Rand == nil {
		opts.Rand = globalRand{}
	}
	return &Resolver{
		bank:     bank,
		elicitor: elicitor,
		opts:     opts,
		logger:   logger.Named("resolver"),
	}
}

// Resolve returns the answer for d. An error means no answer could be obtained at all.
func (r *Resolver) Resolve(ctx context.Context, d form.Descriptor) (Resolution, error) {
	if e, ok := r.bank.Lookup(d.Text); ok {
		return Resolution{Answer: e.Answer, Source: SourceExact, MatchedQuestion: e.Question, Score: 1}, nil
	}

	if !r.opts.FuzzyDisabled {
		if e, score, ok := bestMatch(d.Text, r.bank.Entries(), r.opts.FuzzyThreshold); ok {
			r.logger.Info("Fuzzy matched question.",
				zap.String("question", d.Text),
				zap.String("matched", e.Question),
				zap.Float64("score", score),
			)
			return Resolution{Answer: e.Answer, Source: SourceFuzzy, MatchedQuestion: e.Question, Score: score}, nil
		}
	}

	if r.opts.HeuristicEnabled {
		if answer, ok := experienceAnswer(d, r.opts.HeuristicProbability, r.opts.Rand); ok {
			r.logger.Info("Answered experience question heuristically.",
				zap.String("question", d.Text),
				zap.String("answer", answer),
			)
			return Resolution{Answer: answer, Source: SourceHeuristic}, nil
		}
	}

	return r.elicit(ctx, d)
}

// Reelicit asks the operator again and overwrites the stored answer. It is used when a stored
// answer no longer applies to the live control.
func (r *Resolver) Reelicit(ctx context.Context, d form.Descriptor) (Resolution, error) {
	r.logger.Warn("Stored answer failed to apply, asking again.", zap.String("question", d.Text))
	return r.elicit(ctx, d)
}

func (r *Resolver) elicit(ctx context.Context, d form.Descriptor) (Resolution, error) {
	answer, err := r.elicitor.Elicit(ctx, d)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to elicit answer for %q: %w", d.Text, err)
	}

	entry := answerbank.Entry{
		Question: d.Text,
		Type:     d.Type,
		Options:  d.Options,
		Answer:   answer,
	}
	if err := r.bank.Put(ctx, entry); err != nil {
		if errors.Is(err, context.Canceled) {
			return Resolution{}, err
		}
		// The answer is still usable for this step; losing it only costs a future prompt.
		r.logger.Error("Failed to save answer to bank.", zap.String("question", d.Text), zap.Error(err))
	}
	return Resolution{Answer: answer, Source: SourceElicited}, nil
}
