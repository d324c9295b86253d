package corpus

import (
	"time"

	"git.home.luguber.info/inful/sitemirage/internal/mutate"
)

// Outcome records what happened to one file during the mutation pass.
type Outcome string

const (
	// OutcomeMutated means text or markup was rewritten against the model.
	OutcomeMutated Outcome = "mutated"
	// OutcomeCopied means the file passed through byte-identically.
	OutcomeCopied Outcome = "copied"
	// OutcomeFallback means rewriting failed and the original bytes were
	// emitted verbatim.
	OutcomeFallback Outcome = "fallback"
	// OutcomeSkipped means the input could not be read; no output was written.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means the output could not be written.
	OutcomeFailed Outcome = "failed"
)

// FileResult is the per-file record kept for logging and the run history.
type FileResult struct {
	Path    string
	Kind    Kind
	Outcome Outcome
	Stats   mutate.Stats
	Err     error
}

// Report aggregates one full run. Failed counts both unwritable outputs and
// unreadable inputs; fallbacks are counted separately because the output tree
// is still complete when only fallbacks occurred.
type Report struct {
	Seed uint64

	Files     int
	Mutated   int
	Copied    int
	Fallbacks int
	Skipped   int
	Failed    int

	Words        int
	WordsMutated int
	ImageRefs    int

	ImagesTotal   int
	ImagesPlanned int

	Duration time.Duration
	Results  []FileResult
}

func (r *Report) add(res FileResult) {
	r.Files++
	switch res.Outcome {
	case OutcomeMutated:
		r.Mutated++
	case OutcomeCopied:
		r.Copied++
	case OutcomeFallback:
		r.Fallbacks++
	case OutcomeSkipped:
		r.Skipped++
		r.Failed++
	case OutcomeFailed:
		r.Failed++
	}
	r.Words += res.Stats.Words
	r.WordsMutated += res.Stats.Mutated
	r.ImageRefs += res.Stats.ImageRefs
	r.Results = append(r.Results, res)
}

// Complete reports whether every input file made it into the output tree.
func (r *Report) Complete() bool { return r.Failed == 0 }
