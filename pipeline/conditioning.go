package pipeline

import (
	"fmt"

	"github.com/pdevine/tensor"
	"go.uber.org/zap"
)

// conditioning.go builds the embedding tensors fed to the denoiser,
// including the unconditional/conditional duality needed for
// classifier-free guidance.

// tokenize runs the tokenizer with the text encoder's maximum sequence
// length, truncating and padding every prompt to that length.
func (p *Pipeline) tokenize(texts []string) (*tensor.Dense, error) {
	return p.tokenizer.Tokenize(texts, p.tokenizer.ModelMaxLength())
}

// GetTextEmbeddings computes the embedding tensor for a batch of prompts.
//
// When guided is false the result is the conditional embeddings, shape
// (batch, seq, hidden). When guided is true the opposing prompts (default:
// one blank string per batch element) are encoded as well and the result is
// the concatenation [unconditional; conditional] along the batch axis,
// shape (2*batch, seq, hidden). The order matters: the denoising step
// splits its noise prediction by position.
func (p *Pipeline) GetTextEmbeddings(prompts, opposingPrompts []string, guided bool) (*tensor.Dense, error) {
	tokenIDs, err := p.tokenize(prompts)
	if err != nil {
		return nil, err
	}
	embeddings, err := p.textEncoder.Encode(tokenIDs)
	if err != nil {
		return nil, err
	}

	if !guided {
		return embeddings, nil
	}

	if len(opposingPrompts) == 0 {
		opposingPrompts = make([]string, len(prompts))
	}
	if len(opposingPrompts) != len(prompts) {
		return nil, fmt.Errorf("%w: %d opposing prompts for %d prompts",
			ErrInvalidParams, len(opposingPrompts), len(prompts))
	}

	opposingIDs, err := p.tokenize(opposingPrompts)
	if err != nil {
		return nil, err
	}
	uncondEmbeddings, err := p.textEncoder.Encode(opposingIDs)
	if err != nil {
		return nil, err
	}

	// Unconditional first, then conditional, in a single batch so the
	// denoiser runs one forward pass per step instead of two.
	return uncondEmbeddings.Concat(0, embeddings)
}

// GetLearnedConditioning returns the embedding tensor and the token-id
// tensor for one batch of text fragments. It exists for compatibility with
// an older conditioning interface; fragments beyond the first batch are
// ignored, per-fragment weights other than 1.0 are not applied, and
// unrecognized extra arguments are not rejected. Both conditions log a
// warning rather than failing.
func (p *Pipeline) GetLearnedConditioning(fragments [][]string, fragmentWeights [][]float64, extra map[string]any) (*tensor.Dense, *tensor.Dense, error) {
	if len(fragments) == 0 || len(fragments[0]) == 0 {
		return nil, nil, fmt.Errorf("%w: at least one text fragment is required", ErrInvalidParams)
	}

	if len(fragmentWeights) > 0 {
		for _, w := range fragmentWeights[0] {
			if w != 1.0 {
				p.logger.Warn("fragment weights not implemented, ignoring",
					zap.Float64s("weights", fragmentWeights[0]))
				break
			}
		}
	}
	if len(extra) > 0 {
		keys := make([]string, 0, len(extra))
		for k := range extra {
			keys = append(keys, k)
		}
		p.logger.Warn("unsupported conditioning arguments, ignoring", zap.Strings("args", keys))
	}

	tokenIDs, err := p.tokenize(fragments[0])
	if err != nil {
		return nil, nil, err
	}
	embeddings, err := p.textEncoder.Encode(tokenIDs)
	if err != nil {
		return nil, nil, err
	}
	return embeddings, tokenIDs, nil
}
