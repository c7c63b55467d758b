package backend

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/verifai/internal/imageprocessor"
	"github.com/example/verifai/internal/verification"
)

// Generator sends an instruction and an image to a remote generative model
// and returns its text reply.
type Generator interface {
	Provider() string
	Generate(ctx context.Context, instruction string, img *imageprocessor.Image) (string, error)
}

// Generative asks a remote model for a verdict. Its reply is untrusted text
// that the normalizer must parse.
type Generative struct {
	generator Generator
	logger    *zap.Logger
}

// NewGenerative wraps a model provider.
func NewGenerative(generator Generator, logger *zap.Logger) *Generative {
	return &Generative{generator: generator, logger: logger.Named("generative_backend")}
}

// Name implements Backend.
func (g *Generative) Name() string { return g.generator.Provider() }

// Predict implements Backend. Image decoding happens before any network
// call, so a bad image never reaches the model.
func (g *Generative) Predict(ctx context.Context, req verification.Request) (RawPrediction, error) {
	img, err := imageprocessor.Decode(req.Image)
	if err != nil {
		return RawPrediction{}, err
	}

	reply, err := g.generator.Generate(ctx, Instruction(req.ObjectClass), img)
	if err != nil {
		var verr *verification.Error
		if errors.As(err, &verr) {
			return RawPrediction{}, err
		}
		return RawPrediction{}, verification.WrapError(verification.ErrBackendTransportFailure, g.generator.Provider(), err)
	}
	g.logger.Debug("model replied", zap.Int("reply_bytes", len(reply)), zap.String("mime", img.MIMEType))
	return RawPrediction{Text: reply}, nil
}

// Instruction builds the prompt that asks the model for a schema-shaped
// JSON verdict about objectClass.
func Instruction(objectClass string) string {
	return fmt.Sprintf(`You are an authenticity verification system. The user claims the attached image shows a %q.
Inspect the image and decide whether the object looks genuine.

Reply with a single JSON object and nothing else, using exactly these fields:
{
  "status": one of "verified", "warning", "danger",
  "title": %q,
  "confidence": a number between 0 and 100,
  "summary": one or two sentences explaining the verdict,
  "details": [
    {"agent": name of the analysis step, "finding": what it observed, "status": "success" or "fail"}
  ]
}
"details" must contain at least one entry.`, objectClass, verification.Title(objectClass))
}
