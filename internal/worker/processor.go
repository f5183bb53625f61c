package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/imagesigner/internal/queue"
	"github.com/dharsanguruparan/imagesigner/internal/signing"
)

// Ledger tracks issuance status.
type Ledger interface {
	MarkIssued(ctx context.Context, id string, expiresAt time.Time, manifestKey string) error
	MarkFailed(ctx context.Context, id string, msg string) error
}

// ManifestStore receives the published manifests.
type ManifestStore interface {
	PutManifest(ctx context.Context, objectKey string, data []byte) error
}

// Manifest is the document published for each asynchronous issuance.
type Manifest struct {
	IssuanceID     string `json:"issuance_id"`
	ImageID        string `json:"image_id"`
	Expires        int64  `json:"expires"`
	SignedImageURL string `json:"signed_image_url"`
}

// Processor signs queued images with the worker's secret.
type Processor struct {
	issuer    *signing.Issuer
	secret    []byte
	ledger    Ledger
	manifests ManifestStore
	logger    logr.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(issuer *signing.Issuer, secret []byte, ledger Ledger, manifests ManifestStore, logger logr.Logger) *Processor {
	return &Processor{
		issuer:    issuer,
		secret:    secret,
		ledger:    ledger,
		manifests: manifests,
		logger:    logger,
	}
}

// Handler registers the sign job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.SignImageTask, p.handleSign)
	return mux
}

func (p *Processor) handleSign(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.DecodeSignTask(task)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	err = p.Process(ctx, payload)
	if signing.IsValidation(err) {
		// Retrying identical input fails identically.
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

// ManifestKey is the object key a manifest is published under.
func ManifestKey(issuanceID string) string {
	return "manifests/" + issuanceID + ".json"
}

// Process issues the signed URL for payload, publishes its manifest and
// updates the ledger.
func (p *Processor) Process(ctx context.Context, payload queue.SignPayload) error {
	log := p.logger.WithValues("issuance", payload.IssuanceID, "image_id", payload.ResourceID)
	failure := func(err error) error {
		log.Error(err, "sign job failed")
		if markErr := p.ledger.MarkFailed(ctx, payload.IssuanceID, err.Error()); markErr != nil {
			return errors.Join(err, markErr)
		}
		return err
	}
	signed, err := p.issuer.Issue(signing.Request{
		ResourceID:      payload.ResourceID,
		Secret:          p.secret,
		ValiditySeconds: payload.ValiditySeconds,
	})
	if err != nil {
		return failure(err)
	}
	data, err := json.Marshal(Manifest{
		IssuanceID:     payload.IssuanceID,
		ImageID:        signed.ResourceID,
		Expires:        signed.Expires,
		SignedImageURL: signed.URL,
	})
	if err != nil {
		return failure(fmt.Errorf("marshal manifest: %w", err))
	}
	key := ManifestKey(payload.IssuanceID)
	if err := p.manifests.PutManifest(ctx, key, data); err != nil {
		return failure(err)
	}
	if err := p.ledger.MarkIssued(ctx, payload.IssuanceID, time.Unix(signed.Expires, 0), key); err != nil {
		return failure(err)
	}
	log.Info("signed url published", "expires", signed.Expires, "manifest", key)
	return nil
}
