package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/bcfeed/internal/extract"
	"github.com/nhle/bcfeed/internal/mailbox"
	"github.com/nhle/bcfeed/internal/model"
	"github.com/nhle/bcfeed/internal/store"
)

// outcome is what happened to one envelope.
type outcome int

const (
	outcomeStored outcome = iota
	outcomeKnown
	outcomeNotRelease
	outcomeParseFailure
	outcomeDuplicateLink
)

func (o outcome) String() string {
	switch o {
	case outcomeStored:
		return "stored"
	case outcomeKnown:
		return "already stored"
	case outcomeNotRelease:
		return "not a release"
	case outcomeParseFailure:
		return "parse failure"
	case outcomeDuplicateLink:
		return "duplicate link"
	default:
		return "unknown"
	}
}

// process runs one envelope through classification, extraction and
// persistence. Per-message problems are reported as outcomes; only
// transport and store failures are returned as errors.
func (o *Orchestrator) process(ctx context.Context, env *mailbox.Envelope) (outcome, *model.Release, error) {
	id := env.StableID()

	known, err := o.store.Exists(ctx, id)
	if err != nil {
		return 0, nil, fmt.Errorf("checking %s: %w", id, err)
	}
	if known {
		return outcomeKnown, nil, nil
	}

	if !o.classifier.Classify(ctx, env) {
		// A body that could not be downloaded says nothing about the
		// message; the batch is retried instead of skipping it.
		if bodyErr := env.BodyErr(); mailbox.IsTransportError(bodyErr) {
			return 0, nil, bodyErr
		}
		return outcomeNotRelease, nil, nil
	}

	body, err := env.Body(ctx)
	if err != nil {
		if mailbox.IsTransportError(err) {
			return 0, nil, err
		}
		o.logger.Debug("body unavailable", "email_id", id, "err", err)
		return outcomeParseFailure, nil, nil
	}

	fields, err := o.extractor.Extract(extract.Input{Subject: env.Subject, Body: body})
	if err != nil {
		o.logger.Debug("skipping message", "email_id", id, "subject", env.Subject, "err", err)
		return outcomeParseFailure, nil, nil
	}

	received := env.Date
	if received.IsZero() {
		received = o.now()
	}

	stored, err := o.store.Insert(ctx, model.Release{
		EmailID:     id,
		Uploader:    fields.Uploader,
		ReleaseName: fields.ReleaseName,
		AlbumArtURL: fields.AlbumArtURL,
		BandcampURL: fields.BandcampURL,
		ReleaseType: fields.ReleaseType(),
		ReceivedAt:  received,
	})
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		return outcomeDuplicateLink, nil, nil
	case err != nil:
		return 0, nil, fmt.Errorf("storing %s: %w", id, err)
	}

	return outcomeStored, &stored, nil
}
