package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/imagesigner/internal/model"
	"github.com/dharsanguruparan/imagesigner/internal/queue"
	"github.com/dharsanguruparan/imagesigner/internal/signing"
	"github.com/dharsanguruparan/imagesigner/internal/storage"
	"github.com/dharsanguruparan/imagesigner/internal/tool"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSignAndVerify(t *testing.T) {
	t.Setenv("IMAGESIGNER_SIGNING_SECRET", "")

	out, err := execute(t, "sign", "img123", "--secret", "s3cr3t", "--host", "images.example.com", "--expiry-seconds", "60")
	require.NoError(t, err)

	raw := strings.TrimSpace(out)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "images.example.com", u.Host)
	assert.Equal(t, "/get-image.php", u.Path)
	assert.Equal(t, "img123", u.Query().Get("id"))

	out, err = execute(t, "verify", raw, "--secret", "s3cr3t")
	require.NoError(t, err)
	assert.Contains(t, out, "valid: image img123")

	_, err = execute(t, "verify", raw, "--secret", "wrong")
	assert.ErrorIs(t, err, signing.ErrSignatureMismatch)
}

func TestSign_SecretFromEnvironment(t *testing.T) {
	t.Setenv("IMAGESIGNER_SIGNING_SECRET", "s3cr3t")

	out, err := execute(t, "sign", "img123", "--json")
	require.NoError(t, err)

	var res tool.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, strings.HasPrefix(res.SignedImageURL, "https://chemistryguru.com.sg/get-image.php?id=img123&expires="))
}

func TestSign_Rejections(t *testing.T) {
	t.Setenv("IMAGESIGNER_SIGNING_SECRET", "")

	_, err := execute(t, "sign", "img123")
	assert.ErrorIs(t, err, signing.ErrInvalidSecret)

	_, err = execute(t, "sign", "", "--secret", "s3cr3t")
	assert.ErrorIs(t, err, signing.ErrInvalidResourceID)

	_, err = execute(t, "sign", "img123", "--secret", "s3cr3t", "--expiry-seconds=-1")
	assert.ErrorIs(t, err, signing.ErrInvalidValidityWindow)
}

func TestSchema(t *testing.T) {
	out, err := execute(t, "schema")
	require.NoError(t, err)

	var d tool.Descriptor
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, "Image Signer Tool", d.Label)
}

func TestEnqueue_RequiresBackends(t *testing.T) {
	t.Setenv("IMAGESIGNER_REDIS_ADDR", "")
	t.Setenv("IMAGESIGNER_DATABASE_URL", "")

	_, err := execute(t, "enqueue", "img123")
	assert.Error(t, err)
}

type stubQueue struct {
	payloads []queue.SignPayload
	err      error
}

func (q *stubQueue) Enqueue(_ context.Context, p queue.SignPayload) error {
	if q.err != nil {
		return q.err
	}
	q.payloads = append(q.payloads, p)
	return nil
}

type brokenLedger struct {
	*storage.MemoryStore
	markErr error
}

func (l *brokenLedger) MarkFailed(context.Context, string, string) error {
	return l.markErr
}

func TestEnqueueIssuance(t *testing.T) {
	ctx := context.Background()
	ledger := storage.NewMemoryStore()
	jobs := &stubQueue{}
	payload := queue.SignPayload{IssuanceID: "iss-1", ResourceID: "img123"}

	require.NoError(t, enqueueIssuance(ctx, ledger, jobs, payload))
	assert.Equal(t, []queue.SignPayload{payload}, jobs.payloads)

	rec, err := ledger.Get(ctx, "iss-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, rec.Status)
}

func TestEnqueueIssuance_QueueFailure(t *testing.T) {
	ctx := context.Background()
	ledger := storage.NewMemoryStore()
	queueErr := errors.New("redis down")

	err := enqueueIssuance(ctx, ledger, &stubQueue{err: queueErr}, queue.SignPayload{IssuanceID: "iss-1", ResourceID: "img123"})
	require.ErrorIs(t, err, queueErr)

	rec, err := ledger.Get(ctx, "iss-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Equal(t, "redis down", rec.Message)
}

func TestEnqueueIssuance_MarkFailedError(t *testing.T) {
	queueErr := errors.New("redis down")
	markErr := errors.New("db gone")
	ledger := &brokenLedger{MemoryStore: storage.NewMemoryStore(), markErr: markErr}

	err := enqueueIssuance(context.Background(), ledger, &stubQueue{err: queueErr}, queue.SignPayload{IssuanceID: "iss-1", ResourceID: "img123"})
	assert.ErrorIs(t, err, queueErr)
	assert.ErrorIs(t, err, markErr)
}
