// Command imagesigner issues and checks signed image URLs from the shell.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/imagesigner/internal/config"
	"github.com/dharsanguruparan/imagesigner/internal/database"
	"github.com/dharsanguruparan/imagesigner/internal/model"
	"github.com/dharsanguruparan/imagesigner/internal/queue"
	"github.com/dharsanguruparan/imagesigner/internal/repository"
	"github.com/dharsanguruparan/imagesigner/internal/signing"
	"github.com/dharsanguruparan/imagesigner/internal/tool"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "imagesigner: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imagesigner",
		Short: "Issue time-limited signed image URLs",
		Long: `imagesigner signs image ids with an HMAC-SHA256 token and an expiry so that a
content server sharing the secret can authorize downloads without a lookup.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newSignCmd(),
		newVerifyCmd(),
		newSchemaCmd(),
		newEnqueueCmd(),
	)
	return cmd
}

func newSignCmd() *cobra.Command {
	var (
		secret string
		host   string
		expiry int64
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "sign IMAGE_ID",
		Short: "Print a signed URL for an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if secret == "" {
				secret = cfg.SigningSecret
			}
			if host == "" {
				host = cfg.ContentHost
			}
			req := signing.Request{ResourceID: args[0], Secret: []byte(secret)}
			if cmd.Flags().Changed("expiry-seconds") {
				req.ValiditySeconds = signing.Seconds(expiry)
			}
			signed, err := signing.NewIssuer(signing.WithHost(host)).Issue(req)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), tool.Result{SignedImageURL: signed.URL})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), signed.URL)
			return err
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC secret (defaults to IMAGESIGNER_SIGNING_SECRET)")
	cmd.Flags().StringVar(&host, "host", "", "Content host (defaults to IMAGESIGNER_CONTENT_HOST)")
	cmd.Flags().Int64Var(&expiry, "expiry-seconds", signing.DefaultValiditySeconds, "Validity window in seconds")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the tool result as JSON")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "verify URL",
		Short: "Check the signature and expiry of a signed URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				secret = cfg.SigningSecret
			}
			id, expires, err := signing.Verify([]byte(secret), args[0], time.Now())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "valid: image %s until %s\n", id, time.Unix(expires, 0).UTC().Format(time.RFC3339))
			return err
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC secret (defaults to IMAGESIGNER_SIGNING_SECRET)")
	return cmd
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the tool descriptor as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd.OutOrStdout(), tool.Describe())
		},
	}
}

func newEnqueueCmd() *cobra.Command {
	var expiry int64
	cmd := &cobra.Command{
		Use:   "enqueue IMAGE_ID",
		Short: "Queue an issuance for the worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.QueueEnabled() || !cfg.DatabaseEnabled() {
				return errors.New("IMAGESIGNER_REDIS_ADDR and IMAGESIGNER_DATABASE_URL are required")
			}
			payload := queue.SignPayload{IssuanceID: uuid.NewString(), ResourceID: args[0]}
			if payload.ResourceID == "" {
				return signing.ErrInvalidResourceID
			}
			if cmd.Flags().Changed("expiry-seconds") {
				if expiry <= 0 {
					return signing.ErrInvalidValidityWindow
				}
				payload.ValiditySeconds = signing.Seconds(expiry)
			}

			pool, err := database.Connect(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()
			if err := database.EnsureSchema(ctx, pool); err != nil {
				return err
			}
			client := asynq.NewClient(asynq.RedisClientOpt{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			defer client.Close()
			repo := repository.NewIssuanceRepository(pool)
			if err := enqueueIssuance(ctx, repo, queue.NewClient(client), payload); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), payload.IssuanceID)
			return err
		},
	}
	cmd.Flags().Int64Var(&expiry, "expiry-seconds", signing.DefaultValiditySeconds, "Validity window in seconds")
	return cmd
}

type issuanceLedger interface {
	Create(ctx context.Context, rec *model.Issuance) error
	MarkFailed(ctx context.Context, id string, msg string) error
}

type signEnqueuer interface {
	Enqueue(ctx context.Context, payload queue.SignPayload) error
}

// enqueueIssuance records the issuance as queued and hands it to the worker.
// A job that never reached the queue is marked failed.
func enqueueIssuance(ctx context.Context, ledger issuanceLedger, jobs signEnqueuer, payload queue.SignPayload) error {
	rec := &model.Issuance{ID: payload.IssuanceID, ResourceID: payload.ResourceID, Status: model.StatusQueued}
	if err := ledger.Create(ctx, rec); err != nil {
		return err
	}
	if err := jobs.Enqueue(ctx, payload); err != nil {
		if markErr := ledger.MarkFailed(ctx, payload.IssuanceID, err.Error()); markErr != nil {
			return errors.Join(err, fmt.Errorf("mark issuance failed: %w", markErr))
		}
		return err
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
