package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"fortunemagnet/internal/auth"
	"fortunemagnet/internal/config"
	"fortunemagnet/internal/logging"
	"fortunemagnet/internal/otel"
	"fortunemagnet/internal/signedurl"
	"fortunemagnet/internal/upload"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type app struct {
	cfg    *config.ClientConfig
	log    *logging.Logger
	client *upload.Client
	urls   *signedurl.Cache
}

func newApp(ctx context.Context) (*app, func(), error) {
	cfg := config.LoadClient()
	if cfg.AuthToken == "" {
		return nil, nil, errors.New("PHOTO_API_TOKEN is required")
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	// Logs go to stderr; stdout carries command output.
	log := logging.New(os.Stderr, loc)

	shutdown, err := otel.Init(ctx, log, "fortunemagnet-photo-upload")
	if err != nil {
		return nil, nil, err
	}

	client := upload.NewClient(cfg.APIBaseURL, upload.StaticToken(cfg.AuthToken), nil)
	cleanup := func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(sctx)
	}
	return &app{
		cfg:    cfg,
		log:    log,
		client: client,
		urls:   signedurl.New(nil, client, signedurl.WithLogger(log)),
	}, cleanup, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "photo-upload",
		Short:         "Attach photos to fortunes through the photo functions",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newUploadCmd(), newSignCmd(), newInfoCmd(), newDeleteCmd(), newTokenCmd())
	return root
}

func withApp(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()
		return run(cmd, a, args)
	}
}

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload FORTUNE_ID [FILE]",
		Short: "Upload a photo for a fortune; no FILE counts as a cancelled pick",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			picker := upload.FilePicker{MaxBytes: a.cfg.MaxUploadBytes}
			if len(args) == 2 {
				picker.Path = args[1]
			}
			o := upload.NewOrchestrator(a.client, upload.NewExecutor(nil, a.log), a.cfg.PhotoBucket,
				upload.WithLogger(a.log),
				upload.WithSignedURLCache(a.urls),
			)
			res := o.PickAndUpload(cmd.Context(), args[0], picker)
			if err := printJSON(cmd, resultView(res)); err != nil {
				return err
			}
			if res.Status == upload.StatusError {
				return fmt.Errorf("upload failed at %s: %w", res.Stage, res.Err)
			}
			return nil
		}),
	}
}

func newSignCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "sign FORTUNE_ID",
		Short: "Print a fresh signed read URL for a fortune's photo",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			rec, err := a.client.GetMedia(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			u, err := a.urls.Get(cmd.Context(), signedurl.Request{
				Bucket:    rec.Bucket,
				Path:      rec.Path,
				TTL:       ttl,
				Version:   rec.Version(),
				FortuneID: args[0],
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"signedUrl": nullable(u)})
		}),
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 5*time.Minute, "lifetime of the signed URL")
	return cmd
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info FORTUNE_ID",
		Short: "Show the media record of a fortune",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			rec, err := a.client.GetMedia(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, rec)
		}),
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete FORTUNE_ID",
		Short: "Remove a fortune's photo",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			rec, err := a.client.GetMedia(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := a.client.DeletePhoto(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.urls.ClearFor(rec.Bucket, rec.Path)
			return printJSON(cmd, map[string]any{"deleted": true})
		}),
	}
}

func newTokenCmd() *cobra.Command {
	var validity time.Duration
	cmd := &cobra.Command{
		Use:   "token USER_ID",
		Short: "Mint a development bearer token signed with AUTH_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("AUTH_JWT_SECRET")
			if secret == "" {
				return errors.New("AUTH_JWT_SECRET is required")
			}
			tok, err := auth.GenerateToken(args[0], []byte(secret), validity)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().DurationVar(&validity, "validity", time.Hour, "token lifetime")
	return cmd
}

func resultView(r upload.Result) map[string]any {
	out := map[string]any{
		"status":     r.Status,
		"stage":      r.Stage,
		"fortune_id": r.FortuneID,
	}
	if r.Err != nil {
		out["error"] = r.Err.Error()
	}
	if r.Status == upload.StatusDone {
		out["bucket"] = r.Bucket
		out["path"] = r.Path
		out["mime"] = r.Mime
		out["width"] = r.Width
		out["height"] = r.Height
		out["size_bytes"] = r.Size
		out["signedUrl"] = r.SignedURL
		out["replaced"] = r.Replaced
	}
	return out
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
