package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"maintenance-backend/internal/bootstrap"
	"maintenance-backend/internal/consolidation"
	"maintenance-backend/internal/shared/config"
)

// buildApp is replaced in tests.
var buildApp = func() (*bootstrap.App, error) {
	return bootstrap.Build(config.Load())
}

type rootOptions struct {
	requestID string
	app       *bootstrap.App
}

func (o *rootOptions) load() (*bootstrap.App, error) {
	if o.app != nil {
		return o.app, nil
	}
	app, err := buildApp()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	o.app = app
	return app, nil
}

func (o *rootOptions) requestIDOrNew() string {
	if o.requestID != "" {
		return o.requestID
	}
	return "woctl-" + uuid.NewString()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "woctl",
		Short:         "Operate the work order consolidation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.app != nil {
				opts.app.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.requestID, "request-id", "", "request id used in logs (generated when empty)")

	root.AddCommand(
		newCheckCmd(opts),
		newGenerateCmd(opts),
		newStageCmd(opts),
		newReplayCmd(opts),
		newListCmd(opts),
		newGetCmd(opts),
		newMigrateCmd(opts),
	)
	return root
}

// readJSON decodes a request from path, or from stdin when path is "-".
func readJSON(cmd *cobra.Command, path string, v any) error {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describeError expands validation problems so operators see every field.
func describeError(err error) error {
	var verr *consolidation.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	msg := verr.Error()
	for _, p := range verr.Problems {
		msg += fmt.Sprintf("\n  %s: %s", p.Field, p.Issue)
	}
	return fmt.Errorf("%s", msg)
}
