package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dukex/patientflow/pkg/cmd"
	"github.com/dukex/patientflow/pkg/draft"
	"github.com/dukex/patientflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

// NewDraftCommand inspects and clears the builder draft kept for a client.
func NewDraftCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "draft-store",
			Usage:    "Where drafts are kept (directory, redis:// URL or memory)",
			Required: true,
			Sources:  cli.EnvVars("DRAFT_STORE"),
		},
		&cli.StringFlag{
			Name:    "instance-id",
			Usage:   "Builder instance the draft belongs to",
			Sources: cli.EnvVars("DRAFT_INSTANCE_ID"),
		},
	}

	return &cli.Command{
		Name:  "draft",
		Usage: "Inspect or discard the unsaved flow builder draft",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the stored draft, if it has not expired",
				Flags: flags,
				Action: func(ctx context.Context, command *cli.Command) error {
					manager, err := newDraftManager(command)
					if err != nil {
						return err
					}

					return showDraft(ctx, manager, os.Stdout)
				},
			},
			{
				Name:  "clear",
				Usage: "Delete the stored draft",
				Flags: flags,
				Action: func(ctx context.Context, command *cli.Command) error {
					manager, err := newDraftManager(command)
					if err != nil {
						return err
					}

					return manager.ClearDraft(ctx)
				},
			},
		},
	}
}

func newDraftManager(command *cli.Command) (*draft.Manager, error) {
	store, err := cmd.NewDraftStore(command.String("draft-store"), command.String("instance-id"))
	if err != nil {
		return nil, err
	}

	return draft.NewManager(store, draft.ModeCreate, draft.WithLogger(log.WithModule("draft"))), nil
}

func showDraft(ctx context.Context, manager *draft.Manager, w io.Writer) error {
	stored, err := manager.LoadDraft(ctx)
	if err != nil {
		return err
	}

	if stored == nil {
		_, err = fmt.Fprintln(w, "no draft")

		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(stored)
}
