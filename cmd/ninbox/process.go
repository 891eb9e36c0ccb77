package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neuralinbox/neuralinbox/internal/extract"
	"github.com/neuralinbox/neuralinbox/internal/history"
	"github.com/neuralinbox/neuralinbox/internal/router"
)

var processUserID int64

var processCmd = &cobra.Command{
	Use:   "process [text]",
	Short: "Run one text message through the ingestion pipeline",
	Long: `Reads a message from the argument or stdin, runs classification and
prints the reply. Useful for smoke-testing the pipeline without a chat
transport attached.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var text string
		if len(args) == 1 {
			text = args[0]
		} else {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			text = string(data)
		}
		if strings.TrimSpace(text) == "" {
			return errors.New("no input text")
		}

		ctx := cmd.Context()
		svc, err := newServices(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = svc.store.Close() }()

		rt := router.New(svc.store, svc.agent, svc.openai, svc.openai,
			extract.NewURLParser(), extract.TextExtractor{}, history.New())

		reply, err := rt.Handle(ctx, &router.Envelope{
			UserID: processUserID,
			Kind:   router.KindText,
			Text:   text,
		})
		if errors.Is(err, router.ErrInputRejected) {
			fmt.Println(err.Error())
			return nil
		}
		if err != nil {
			return err
		}
		if reply != nil {
			fmt.Println(reply.Text)
		}
		return nil
	},
}

func init() {
	processCmd.Flags().Int64Var(&processUserID, "user", 1, "User ID to ingest as")
	rootCmd.AddCommand(processCmd)
}
