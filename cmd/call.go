package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/camctl/internal/natsbridge"
)

// CreateCallCmd creates the call command, which sends one command to a
// running camctl over NATS.
func CreateCallCmd() *cobra.Command {
	var url string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "call <method> [json-args]",
		Short: "Invoke a camera command over NATS",
		Example: `  camctl call availableCameras
  camctl call initialize '{"cameraName":"0","resolutionPreset":"high"}'
  camctl call takePicture '{"path":"/tmp/a.jpg"}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params any
			if len(args) == 2 {
				raw := json.RawMessage(args[1])
				if !json.Valid(raw) {
					return fmt.Errorf("arguments are not valid JSON: %s", args[1])
				}
				params = raw
			}

			client, err := natsbridge.Dial(url)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var result json.RawMessage
			if err := client.Call(ctx, args[0], params, &result); err != nil {
				return err
			}
			if len(result) == 0 {
				result = json.RawMessage("null")
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(result))
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "nats://127.0.0.1:4222", "NATS server of the camctl instance")
	cmd.Flags().DurationVar(&timeout, "timeout", natsbridge.DefaultCallTimeout, "How long to wait for the reply")
	return cmd
}
