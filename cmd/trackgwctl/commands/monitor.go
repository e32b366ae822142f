package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"nhooyr.io/websocket"
)

// feedMessage is one envelope from the /subscribe WebSocket feed.
type feedMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func monitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Stream the live position feed",
		Long:  "Connects to the trackgw admin API and streams position messages until interrupted (Ctrl+C).",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			wsURL := "ws://" + serverAddr + "/subscribe"
			if token != "" {
				wsURL += "?token=" + url.QueryEscape(token)
			}

			conn, _, err := websocket.Dial(ctx, wsURL, nil)
			if err != nil {
				return fmt.Errorf("connect to live feed: %w", err)
			}
			defer conn.Close(websocket.StatusNormalClosure, "")

			for {
				_, payload, err := conn.Read(ctx)
				if err != nil {
					// Context cancellation (Ctrl+C) is expected, not an error.
					if errors.Is(err, context.Canceled) || ctx.Err() != nil {
						return nil
					}

					return fmt.Errorf("feed read: %w", err)
				}

				var msg feedMessage
				if err := json.Unmarshal(payload, &msg); err != nil {
					return fmt.Errorf("decode feed message: %w", err)
				}

				out, fmtErr := formatFeedMessage(&msg, outputFormat)
				if fmtErr != nil {
					return fmt.Errorf("format feed message: %w", fmtErr)
				}

				fmt.Println(out)
			}
		},
	}
}
