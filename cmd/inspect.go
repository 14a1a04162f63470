package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"kimi-proxy/internal/auth"
	"kimi-proxy/internal/llm"
	"kimi-proxy/pkg/utils"

	"github.com/spf13/cobra"
)

// tokenEnvVar holds the credential inspect-token reads when no argument is given.
const tokenEnvVar = "KIMI_TOKEN"

func newInspectTokenCmd() *cobra.Command {
	var model string

	cmd := &cobra.Command{
		Use:   "inspect-token [token]",
		Short: "Classify a credential and show its session claims",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := os.Getenv(tokenEnvVar)
			if len(args) == 1 {
				token = args[0]
			}
			if token == "" {
				return errors.New("no token given: pass it as an argument or set " + tokenEnvVar)
			}

			writeReport(cmd.OutOrStdout(), token, auth.Inspect(token), time.Now())

			if model != "" {
				scenario, thinking := llm.ResolveScenario(model)
				fmt.Fprintf(cmd.OutOrStdout(), "Model %s: scenario=%s thinking=%v\n", model, scenario, thinking)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Also show how this model name is routed")
	return cmd
}

func writeReport(w io.Writer, token string, r auth.Report, now time.Time) {
	fmt.Fprintf(w, "Token: %s\n", utils.MaskToken(token))
	fmt.Fprintf(w, "Length: %d\n", r.Length)
	if r.BearerPrefix {
		fmt.Fprintln(w, "Note: the Bearer prefix is added by clients, it is not part of the token")
	}
	fmt.Fprintf(w, "Kind: %s\n", r.Kind)
	if r.Kind != auth.KindStructured {
		fmt.Fprintf(w, "Usable: no (%v)\n", auth.ErrUnsupportedCredentialType)
		if r.TokenType != "" {
			fmt.Fprintf(w, "Token type: %s\n", r.TokenType)
		}
		return
	}

	fmt.Fprintln(w, "Usable: yes")
	fmt.Fprintf(w, "Device ID: %s\n", valueOrAbsent(r.Claims.DeviceID))
	fmt.Fprintf(w, "Session ID: %s\n", valueOrAbsent(r.Claims.SessionID))
	fmt.Fprintf(w, "User ID: %s\n", valueOrAbsent(r.Claims.UserID))
	if !r.ExpiresAt.IsZero() {
		state := "valid"
		if r.Expired(now) {
			state = "expired"
		}
		fmt.Fprintf(w, "Expires: %s (%s)\n", r.ExpiresAt.UTC().Format(time.RFC3339), state)
	}
}

func valueOrAbsent(v string) string {
	if v == "" {
		return "(absent)"
	}
	return v
}
