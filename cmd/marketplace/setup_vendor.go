package main

import (
	"encoding/json"
	"fmt"
	"time"

	"chlumarket/pkg/vendorkit"

	"github.com/spf13/cobra"
)

type vendorExport struct {
	DID        string `json:"did"`
	PrivateKey string `json:"privateKey"`
	KeyRef     string `json:"delegatedPublicKeyRef,omitempty"`
}

func newSetupVendorCmd() *cobra.Command {
	var (
		baseURL string
		network string
	)
	cmd := &cobra.Command{
		Use:   "setup-vendor",
		Short: "Create a vendor DID and complete the handshake with a marketplace",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			client := vendorkit.NewClient(baseURL, vendorkit.WithMaxRetry(10*time.Second))

			wk, err := client.WellKnown(ctx)
			if err != nil {
				return fmt.Errorf("marketplace at %s unreachable: %w", baseURL, err)
			}
			if network != "" && network != wk.Network {
				return fmt.Errorf("marketplace runs on network %q, not %q", wk.Network, network)
			}
			fmt.Fprintf(out, "Using Chlu network %s\n", wk.Network)

			id, err := vendorkit.NewIdentity()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Using DID %s\n", id.DID())
			fmt.Fprintf(out, "Registering vendor to %s\n", baseURL)

			export := vendorExport{DID: id.DID()}
			export.PrivateKey, err = id.Export()
			if err != nil {
				return err
			}
			reg, setupErr := vendorkit.Setup(ctx, client, id)
			if setupErr == nil {
				export.KeyRef = reg.DelegatedPublicKeyRef
				fmt.Fprintln(out, "Vendor registered and countersigned")
			}

			encoded, err := json.MarshalIndent(export, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(encoded))
			if setupErr != nil {
				return fmt.Errorf("vendor registration failed: %w", setupErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&baseURL, "url", "u", "http://localhost:3000", "marketplace base URL")
	cmd.Flags().StringVarP(&network, "network", "n", "", "expected Chlu network")
	return cmd
}
