package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// connect: approve a wallet connection with an address or public key.
func connectCmd() *cobra.Command {
	var address, publicKey string
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect a wallet by address or public key",
		RunE: func(cmd *cobra.Command, args []string) error {
			identity := address
			if identity == "" {
				identity = publicKey
			}
			if identity == "" {
				return fmt.Errorf("--address or --public-key required")
			}
			if appCtx.Addresses == nil {
				return fmt.Errorf("no address connector configured")
			}

			ctx, cancel, err := start(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			appCtx.Addresses.Offer(identity)
			if err := appCtx.Views.Connect(ctx); err != nil {
				return err
			}
			if _, err := appCtx.Session.WaitConnected(ctx); err != nil {
				return err
			}
			if err := render(cmd.OutOrStdout(), appCtx.Views.Header()); err != nil {
				return err
			}
			if !asJSON {
				_, err = fmt.Fprintln(cmd.OutOrStdout())
			}
			return err
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "wallet address (ST… on testnet, SP… on mainnet)")
	cmd.Flags().StringVar(&publicKey, "public-key", "", "compressed secp256k1 public key, hex")
	cmd.MarkFlagsMutuallyExclusive("address", "public-key")
	return cmd
}

func sessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Show the persisted wallet session",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cancel, err := start(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			if err := render(cmd.OutOrStdout(), appCtx.Views.Header()); err != nil {
				return err
			}
			if !asJSON {
				_, err = fmt.Fprintln(cmd.OutOrStdout())
			}
			return err
		},
	}
}
