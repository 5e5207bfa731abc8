package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	svcerrors "github.com/R3E-Network/marketplace/internal/errors"
	"github.com/R3E-Network/marketplace/internal/fetch"
)

func productsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "products",
		Short: "List every product in the marketplace",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, err := start(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			st, err := appCtx.Catalog.Wait(ctx, appCtx.Catalog.Load())
			if err != nil {
				return err
			}
			if err := render(cmd.OutOrStdout(), appCtx.Views.Catalog()); err != nil {
				return err
			}
			return failure(st.Err)
		},
	}
}

func productCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "product ID",
		Short: "Show one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("product id must be a non-negative integer: %q", args[0])
			}
			ctx, cancel, err := start(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			st, err := appCtx.Detail.Wait(ctx, appCtx.Detail.SetProductID(id))
			if err != nil {
				return err
			}
			if err := render(cmd.OutOrStdout(), appCtx.Views.Product()); err != nil {
				return err
			}
			return failure(st.Err)
		},
	}
}

func profileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile [ADDRESS]",
		Short: "Show a member profile and reputation (default: the connected wallet)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, err := start(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			address := appCtx.Session.Address()
			if len(args) == 1 {
				address = args[0]
			}
			if address == "" {
				return fmt.Errorf("%w: run marketplace connect or pass an address", svcerrors.NoSession())
			}

			st, err := appCtx.Profile.Wait(ctx, appCtx.Profile.SetAddress(address))
			if err != nil {
				return err
			}
			if err := render(cmd.OutOrStdout(), appCtx.Views.Profile()); err != nil {
				return err
			}
			return failure(st.Err)
		},
	}
}

// failure turns a Failed view into a non-zero exit after it was printed.
func failure(info *fetch.ErrorInfo) error {
	if info == nil {
		return nil
	}
	return *info
}
