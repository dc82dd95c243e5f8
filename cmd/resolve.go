package main

import (
	"context"
	"encoding/json"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/medicalexcom/avidiatech-match/internal/model"
)

var resolveReq model.Request

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a single item to a supplier product page",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initResolver(ctx, "resolve")
		if err != nil {
			return err
		}
		defer env.Close()

		return resolveOne(ctx, env.Resolver, resolveReq, cmd.OutOrStdout())
	},
}

type resolver interface {
	Resolve(ctx context.Context, req model.Request) (*model.Outcome, error)
}

func resolveOne(ctx context.Context, r resolver, req model.Request, w io.Writer) error {
	out, err := r.Resolve(ctx, req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(out), "resolve: write outcome")
}

func init() {
	f := resolveCmd.Flags()
	f.StringVar(&resolveReq.TenantID, "tenant", "default", "tenant id")
	f.StringVar(&resolveReq.SupplierKey, "supplier", "", "supplier key")
	f.StringVar(&resolveReq.SupplierName, "supplier-name", "", "supplier display name")
	f.StringVar(&resolveReq.SKU, "sku", "", "supplier SKU")
	f.StringVar(&resolveReq.NDCItemCode, "ndc", "", "NDC item code")
	f.StringVar(&resolveReq.ProductName, "name", "", "product name")
	f.StringVar(&resolveReq.BrandName, "brand", "", "brand name")
	_ = resolveCmd.MarkFlagRequired("supplier")
	rootCmd.AddCommand(resolveCmd)
}
