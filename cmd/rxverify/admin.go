package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/rxverify/constants"
	"github.com/joseph-ayodele/rxverify/internal/export"
	"github.com/joseph-ayodele/rxverify/internal/registry"
	"github.com/joseph-ayodele/rxverify/internal/utils"
)

func exportCmd(a *app) *cobra.Command {
	var out, from, to string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write registry entries to an Excel workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fromDate, err := utils.ParseOptionalYMD(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			toDate, err := utils.ParseOptionalYMD(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}

			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			data, err := export.NewService(store, a.logger).ExportRegistryXLSX(ctx, fromDate, toDate)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			a.logger.Info("registry exported", "path", out, "bytes", len(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "registry.xlsx", "output file")
	cmd.Flags().StringVar(&from, "from", "", "first prescription date to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last prescription date to include (YYYY-MM-DD)")
	return cmd
}

type chainReport struct {
	Path   string `json:"path"`
	Height int    `json:"height"`
	Valid  bool   `json:"valid"`
	Error  string `json:"error,omitempty"`
}

func ledgerCmd(a *app) *cobra.Command {
	ledger := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the append-only LevelDB registry",
	}
	var path string
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Recompute block hashes and check the chain links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				path = a.cfg.Registry.LevelDBPath
			}
			l, err := registry.OpenLedger(path, a.logger)
			if err != nil {
				return err
			}
			defer l.Close()

			height, verr := l.VerifyChain(cmd.Context())
			rep := chainReport{Path: path, Height: height, Valid: verr == nil}
			var ce *registry.ChainError
			if errors.As(verr, &ce) {
				rep.Error = ce.Error()
			} else if verr != nil {
				return verr
			}
			if err := writeOutput(cmd.OutOrStdout(), a.format, rep); err != nil {
				return err
			}
			if !rep.Valid {
				return fmt.Errorf("ledger %s is corrupt at block %d", path, ce.Index)
			}
			return nil
		},
	}
	verify.Flags().StringVar(&path, "path", "", "ledger directory (default LEVELDB_PATH)")
	ledger.AddCommand(verify)
	return ledger
}

func ocrInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ocr-info",
		Short: "Show the local tesseract installation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeOutput(cmd.OutOrStdout(), a.format, a.ocrExtractor().Info(cmd.Context()))
		},
	}
}

func tokenCmd(a *app) *cobra.Command {
	var (
		subject string
		roles   []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed access token for the HTTP and gRPC APIs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			auth := a.authConfig()
			if !auth.Enabled() {
				return errors.New("AUTH_JWT_SECRET is not set")
			}
			for _, r := range roles {
				if r != constants.RoleIssuer && r != constants.RoleVerifier {
					return fmt.Errorf("unknown role %q", r)
				}
			}
			tok, err := auth.IssueToken(subject, roles, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject, e.g. a pharmacy id")
	cmd.Flags().StringSliceVar(&roles, "role", []string{constants.RoleVerifier}, "issuer and/or verifier")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
