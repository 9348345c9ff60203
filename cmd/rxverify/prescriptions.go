package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/rxverify/internal/entity"
	"github.com/joseph-ayodele/rxverify/internal/ingest"
	"github.com/joseph-ayodele/rxverify/internal/utils"
)

type fileVerdict struct {
	File    string                     `json:"file"`
	Verdict entity.VerificationVerdict `json:"verdict"`
}

func verifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify FILE...",
		Short: "Verify one or more prescription images against the registry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := a.wire(ctx)
			if err != nil {
				return err
			}
			defer e.Close(a.logger)

			in := ingest.NewFSIngestor(a.logger, a.cfg.Server.MaxUploadBytes)
			out := make([]fileVerdict, 0, len(args))
			for _, path := range args {
				item, err := in.ReadPath(ctx, path)
				if err != nil {
					return err
				}
				out = append(out, fileVerdict{File: item.SourcePath, Verdict: e.proc.Verify(ctx, item.Image)})
			}
			if len(out) == 1 {
				return writeOutput(cmd.OutOrStdout(), a.format, out[0].Verdict)
			}
			return writeOutput(cmd.OutOrStdout(), a.format, out)
		},
	}
}

func registerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "register FILE",
		Short: "Extract a prescription image and add it to the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := a.wire(ctx)
			if err != nil {
				return err
			}
			defer e.Close(a.logger)

			item, err := ingest.NewFSIngestor(a.logger, a.cfg.Server.MaxUploadBytes).ReadPath(ctx, args[0])
			if err != nil {
				return err
			}
			res, err := e.proc.Register(ctx, item.Image)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), a.format, res)
		},
	}
}

func extractCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "extract FILE",
		Short: "Print the structured record read from a prescription image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := a.wire(ctx)
			if err != nil {
				return err
			}
			defer e.Close(a.logger)

			item, err := ingest.NewFSIngestor(a.logger, a.cfg.Server.MaxUploadBytes).ReadPath(ctx, args[0])
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), a.format, e.proc.Extract(ctx, item.Image))
		},
	}
}

func issueCmd(a *app) *cobra.Command {
	var (
		doctor, patient, date string
		dosage, instructions  string
		medications           []string
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Register a prescription from typed fields instead of an image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			issued := time.Now().UTC()
			if date != "" {
				d, err := utils.ParseYMD(date)
				if err != nil {
					return fmt.Errorf("--date: %w", err)
				}
				issued = d
			}
			ctx := cmd.Context()
			e, err := a.wire(ctx)
			if err != nil {
				return err
			}
			defer e.Close(a.logger)

			res, err := e.proc.RegisterRecord(ctx, entity.PrescriptionRecord{
				DoctorName:       doctor,
				PatientName:      patient,
				PrescriptionDate: issued,
				Medications:      medications,
				Dosage:           dosage,
				Instructions:     instructions,
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), a.format, res)
		},
	}
	f := cmd.Flags()
	f.StringVar(&doctor, "doctor", "", "prescribing doctor")
	f.StringVar(&patient, "patient", "", "patient name")
	f.StringVar(&date, "date", "", "prescription date (YYYY-MM-DD, default today)")
	f.StringSliceVar(&medications, "medication", nil, "medication line (repeatable)")
	f.StringVar(&dosage, "dosage", "", "dosage")
	f.StringVar(&instructions, "instructions", "", "instructions")
	_ = cmd.MarkFlagRequired("doctor")
	_ = cmd.MarkFlagRequired("patient")
	return cmd
}
