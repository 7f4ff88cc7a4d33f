// Package cmd holds the molayeri command line.
package cmd

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/muvahhid/molayeri-sub002/config"
	"github.com/muvahhid/molayeri-sub002/pkg/photo"
	"github.com/muvahhid/molayeri-sub002/util/log"
)

// app carries state shared by subcommands after flags are parsed.
type app struct {
	configPath string
	debug      bool
	cfg        *config.Config
}

func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   strings.ToLower(config.AppName),
		Short: "Listing photo normalizer and merchant panel API",
		Long: `MolaYeri normalizes business listing photos: a 16:9 center crop,
a max 1280px wide resize and a JPEG re-encode under a fixed byte budget.

It runs as a one-shot CLI or as the HTTP API behind the merchant panel.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			path := a.configPath
			if path == "" {
				path = config.GetFilename()
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if a.debug {
				cfg.Log.Debug = true
			}
			if err := log.Setup(cfg.Log); err != nil {
				return fmt.Errorf("setting up logging: %w", err)
			}
			a.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to config.yaml (default ~/.molayeri/config.yaml)")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newNormalizeCmd(a))
	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newVersionCmd(a))

	return cmd
}

// photoOptions maps the photo section of the config onto normalizer options.
func photoOptions(c config.PhotoConfig) (photo.Options, error) {
	ratio, err := photo.ParseRatio(c.AspectRatio)
	if err != nil {
		return photo.Options{}, fmt.Errorf("photo.aspect_ratio: %w", err)
	}
	opts := photo.Options{
		TargetAspectRatio: ratio,
		MaxOutputWidth:    c.MaxOutputWidth,
		ByteBudget:        c.ByteBudget,
		InitialQuality:    c.InitialQuality,
		QualityDecrement:  c.QualityDecrement,
		QualityFloor:      c.QualityFloor,
		CropStrategy:      photo.CropStrategy(c.CropStrategy),
		MaxSourcePixels:   c.MaxSourcePixels,
	}
	if err := opts.Validate(); err != nil {
		return photo.Options{}, err
	}
	return opts, nil
}

func newNormalizer(cfg *config.Config) (*photo.Normalizer, error) {
	opts, err := photoOptions(cfg.Photo)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", photo.ErrPipelineUnavailable, err)
	}
	return photo.NewNormalizer(opts)
}
