package cmd

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muvahhid/molayeri-sub002/pkg/photo"
	"github.com/muvahhid/molayeri-sub002/util/log"
)

func newNormalizeCmd(a *app) *cobra.Command {
	var (
		outDir  string
		cover   int
		publish string
	)

	cmd := &cobra.Command{
		Use:   "normalize [files...]",
		Short: "Normalize photos as one listing batch",
		Long: `Runs the given files through the photo pipeline as a single batch.

Files beyond the batch capacity are dropped; unreadable files are reported
and skipped. Normalized photos are written to --out as 1.jpg, 2.jpg, ...`,
		Example: `  # Normalize three photos into ./out
  molayeri normalize a.jpg b.png c.webp --out out

  # Normalize and publish to listing 42 using the configured storage
  molayeri normalize *.jpg --publish 42`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := newNormalizer(a.cfg)
			if err != nil {
				return err
			}

			sources := make([]photo.Source, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", path, err)
				}
				sources = append(sources, photo.Source{
					Name:        filepath.Base(path),
					ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
					Data:        data,
				})
			}

			b := photo.NewBatch(a.cfg.Batch.MaxCount, a.cfg.Batch.MinCount, nil)
			orch := photo.NewOrchestrator(n)
			orch.OnProgress(func(p photo.Progress) {
				log.Debugf("%d/%d %s: %s", p.Index+1, p.Total, p.Name, p.Status)
			})

			report, err := orch.AddFiles(cmd.Context(), b, sources)
			if err != nil {
				return err
			}

			if cover > 0 {
				photos := b.Photos()
				if cover > len(photos) {
					return fmt.Errorf("--cover %d: batch has %d photos", cover, len(photos))
				}
				if err := b.SetCover(photos[cover-1].ID); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if err := os.MkdirAll(outDir, 0755); err != nil {
				return fmt.Errorf("creating %s: %w", outDir, err)
			}
			for i, p := range b.Photos() {
				dst := filepath.Join(outDir, fmt.Sprintf("%d.jpg", i+1))
				if err := os.WriteFile(dst, p.Data, 0644); err != nil {
					return fmt.Errorf("writing %s: %w", dst, err)
				}
				mark := ""
				if p.IsCover {
					mark = " (cover)"
				}
				budget := ""
				if !p.BudgetMet {
					budget = " over budget"
				}
				fmt.Fprintf(out, "%s -> %s %dx%d %d bytes q=%.2f%s%s\n",
					p.Name, dst, p.Width, p.Height, p.SizeBytes, p.Quality, budget, mark)
			}

			for _, f := range report.Failed {
				fmt.Fprintf(out, "skipped %s: %v\n", f.Name, f.Err)
			}
			if err := report.Err(); err != nil {
				fmt.Fprintf(out, "dropped %d file(s): %v\n", report.Dropped, err)
			}
			if report.Ready {
				fmt.Fprintf(out, "ready: %d photo(s)\n", b.Len())
			} else {
				fmt.Fprintf(out, "not ready: %d more photo(s) needed\n", report.Shortfall)
			}

			if publish == "" {
				return nil
			}
			pub, _, err := openPublisher(cmd.Context(), a.cfg.Storage)
			if err != nil {
				return err
			}
			defer pub.Store().Close()

			l, err := pub.Submit(cmd.Context(), publish, b)
			if err != nil {
				return err
			}
			for _, ref := range l.Photos {
				fmt.Fprintf(out, "published %s\n", ref.URL)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory to write normalized photos to")
	cmd.Flags().IntVar(&cover, "cover", 0, "1-based position of the cover photo (default first)")
	cmd.Flags().StringVar(&publish, "publish", "", "Listing ID to publish the batch to")

	return cmd
}
