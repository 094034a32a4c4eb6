package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/samvad-hq/samvad-briefing/internal/briefing"
	"github.com/samvad-hq/samvad-briefing/internal/domain"
)

// service is the orchestrator surface the CLI drives.
type service interface {
	Generate(ctx context.Context, req briefing.Request) (briefing.Result, error)
	GetByDate(ctx context.Context, date string) (domain.Briefing, bool, error)
	GetLatest(ctx context.Context) (domain.Briefing, bool, error)
	ListBriefings(ctx context.Context, limit, offset int) ([]domain.Briefing, error)
	InvalidateDate(ctx context.Context, date string) error
	InvalidateLatest(ctx context.Context) error
	InvalidateArticleLists(ctx context.Context, date string, sourceIDs []string) error
	InvalidateArticle(ctx context.Context, id string) error
}

type opener func(ctx context.Context) (service, io.Closer, error)

var errNotFound = errors.New("briefing not found")

func newRootCmd(open opener, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "briefing",
		Short:         "Generate and inspect daily briefings",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	root.AddCommand(generateCmd(open))
	root.AddCommand(getCmd(open))
	root.AddCommand(latestCmd(open))
	root.AddCommand(listCmd(open))
	root.AddCommand(invalidateCmd(open))
	return root
}

// withService opens the runtime for one command and closes it afterwards.
func withService(cmd *cobra.Command, open opener, fn func(svc service) error) (err error) {
	svc, closer, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(svc)
}

func generateCmd(open opener) *cobra.Command {
	var (
		date      string
		sourceIDs []string
		limit     int
		noCache   bool
		noPersist bool
		text      bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the briefing for a date (default today)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, open, func(svc service) error {
				res, err := svc.Generate(cmd.Context(), briefing.Request{
					Date:     date,
					Sources:  sourceIDs,
					Limit:    limit,
					UseCache: !noCache,
					Persist:  !noPersist,
				})
				if err != nil {
					return err
				}
				if text {
					fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", res.Status, res.Briefing.FullText)
					return nil
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVarP(&date, "date", "d", "", "Briefing date (YYYY-MM-DD)")
	cmd.Flags().StringSliceVarP(&sourceIDs, "sources", "s", nil, "Source ids (default: configured sources)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Articles per source (default: configured limit)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass cached briefing and listings")
	cmd.Flags().BoolVar(&noPersist, "no-persist", false, "Do not write to the repository")
	cmd.Flags().BoolVar(&text, "text", false, "Print the rendered text instead of JSON")
	return cmd
}

func getCmd(open opener) *cobra.Command {
	var text bool
	cmd := &cobra.Command{
		Use:   "get [date]",
		Short: "Show the briefing stored for a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, open, func(svc service) error {
				b, found, err := svc.GetByDate(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("%w for %s", errNotFound, args[0])
				}
				return printBriefing(cmd.OutOrStdout(), b, text)
			})
		},
	}
	cmd.Flags().BoolVar(&text, "text", false, "Print the rendered text instead of JSON")
	return cmd
}

func latestCmd(open opener) *cobra.Command {
	var text bool
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the most recent briefing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, open, func(svc service) error {
				b, found, err := svc.GetLatest(cmd.Context())
				if err != nil {
					return err
				}
				if !found {
					return errNotFound
				}
				return printBriefing(cmd.OutOrStdout(), b, text)
			})
		},
	}
	cmd.Flags().BoolVar(&text, "text", false, "Print the rendered text instead of JSON")
	return cmd
}

func listCmd(open opener) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored briefings, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, open, func(svc service) error {
				items, err := svc.ListBriefings(cmd.Context(), limit, offset)
				if err != nil {
					return err
				}
				for _, b := range items {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%d articles\t%s\n", b.ID, b.Date, b.TotalCount, b.Title)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	return cmd
}

func invalidateCmd(open opener) *cobra.Command {
	var (
		date      string
		latest    bool
		lists     bool
		sourceIDs []string
		articleID string
	)
	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Drop cached briefing tiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if date == "" && !latest && articleID == "" {
				return errors.New("nothing to invalidate: pass --date, --latest or --article")
			}
			if lists && date == "" {
				return errors.New("--lists requires --date")
			}
			return withService(cmd, open, func(svc service) error {
				ctx := cmd.Context()
				var errs []error
				if date != "" {
					errs = append(errs, svc.InvalidateDate(ctx, date))
					if lists {
						errs = append(errs, svc.InvalidateArticleLists(ctx, date, sourceIDs))
					}
				}
				if latest {
					errs = append(errs, svc.InvalidateLatest(ctx))
				}
				if articleID != "" {
					errs = append(errs, svc.InvalidateArticle(ctx, articleID))
				}
				return errors.Join(errs...)
			})
		},
	}
	cmd.Flags().StringVarP(&date, "date", "d", "", "Drop the cached briefing for this date")
	cmd.Flags().BoolVar(&latest, "latest", false, "Drop the latest briefing slot")
	cmd.Flags().BoolVar(&lists, "lists", false, "Also drop cached article listings for --date")
	cmd.Flags().StringSliceVarP(&sourceIDs, "sources", "s", nil, "Sources for --lists (default: configured sources)")
	cmd.Flags().StringVar(&articleID, "article", "", "Drop one cached article by id")
	return cmd
}

func printBriefing(w io.Writer, b domain.Briefing, text bool) error {
	if text {
		_, err := fmt.Fprintln(w, b.FullText)
		return err
	}
	return writeJSON(w, b)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
