package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DeafMist/diet-digest/backend/internal/models"
	"github.com/DeafMist/diet-digest/backend/internal/repository"
)

type filterFlags struct {
	categories []string
	houses     []string
	meetings   []string
	from       string
	to         string
	sort       string
	limit      int
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.categories, "categories", nil, "Comma separated categories (any matches)")
	cmd.Flags().StringSliceVar(&f.houses, "houses", nil, "Comma separated house names")
	cmd.Flags().StringSliceVar(&f.meetings, "meetings", nil, "Comma separated meeting names")
	cmd.Flags().StringVar(&f.from, "from", "", "First day of the date range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "Last day of the date range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.sort, "sort", string(models.SortDateDesc), "date_desc or date_asc")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "Maximum number of records to read (0 uses the default)")
}

func (f *filterFlags) filters() models.SearchFilters {
	return models.SearchFilters{
		Categories: f.categories,
		Houses:     f.houses,
		Meetings:   f.meetings,
		DateStart:  f.from,
		DateEnd:    f.to,
		Sort:       models.ParseSort(f.sort),
		Limit:      f.limit,
	}
}

func newHeadlinesCmd(a *app) *cobra.Command {
	var (
		limit  int
		offset int
		sort   string
	)
	cmd := &cobra.Command{
		Use:   "headlines",
		Short: "List articles by date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reader, err := a.reader(cmd.Context())
			if err != nil {
				return err
			}
			out, err := reader.Headlines(cmd.Context(), repository.HeadlineParams{
				Limit:  limit,
				Offset: offset,
				Sort:   models.ParseSort(sort),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Page size (0 uses the default)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of articles to skip")
	cmd.Flags().StringVar(&sort, "sort", string(models.SortDateDesc), "date_desc or date_asc")
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	var (
		f     filterFlags
		words []string
	)
	cmd := &cobra.Command{
		Use:   "search [word...]",
		Short: "Search articles by keyword, category and date",
		Long: `Search reads one keyword partition (the first word) or one category partition
(the first category) and narrows it with the remaining filters.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, err := a.reader(cmd.Context())
			if err != nil {
				return err
			}
			filters := f.filters()
			filters.Words = append(append([]string{}, args...), words...)

			items, err := reader.SearchArticles(cmd.Context(), filters)
			if err != nil {
				return err
			}
			if items == nil {
				items = []models.ArticleSummary{}
			}
			return printJSON(cmd.OutOrStdout(), items)
		},
	}
	f.register(cmd)
	cmd.Flags().StringSliceVar(&words, "words", nil, "Comma separated keywords")
	return cmd
}

func newArticleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "article [id]",
		Short: "Show one article with its payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, err := a.reader(cmd.Context())
			if err != nil {
				return err
			}
			article, err := reader.Article(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if article == nil {
				return fmt.Errorf("article %q not found", args[0])
			}
			return printJSON(cmd.OutOrStdout(), article)
		},
	}
}

func newSuggestCmd(a *app) *cobra.Command {
	var f filterFlags
	cmd := &cobra.Command{
		Use:   "suggest [input]",
		Short: "Suggest titles and keywords for an exact keyword",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, err := a.reader(cmd.Context())
			if err != nil {
				return err
			}
			filters := f.filters()
			out, err := reader.Suggestions(cmd.Context(), args[0], f.limit, filters)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	f.register(cmd)
	return cmd
}
