package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/samzong/searchbeam/internal/domain"
)

var errSearchFailed = errors.New("search failed")

type searchOptions struct {
	platform  string
	pageToken string
	max       int
}

func newSearchCmd() *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search [flags] <query...>",
		Short: "Run a single search and print the results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			a, err := newApp(cmd.Context(), cfg, logger, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			req := domain.SearchRequest{
				Platform:   opts.platform,
				Query:      strings.Join(args, " "),
				PageToken:  opts.pageToken,
				MaxResults: opts.max,
			}
			if err := req.Validate(); err != nil {
				return fmt.Errorf("invalid request: %w", err)
			}

			resp := a.search.Search(cmd.Context(), req)
			return printResponse(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringVarP(&opts.platform, "platform", "p", "youtube", "platform to search")
	cmd.Flags().StringVar(&opts.pageToken, "page-token", "", "continuation token from a previous page")
	cmd.Flags().IntVarP(&opts.max, "max", "n", 0, "results per page (0 = server default)")

	return cmd
}

func printResponse(w io.Writer, resp *domain.SearchResponse) error {
	if resp.Failed() {
		color.New(color.FgRed, color.Bold).Fprintln(w, resp.Error)
		return errSearchFailed
	}

	if len(resp.Items) == 0 {
		color.New(color.FgYellow).Fprintln(w, "No results")
		return nil
	}

	title := color.New(color.FgHiWhite, color.Bold)
	link := color.New(color.FgCyan, color.Underline)
	meta := color.New(color.FgHiBlack)

	for i, item := range resp.Items {
		title.Fprintf(w, "%2d. %s\n", i+1, item.Title)
		link.Fprintf(w, "    %s\n", item.VideoURL)
		if m := itemMeta(item); m != "" {
			meta.Fprintf(w, "    %s\n", m)
		}
	}

	if resp.NextPageToken != "" {
		fmt.Fprintln(w)
		color.New(color.FgGreen).Fprintf(w, "next page: --page-token %s\n", resp.NextPageToken)
	}

	return nil
}

func itemMeta(item domain.SearchResultItem) string {
	var parts []string
	if item.ChannelTitle != "" {
		parts = append(parts, item.ChannelTitle)
	}
	if item.PublishedAt != nil {
		parts = append(parts, item.PublishedAt.UTC().Format("2006-01-02"))
	}
	if item.ViewCount != "" {
		parts = append(parts, item.ViewCount+" views")
	}
	return strings.Join(parts, " | ")
}
