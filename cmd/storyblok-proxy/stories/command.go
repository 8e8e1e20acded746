// Package stories drives the story editor of a running proxy from the
// command line, using the session cookie of a connected browser.
package stories

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/storyblok-proxy/pkg/storyclient"
)

const defaultCookieName = "storyblok_proxy_session"

var errNoCookie = errors.New("--cookie is required")

type options struct {
	proxy      string
	space      string
	cookie     string
	cookieName string
}

// Cmd returns the stories command tree. annotation marks every leaf command.
func Cmd(annotation string) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "stories",
		Short: "Manage the stories of a space through a running proxy",
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.proxy, "proxy", "http://localhost:3000", "proxy base URL")
	flags.StringVar(&opts.space, "space", "", "Storyblok space id")
	flags.StringVar(&opts.cookie, "cookie", "", "value of the proxy session cookie of a connected browser")
	flags.StringVar(&opts.cookieName, "cookie-name", defaultCookieName, "name of the proxy session cookie")
	_ = cmd.MarkPersistentFlagRequired("space")

	var name, slug string
	var id int64

	list := &cobra.Command{
		Use:   "list",
		Short: "List the stories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, b *storyclient.Board) error {
				return b.List(ctx)
			})
		},
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a story",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, b *storyclient.Board) error {
				b.OpenNew()
				b.Story.Name = name
				b.Story.Slug = slug

				return b.CreateOrUpdate(ctx)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "story name")
	create.Flags().StringVar(&slug, "slug", "", "story slug")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("slug")

	update := &cobra.Command{
		Use:   "update",
		Short: "Rename a story",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, b *storyclient.Board) error {
				if err := b.List(ctx); err != nil {
					return err
				}

				story, err := find(b.Stories, id)
				if err != nil {
					return err
				}

				if cmd.Flags().Changed("name") {
					story.Name = name
				}
				if cmd.Flags().Changed("slug") {
					story.Slug = slug
				}

				b.EditStory(story)

				return b.CreateOrUpdate(ctx)
			})
		},
	}
	update.Flags().Int64Var(&id, "id", 0, "story id")
	update.Flags().StringVar(&name, "name", "", "new story name")
	update.Flags().StringVar(&slug, "slug", "", "new story slug")
	_ = update.MarkFlagRequired("id")

	remove := &cobra.Command{
		Use:   "delete",
		Short: "Delete a story",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, b *storyclient.Board) error {
				return b.Remove(ctx, id)
			})
		},
	}
	remove.Flags().Int64Var(&id, "id", 0, "story id")
	_ = remove.MarkFlagRequired("id")

	for _, sub := range []*cobra.Command{list, create, update, remove} {
		sub.Annotations = map[string]string{annotation: "true"}
		cmd.AddCommand(sub)
	}

	return cmd
}

// run performs action on a fresh board and prints the resulting list.
func (o *options) run(cmd *cobra.Command, action func(context.Context, *storyclient.Board) error) error {
	ctx := cmd.Context()

	client, err := o.client()
	if err != nil {
		return err
	}

	board := storyclient.NewBoard(client, storyclient.AlertFunc(func(err error) {
		slogctx.Error(ctx, "Story request failed", "error", err)
	}))

	if err := action(ctx, board); err != nil {
		return err
	}

	return printStories(cmd.OutOrStdout(), board.Stories)
}

func (o *options) client() (*storyclient.Client, error) {
	if o.cookie == "" {
		return nil, errNoCookie
	}

	proxyURL, err := url.Parse(o.proxy)
	if err != nil {
		return nil, fmt.Errorf("parsing proxy url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	name := o.cookieName
	if name == "" {
		name = defaultCookieName
	}
	jar.SetCookies(proxyURL, []*http.Cookie{{Name: name, Value: o.cookie, Path: "/"}})

	httpClient := &http.Client{
		Jar:       jar,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	return storyclient.New(o.proxy, o.space, httpClient)
}

var errUnknownStory = errors.New("story not found")

func find(stories []storyclient.Story, id int64) (storyclient.Story, error) {
	for _, s := range stories {
		if s.ID == id {
			return s, nil
		}
	}

	return storyclient.Story{}, fmt.Errorf("%w: %d", errUnknownStory, id)
}

func printStories(w io.Writer, stories []storyclient.Story) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tSLUG")
	for _, s := range stories {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\n", s.ID, s.Name, s.Slug)
	}

	return tw.Flush()
}
