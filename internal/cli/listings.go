package cli

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/iliyamo/campus-marketplace/internal/config"
	"github.com/iliyamo/campus-marketplace/internal/feed"
	"github.com/iliyamo/campus-marketplace/internal/model"
	"github.com/iliyamo/campus-marketplace/internal/pipeline"
)

func newFeedCmd(g *globalFlags) *cobra.Command {
	var (
		category string
		mine     bool
		search   string
	)
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Browse listings",
		Example: `  marketplace feed
  marketplace feed --category "Cab Sharing"
  marketplace feed --mine --search bike`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return requireSession(cmd, g, func(ctx context.Context, a *app, f *feed.Controller, _ *pipeline.Pipeline) error {
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, a.session.Banner())

				scope := feed.ScopeAll
				if mine {
					scope = feed.ScopeOwn
				}
				f.SetParams(ctx, model.Category(category), scope)
				if err := f.LastError(); err != nil {
					return err
				}
				f.SetSearch(search)

				items := f.Visible()
				if len(items) == 0 {
					fmt.Fprintln(out, f.EmptyText())
					return nil
				}
				printListings(out, items, a.session.Email())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", string(feed.AllCategories), "Category to show")
	cmd.Flags().BoolVar(&mine, "mine", false, "Only show your own posts")
	cmd.Flags().StringVarP(&search, "search", "s", "", "Only show titles containing this text")
	return cmd
}

func newPostCmd(g *globalFlags) *cobra.Command {
	var (
		form  pipeline.Form
		cat   string
		image string
	)
	market := config.LoadMarket()
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Create a listing",
		Example: `  marketplace post --title "Hero bicycle" --price 2500 --category "Buy/Sell" \
    --phone 9876543210 --image ./bike.jpg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return requireSession(cmd, g, func(ctx context.Context, a *app, _ *feed.Controller, p *pipeline.Pipeline) error {
				form.Category = model.Category(cat)
				if image != "" {
					img, closeFn, err := openImage(image)
					if err != nil {
						return err
					}
					defer closeFn()
					form.Image = img
				}
				l, err := p.Submit(ctx, &form)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), pipeline.NoticePosted)
				printListings(cmd.OutOrStdout(), []model.Listing{*l}, a.session.Email())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&form.Title, "title", "t", "", "Title (required)")
	cmd.Flags().StringVar(&form.Price, "price", "", "Price in whole rupees")
	cmd.Flags().StringVarP(&form.Description, "description", "d", "", "Description")
	cmd.Flags().StringVarP(&cat, "category", "c", string(model.CategoryBuySell), "One of "+categoryList(market.Categories))
	cmd.Flags().StringVar(&form.Phone, "phone", "", "Contact phone number")
	cmd.Flags().StringVar(&image, "image", "", "Path of an image to attach")
	return cmd
}

// openImage opens path for upload. The content type is guessed from the
// extension.
func openImage(path string) (*pipeline.ImageFile, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &pipeline.ImageFile{Name: filepath.Base(path), ContentType: ct, Body: f}, func() { _ = f.Close() }, nil
}

var errNotYours = errors.New("listing not found among your posts")

// ownListing looks id up in the caller's own posts.
func ownListing(ctx context.Context, f *feed.Controller, id string) (model.Listing, error) {
	f.SetScope(ctx, feed.ScopeOwn)
	if err := f.LastError(); err != nil {
		return model.Listing{}, err
	}
	for _, l := range f.Items() {
		if l.ID == id {
			return l, nil
		}
	}
	return model.Listing{}, errNotYours
}

func newToggleCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Mark one of your listings sold/closed, or reopen it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return requireSession(cmd, g, func(ctx context.Context, a *app, f *feed.Controller, p *pipeline.Pipeline) error {
				l, err := ownListing(ctx, f, args[0])
				if err != nil {
					return err
				}
				if err := p.ToggleActive(ctx, l.ID, l.IsActive); err != nil {
					return err
				}
				state := "active"
				if l.IsActive {
					state = "sold/closed"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%q is now %s.\n", l.Title, state)
				return nil
			})
		},
	}
}

func newDeleteCmd(g *globalFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one of your listings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return requireSession(cmd, g, func(ctx context.Context, a *app, f *feed.Controller, p *pipeline.Pipeline) error {
				l, err := ownListing(ctx, f, args[0])
				if err != nil {
					return err
				}
				confirm := stdinConfirmer(cmd)
				if yes {
					confirm = pipeline.ConfirmFunc(func(string) bool { return true })
				}
				deleted, err := p.Delete(ctx, l.ID, confirm)
				if err != nil {
					return err
				}
				if !deleted {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q.\n", l.Title)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}
