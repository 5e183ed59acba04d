package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/gmail-go/internal/cache"
	"github.com/tonimelisma/gmail-go/internal/config"
	"github.com/tonimelisma/gmail-go/internal/gmail"
)

// metadataFetchers bounds the parallel per-message metadata fetches
// during list. Gmail's per-user concurrency quota is generous but not
// unlimited.
const metadataFetchers = 5

// Column width caps for list output.
const (
	senderWidth  = 24
	subjectWidth = 48
)

// List command flags.
var (
	flagListMax    int
	flagListQuery  string
	flagListLabel  string
	flagListUnread bool
	flagListCached bool
)

// flagUnsubHTTP switches unsubscribe from opening the browser to
// performing the GET directly.
var flagUnsubHTTP bool

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List messages",
		RunE:  runList,
	}

	cmd.Flags().IntVar(&flagListMax, "max", 0, "maximum number of messages (default from config)")
	cmd.Flags().StringVar(&flagListQuery, "query", "", "Gmail search query, e.g. 'from:alice has:attachment'")
	cmd.Flags().StringVar(&flagListLabel, "label", "", "only messages with this label")
	cmd.Flags().BoolVar(&flagListUnread, "unread", false, "only unread messages")
	cmd.Flags().BoolVar(&flagListCached, "cached", false, "show the last cached listing without network access")

	return cmd
}

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <message-id>",
		Short: "Show a message's headers and text body",
		Args:  cobra.ExactArgs(1),
		RunE:  runRead,
	}
}

func newArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <message-id>",
		Short: "Remove a message from the inbox",
		Args:  cobra.ExactArgs(1),
		RunE: modifyCmd(func(ctx context.Context, c *gmail.Client, id string) error {
			return c.ArchiveMessage(ctx, id)
		}, "Archived %s\n"),
	}
}

func newSpamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "spam <message-id>",
		Short: "Mark a message as spam",
		Args:  cobra.ExactArgs(1),
		RunE: modifyCmd(func(ctx context.Context, c *gmail.Client, id string) error {
			return c.SpamMessage(ctx, id)
		}, "Marked %s as spam\n"),
	}
}

func newUnspamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unspam <message-id>",
		Short: "Clear the spam flag and restore to the inbox",
		Args:  cobra.ExactArgs(1),
		RunE: modifyCmd(func(ctx context.Context, c *gmail.Client, id string) error {
			return c.UnspamMessage(ctx, id)
		}, "Restored %s from spam\n"),
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <message-id>",
		Short: "Move a message to the trash",
		Args:  cobra.ExactArgs(1),
		RunE: modifyCmd(func(ctx context.Context, c *gmail.Client, id string) error {
			return c.TrashMessage(ctx, id)
		}, "Moved %s to trash\n"),
	}
}

func newLabelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "label <message-id> <label>",
		Short: "Add a label to a message",
		Args:  cobra.ExactArgs(2),
		RunE:  labelCmd(true),
	}
}

func newUnlabelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlabel <message-id> <label>",
		Short: "Remove a label from a message",
		Args:  cobra.ExactArgs(2),
		RunE:  labelCmd(false),
	}
}

func newLabelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "List all labels in the account",
		RunE:  runLabels,
	}
}

func newUnsubscribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unsubscribe <message-id>",
		Short: "Unsubscribe from a message's sender",
		Long: "Reads the message's List-Unsubscribe header. By default the first\n" +
			"http(s) link is opened in your browser; with --http the request is\n" +
			"performed directly.",
		Args: cobra.ExactArgs(1),
		RunE: runUnsubscribe,
	}

	cmd.Flags().BoolVar(&flagUnsubHTTP, "http", false, "perform the unsubscribe GET directly instead of opening the browser")

	return cmd
}

// listRow is one rendered line of list output, also the JSON schema.
type listRow struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
	Snippet string `json:"snippet,omitempty"`
}

func runList(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	max := flagListMax
	if max <= 0 {
		max = loadedCfg.Listing.MaxResults
	}

	if flagListCached {
		return listFromCache(ctx, max)
	}

	client, err := newSession(ctx)
	if err != nil {
		return err
	}

	opts := gmail.ListOptions{MaxResults: max, Query: flagListQuery}

	if flagListUnread {
		opts.Query = strings.TrimSpace("is:unread " + opts.Query)
	}

	label := flagListLabel
	if label == "" {
		label = loadedCfg.Listing.DefaultLabel
	}

	if label != "" {
		labelID, resolveErr := client.ResolveLabelID(ctx, label)
		if resolveErr != nil {
			return resolveErr
		}

		// "all" resolves to the empty ID: list without a label filter.
		if labelID != "" {
			opts.LabelIDs = []string{labelID}
		}
	}

	refs, err := client.ListMessages(ctx, opts)
	if err != nil {
		return err
	}

	msgs, err := fetchMetadata(ctx, client, refs)
	if err != nil {
		return err
	}

	rows := make([]listRow, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, listRow{
			ID:      m.ID,
			From:    m.Header("From"),
			Subject: m.Header("Subject"),
			Date:    m.Header("Date"),
			Snippet: m.Snippet,
		})
	}

	cacheListing(ctx, msgs, buildLogger())

	return printListing(rows)
}

// fetchMetadata fetches full metadata for each ref through a bounded
// worker group, preserving the listing order.
func fetchMetadata(ctx context.Context, client *gmail.Client, refs []gmail.MessageRef) ([]*gmail.Message, error) {
	msgs := make([]*gmail.Message, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(metadataFetchers)

	for i, ref := range refs {
		g.Go(func() error {
			msg, err := client.GetMessage(gctx, ref.ID)
			if err != nil {
				return err
			}

			msgs[i] = msg

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return msgs, nil
}

// cacheListing refreshes the metadata cache from fetched messages.
// Best-effort: a broken cache never fails the command.
func cacheListing(ctx context.Context, msgs []*gmail.Message, logger *slog.Logger) {
	store, err := cache.Open(ctx, config.CacheDBPath(), logger)
	if err != nil {
		logger.Warn("message cache unavailable", slog.String("error", err.Error()))
		return
	}
	defer store.Close()

	cached := make([]cache.Message, 0, len(msgs))
	for _, m := range msgs {
		cached = append(cached, cache.Message{
			ID:       m.ID,
			ThreadID: m.ThreadID,
			From:     m.Header("From"),
			Subject:  m.Header("Subject"),
			Date:     m.Header("Date"),
			Snippet:  m.Snippet,
			LabelIDs: m.LabelIDs,
		})
	}

	if err := store.UpsertAll(ctx, cached); err != nil {
		logger.Warn("caching listing failed", slog.String("error", err.Error()))
	}
}

// listFromCache renders the most recent cached listing, no network.
func listFromCache(ctx context.Context, max int) error {
	store, err := cache.Open(ctx, config.CacheDBPath(), buildLogger())
	if err != nil {
		return err
	}
	defer store.Close()

	msgs, err := store.Recent(ctx, max)
	if err != nil {
		return err
	}

	rows := make([]listRow, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, listRow{
			ID:      m.ID,
			From:    m.From,
			Subject: m.Subject,
			Date:    m.Date,
			Snippet: m.Snippet,
		})
	}

	return printListing(rows)
}

func printListing(rows []listRow) error {
	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		statusf("No messages.\n")
		return nil
	}

	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		table = append(table, []string{
			r.ID,
			truncate(formatSender(r.From), senderWidth),
			truncate(r.Subject, subjectWidth),
			formatDate(r.Date),
		})
	}

	printTable(os.Stdout, []string{"ID", "FROM", "SUBJECT", "DATE"}, table)

	return nil
}

// readOutput is the JSON schema for `read --json`.
type readOutput struct {
	ID      string   `json:"id"`
	From    string   `json:"from"`
	To      string   `json:"to"`
	Subject string   `json:"subject"`
	Date    string   `json:"date"`
	Labels  []string `json:"labels"`
	Body    string   `json:"body"`
}

func runRead(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	client, err := newSession(ctx)
	if err != nil {
		return err
	}

	msg, err := client.GetMessage(ctx, args[0])
	if err != nil {
		return err
	}

	cacheListing(ctx, []*gmail.Message{msg}, buildLogger())

	out := readOutput{
		ID:      msg.ID,
		From:    msg.Header("From"),
		To:      msg.Header("To"),
		Subject: msg.Header("Subject"),
		Date:    msg.Header("Date"),
		Labels:  msg.LabelIDs,
		Body:    msg.BodyText(),
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	fmt.Printf("From:    %s\n", out.From)

	if out.To != "" {
		fmt.Printf("To:      %s\n", out.To)
	}

	fmt.Printf("Subject: %s\n", out.Subject)
	fmt.Printf("Date:    %s\n", out.Date)
	fmt.Printf("\n%s\n", out.Body)

	return nil
}

// modifyCmd builds a RunE for the single-argument label-modify commands.
func modifyCmd(op func(context.Context, *gmail.Client, string) error, doneFormat string) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		ctx := context.Background()

		client, err := newSession(ctx)
		if err != nil {
			return err
		}

		if err := op(ctx, client, args[0]); err != nil {
			return err
		}

		statusf(doneFormat, args[0])

		return nil
	}
}

// labelCmd builds a RunE for label/unlabel: resolve the name, then
// add or remove the resolved ID.
func labelCmd(add bool) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		ctx := context.Background()
		id, name := args[0], args[1]

		client, err := newSession(ctx)
		if err != nil {
			return err
		}

		labelID, err := client.ResolveLabelID(ctx, name)
		if err != nil {
			return err
		}

		// "all" means "no label filter" and cannot be attached to a message.
		if labelID == "" {
			return fmt.Errorf("%q is a virtual label and cannot be added or removed", name)
		}

		if add {
			_, err = client.ModifyMessage(ctx, id, []string{labelID}, nil)
		} else {
			_, err = client.ModifyMessage(ctx, id, nil, []string{labelID})
		}

		if err != nil {
			return err
		}

		if add {
			statusf("Added label %q to %s\n", name, id)
		} else {
			statusf("Removed label %q from %s\n", name, id)
		}

		return nil
	}
}

func runLabels(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	client, err := newSession(ctx)
	if err != nil {
		return err
	}

	labels, err := client.ListLabels(ctx)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(labels)
	}

	rows := make([][]string, 0, len(labels))
	for _, l := range labels {
		rows = append(rows, []string{l.ID, l.Name, l.Type})
	}

	printTable(os.Stdout, []string{"ID", "NAME", "TYPE"}, rows)

	return nil
}

func runUnsubscribe(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	client, err := newSession(ctx)
	if err != nil {
		return err
	}

	info, err := client.GetUnsubscribeInfo(ctx, args[0])
	if err != nil {
		return err
	}

	if !info.HasUnsubscribe {
		statusf("Message %s has no List-Unsubscribe header.\n", args[0])
		return nil
	}

	method, ok := info.HTTPMethod()
	if !ok {
		// Mailto-only senders: nothing to open, tell the user the address.
		for _, m := range info.Methods {
			statusf("No unsubscribe link; send an email to %s\n", strings.TrimPrefix(m.URL, "mailto:"))
		}

		return nil
	}

	if flagUnsubHTTP {
		if err := client.UnsubscribeViaHTTP(ctx, method.URL); err != nil {
			return err
		}

		statusf("Unsubscribe request sent to %s\n", method.URL)

		return nil
	}

	if err := openBrowser(method.URL); err != nil {
		fmt.Fprintf(os.Stderr, "Open this URL to unsubscribe:\n%s\n", method.URL)
		return nil
	}

	statusf("Opened %s in your browser.\n", method.URL)

	return nil
}
