package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	netscout "github.com/kailas-cloud/netscout/pkg/sdk"
)

func newClient(c *cli.Context) (*netscout.Client, error) {
	var opts []netscout.Option
	token, user := c.String("token"), c.String("user")
	switch {
	case token != "" && user != "":
		opts = append(opts, netscout.WithAPIKey(token, user))
	case token != "":
		opts = append(opts, netscout.WithToken(token))
	case user != "":
		opts = append(opts, netscout.WithUser(user))
	}
	client, err := netscout.New(c.String("url"), opts...)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return client, nil
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return errors.New("query is required")
	}
	client, err := newClient(c)
	if err != nil {
		return err
	}

	out := c.App.Writer
	quiet := c.Bool("quiet")
	res, err := client.Search(c.Context, query, func(ev netscout.Event) error {
		if quiet || ev.Name != netscout.EventStep {
			return nil
		}
		st, err := ev.Step()
		if err != nil {
			return err
		}
		line := fmt.Sprintf("  %-12s %s", st.Name, st.Status)
		if st.Message != "" {
			line += "  " + st.Message
		}
		_, _ = fmt.Fprintln(out, line)
		return nil
	})

	var searchErr *netscout.SearchError
	if errors.As(err, &searchErr) {
		return cli.Exit(searchErr.Error(), 1)
	}
	if err != nil {
		return err
	}

	printResults(out, res, c.Bool("evidence"))
	return nil
}

func printResults(w io.Writer, res netscout.Outcome, evidence bool) {
	if res.Results.Partial {
		_, _ = fmt.Fprintln(w, "\nSome candidates could not be fully scored.")
	}
	_, _ = fmt.Fprintf(w, "\n%d results (%s, %dms, %d LLM calls)\n\n",
		len(res.Results.Results), res.Done.Status, res.Done.DurationMS, res.Done.Usage.LLMCalls)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tMATCH\tNAME\tHEADLINE\tSOURCE")
	for i, r := range res.Results.Results {
		_, _ = fmt.Fprintf(tw, "%d\t%d%%\t%s\t%s\t%s\n",
			i+1, r.MatchPercent, r.Candidate.FullName, r.Candidate.Headline, r.Candidate.Provenance.Source)
		if !evidence {
			continue
		}
		for _, ts := range r.TraitScores {
			_, _ = fmt.Fprintf(tw, "\t\t  %s: %s\t%s\t\n", ts.Trait, ts.Score, ts.Evidence)
		}
	}
	_ = tw.Flush()
}

func usageCommand(c *cli.Context) error {
	client, err := newClient(c)
	if err != nil {
		return err
	}
	rep, err := client.Usage(c.Context, netscout.UsagePeriod(c.String("period")))
	if err != nil {
		return err
	}

	w := c.App.Writer
	q := rep.Searches
	if q.Remaining < 0 {
		_, _ = fmt.Fprintf(w, "searches: %d used (unlimited)\n", q.Used)
	} else {
		_, _ = fmt.Fprintf(w, "searches: %d/%d used, %d remaining\n", q.Used, q.Limit, q.Remaining)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "PROVIDER\tLIMIT (%s)\tREMAINING\tEXHAUSTED\n", rep.Period)
	for _, b := range rep.Budgets {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%t\n", b.Provider, b.TokensLimit, b.TokensRemaining, b.IsExhausted)
	}
	return tw.Flush()
}

func healthCommand(c *cli.Context) error {
	client, err := newClient(c)
	if err != nil {
		return err
	}
	h, err := client.Health(c.Context)
	if err != nil {
		return err
	}
	w := c.App.Writer
	_, _ = fmt.Fprintf(w, "status: %s\n", h.Status)
	for name, status := range h.Checks {
		_, _ = fmt.Fprintf(w, "  %s: %s\n", name, status)
	}
	if h.Status == "error" {
		return cli.Exit("", 1)
	}
	return nil
}
