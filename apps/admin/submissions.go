package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/sauvini/onboarding/core"
	"github.com/sauvini/onboarding/core/registration"
)

const timeLayout = "2006-01-02 15:04"

func (cli *commandLine) listSubmissions(filter registration.QueryFilter, ordering []core.DBOrdering) error {
	filter.Clean()
	subs, err := cli.ledger.QuerySubmissions(context.Background(), filter, ordering...)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tROLE\tEMAIL\tNAME\tSTATUS\tSUBMITTED\tVERIFIED")
	for _, sub := range subs {
		verified := "-"
		if sub.VerifiedAt.Valid {
			verified = sub.VerifiedAt.Time.Format(timeLayout)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s %s\t%s\t%s\t%s\n",
			sub.ID, sub.Role, sub.Email, sub.FirstName, sub.LastName, sub.Status,
			sub.SubmittedAt.Format(timeLayout), verified,
		)
	}
	if err = w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d submission(s)\n", len(subs))
	return nil
}
