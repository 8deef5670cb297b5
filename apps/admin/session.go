package main

import (
	"context"
	"encoding/json"
	"fmt"
)

// showSession prints the session as JSON, passwords redacted.
func (cli *commandLine) showSession(id string) error {
	sess, err := cli.sessions.GetSession(context.Background(), id)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(sess.View(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, string(data))
	return nil
}

func (cli *commandLine) deleteSession(id string) error {
	ctx := context.Background()
	if _, err := cli.sessions.GetSession(ctx, id); err != nil {
		return err
	}
	if err := cli.sessions.DeleteSession(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Session %s deleted.\n", id)
	return nil
}
