package main

import (
	"context"
	"fmt"

	"github.com/sauvini/onboarding/core/recovery"
)

// resetPassword runs the password reset flow: the auth service emails a token
// to the user, which the operator enters along with the new password.
func (cli *commandLine) resetPassword(email string) error {
	ctx := context.Background()
	sess, err := cli.resets.Start(ctx, email)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "A reset token has been sent to %s.\n", sess.Values[recovery.KeyEmail])

	token, err := cli.prompt("Enter the reset token:")
	if err != nil {
		return err
	}
	if err = cli.resets.SetToken(ctx, sess.ID, token); err != nil {
		return err
	}

	pwd, err := cli.prompt("Enter password:")
	if err != nil {
		return err
	}
	if pwd == "" {
		return errHelp
	}
	confirm, err := cli.prompt("Confirm password:")
	if err != nil {
		return err
	}
	if err = cli.resets.Complete(ctx, sess.ID, pwd, confirm); err != nil {
		return err
	}
	fmt.Fprintln(cli.out, "Password reset.")
	return nil
}
