package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/sauvini/onboarding/core"
	"github.com/sauvini/onboarding/core/recovery"
	"github.com/sauvini/onboarding/core/registration"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp           = errors.New("help provided")
	errNoDatabase     = errors.New("no database configured")
	errNoSessionStore = errors.New("sessions are kept in memory by the api: nothing to inspect")
)

type commandLine struct {
	db       *sql.DB                           // nil without a database
	ledger   registration.SubmissionRepository // nil without a database
	sessions registration.Repository           // nil unless sessions are shared (redis)
	resets   *recovery.Service
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...]                              - run a goose migration command")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL                             - reset a user's password (token & password are prompted)")
	fmt.Fprintln(cli.out, "  submissions [-role R] [-email E] [-status S] [-ordering O] - list the submission ledger")
	fmt.Fprintln(cli.out, "  session -id ID [-delete]                               - show (or delete) a wizard session")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The reset token and the new password will be prompted next.")

	submissionsCmd := flag.NewFlagSet("submissions", flag.ContinueOnError)
	submissionsRole := submissionsCmd.String("role", "", "Filter by role (student|teacher).")
	submissionsEmail := submissionsCmd.String("email", "", "Filter by email.")
	submissionsStatus := submissionsCmd.String("status", "", "Filter by status (submitted|verified).")
	submissionsOrdering := submissionsCmd.String("ordering", "", "Comma separated fields, a leading '-' sorts descending. eg. -submitted_at")

	sessionCmd := flag.NewFlagSet("session", flag.ContinueOnError)
	sessionID := sessionCmd.String("id", "", "The wizard session ID.")
	sessionDelete := sessionCmd.Bool("delete", false, "Delete the session.")

	for _, fs := range []*flag.FlagSet{resetPasswordCmd, submissionsCmd, sessionCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		if cli.db == nil {
			return errNoDatabase
		}
		return cli.migrate(args[2:])

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordEmail)

	case "submissions":
		if err := submissionsCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if cli.ledger == nil {
			return errNoDatabase
		}
		filter := registration.QueryFilter{
			Role:   registration.Role(*submissionsRole),
			Email:  *submissionsEmail,
			Status: *submissionsStatus,
		}
		return cli.listSubmissions(filter, core.ParseOrderings(*submissionsOrdering))

	case "session":
		if err := sessionCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *sessionID == "" {
			sessionCmd.Usage()
			return errHelp
		}
		if cli.sessions == nil {
			return errNoSessionStore
		}
		if *sessionDelete {
			return cli.deleteSession(*sessionID)
		}
		return cli.showSession(*sessionID)

	default:
		cli.printUsage()
		return errHelp
	}
}

// prompt reads a hidden value from the terminal.
func (cli *commandLine) prompt(label string) (string, error) {
	fmt.Fprint(cli.out, label)
	val, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	return string(val), err
}
