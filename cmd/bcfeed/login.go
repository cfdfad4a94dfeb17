package main

import (
	"bufio"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v3"

	"github.com/nhle/bcfeed/internal/model"
)

// loginInput holds the values collected by the login form.
type loginInput struct {
	Username string
	Host     string
	Port     string
	Password string
	TLS      bool
}

// loginForm asks for the mailbox account. The password is never echoed.
func (r *Runner) loginForm(in *loginInput) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Description("Mailbox address").
				Placeholder("you@example.com").
				Value(&in.Username).
				Validate(validateRequired("Username")),
			huh.NewInput().
				Title("IMAP Host").
				Description("IMAP server hostname").
				Placeholder("imap.gmail.com").
				Value(&in.Host).
				Validate(validateRequired("IMAP Host")),
			huh.NewInput().
				Title("IMAP Port").
				Description("IMAP server port (e.g., 993)").
				Placeholder("993").
				Value(&in.Port).
				Validate(validatePort),
			huh.NewInput().
				Title("Password").
				Description("Mailbox password or app password").
				EchoMode(huh.EchoModePassword).
				Value(&in.Password).
				Validate(validateRequired("Password")),
			huh.NewConfirm().
				Title("Use TLS").
				Description("Implicit TLS; STARTTLS when off").
				Affirmative("Yes").
				Negative("No").
				Value(&in.TLS),
		),
	).
		WithInput(r.input).
		WithOutput(r.output).
		WithAccessible(r.accessible)
}

// Login stores the mailbox password in the keyring and records the
// account in the configuration file. The account is collected with a
// form, or with --password-stdin the password is read from standard
// input and the rest comes from flags and configuration.
func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	in := loginInput{
		Username: cmp.Or(cmd.String("username"), r.config.IMAP.Username),
		Host:     cmp.Or(cmd.String("host"), r.config.IMAP.Host),
		Port:     r.config.IMAP.Port,
		TLS:      r.config.IMAP.TLS,
	}

	if cmd.Bool("password-stdin") {
		if in.Username == "" {
			return errors.New("--username is required with --password-stdin")
		}
		password, err := readPasswordLine(r.input)
		if err != nil {
			return err
		}
		in.Password = password
	} else {
		if cmd.Bool("accessible") {
			r.accessible = true
		}
		if err := r.loginForm(&in).RunWithContext(ctx); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return errors.New("login cancelled")
			}
			return fmt.Errorf("login form: %w", err)
		}
	}

	if err := validateRequired("Username")(in.Username); err != nil {
		return err
	}
	if err := validateRequired("Password")(in.Password); err != nil {
		return err
	}

	creds, err := r.credentials()
	if err != nil {
		return err
	}
	if err := creds.SetPassword(in.Username, in.Password); err != nil {
		return err
	}

	r.config.IMAP.Username = in.Username
	r.config.IMAP.Host = in.Host
	r.config.IMAP.Port = cmp.Or(in.Port, r.config.IMAP.Port)
	r.config.IMAP.TLS = in.TLS
	if err := model.SaveConfig(r.configPath, r.config); err != nil {
		return err
	}

	fmt.Fprintln(r.output, renderNotice("Password stored for "+in.Username))
	return nil
}

// readPasswordLine reads one line from in for scripted logins.
func readPasswordLine(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validatePort(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > 65535 {
		return errors.New("port must be a number between 1 and 65535")
	}
	return nil
}
