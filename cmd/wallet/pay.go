package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tuncanbit/paylink/internal/application/paymentsession"
	"github.com/tuncanbit/paylink/internal/application/wallet"
	"github.com/tuncanbit/paylink/internal/domain"
	"github.com/tuncanbit/paylink/internal/infrastructure/http/clients"
	"github.com/tuncanbit/paylink/pkg/currency"
)

func payCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pay <link>",
		Short: "Pay a terminal's payment link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			prompt := newPrompter(cmd)

			if _, err := a.store.Restore(ctx); err != nil {
				return err
			}

			svc := wallet.New(clients.NewPayClient(a.cfg.Payment, a.logger), a.store, wallet.Config{
				SessionTimeout: a.cfg.Session.Timeout,
				SubmitRetries:  a.cfg.Session.SubmitRetries,
				RetryDelay:     a.cfg.Payment.RetryBackoffBase,
			}, a.logger)
			svc.Observe(func(tr paymentsession.Transition) {
				a.logger.Debug().Str("from", string(tr.From)).Str("to", string(tr.To)).Msg("Payment progress")
			})

			payment, err := svc.Begin(ctx, args[0])
			if err != nil {
				return err
			}

			session := payment.Snapshot()
			if session.Merchant != "" {
				fmt.Fprintf(out, "Pay %s %s to %s\n", currency.Format(session.Amount, session.Currency), session.Currency, session.Merchant)
			}

			cancel := func() { cancelPayment(payment, a.logger) }

			options := payment.Options()
			fmt.Fprintln(out, "\nPayment options:")
			for i, opt := range options {
				fmt.Fprintf(out, "  %d) %s %s on %s\n", i+1, opt.Amount.String(), opt.Asset, opt.ChainID)
			}
			choice, err := prompt.choose("Option", len(options))
			if err != nil {
				cancel()
				return err
			}
			if err := payment.SelectOption(ctx, options[choice].ID); err != nil {
				return err
			}

			for {
				action, ok := payment.NextAction()
				if !ok {
					break
				}
				label := action.Label
				if label == "" {
					label = action.Name
				}
				value, err := prompt.line(fmt.Sprintf("%s (%s)", label, action.Kind))
				if err != nil {
					cancel()
					return err
				}
				if err := payment.SubmitField(action.Name, value); err != nil {
					if domain.CodeOf(err) == domain.CodeValidationError {
						fmt.Fprintf(out, "  %s\n", detailOf(err))
						continue
					}
					return err
				}
			}

			ok, err := prompt.confirm("Confirm payment")
			if err != nil || !ok {
				cancel()
				fmt.Fprintln(out, "Payment cancelled")
				return err
			}

			result, err := payment.Confirm(ctx)
			if err != nil {
				return fmt.Errorf("payment failed: %s", detailOf(err))
			}
			fmt.Fprintf(out, "Payment complete. Transaction %s\n", result.TxID)
			return nil
		},
	}
}

// cancelPayment aborts p. A payment that already finished keeps its outcome.
func cancelPayment(p *wallet.Payment, logger zerolog.Logger) {
	if err := p.Cancel(); err != nil {
		logger.Debug().Err(err).Str("session_id", p.ID()).Msg("Payment already finished")
	}
}

func detailOf(err error) string {
	var perr *domain.PaymentError
	if errors.As(err, &perr) {
		return perr.Detail
	}
	return err.Error()
}

type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(cmd *cobra.Command) *prompter {
	return &prompter{in: bufio.NewReader(cmd.InOrStdin()), out: cmd.OutOrStdout()}
}

func (p *prompter) line(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	text, err := p.in.ReadString('\n')
	if err != nil && text == "" {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (p *prompter) choose(label string, n int) (int, error) {
	if n == 1 {
		return 0, nil
	}
	for {
		text, err := p.line(fmt.Sprintf("%s [1-%d]", label, n))
		if err != nil {
			return 0, err
		}
		i, err := strconv.Atoi(text)
		if err == nil && i >= 1 && i <= n {
			return i - 1, nil
		}
		fmt.Fprintln(p.out, "  Enter a number from the list")
	}
}

func (p *prompter) confirm(label string) (bool, error) {
	text, err := p.line(label + " [y/N]")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(text) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
