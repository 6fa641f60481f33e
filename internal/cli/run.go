package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"signcoach/internal/domain"
	"signcoach/internal/usecase"
)

var ErrNoMatch = errors.New("target sign was not recognized")

type runOptions struct {
	category string
	label    string
	timeout  time.Duration
	verbose  bool
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one practice session and exit when the sign is recognized",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPractice(cmd, root, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.category, "category", "c", string(domain.CategoryAlphabet), "gesture category (alphabet, numbers, words)")
	cmd.Flags().StringVarP(&opts.label, "label", "l", "", "target sign label")
	cmd.Flags().DurationVarP(&opts.timeout, "timeout", "t", 60*time.Second, "give up after this long; 0 waits until interrupted")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "print every prediction")
	_ = cmd.MarkFlagRequired("label")
	return cmd
}

func runPractice(cmd *cobra.Command, root *rootOptions, opts *runOptions) error {
	category, err := domain.ParseCategory(opts.category)
	if err != nil {
		return err
	}

	sink := newConsoleSink(cmd.OutOrStdout(), opts.verbose)
	services, err := root.build(sink, root.logger(cmd))
	if err != nil {
		return err
	}
	controller := services.Controller
	defer controller.Shutdown()

	matched := make(chan domain.MatchResult, 1)
	finished := make(chan domain.Status, 1)

	cmd.Println(titleStyle.Render(fmt.Sprintf("Sign %q", opts.label)), dimStyle.Render(string(category)))
	status, err := controller.Start(cmd.Context(), usecase.Request{
		Category:    category,
		TargetLabel: opts.label,
		OnMatched: func(result domain.MatchResult) {
			select {
			case matched <- result:
			default:
			}
		},
		OnFinished: func(status domain.Status) {
			select {
			case finished <- status:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	if !status.Recognition {
		cmd.Println(warnStyle.Render("no recognition endpoint for " + string(category)))
	}

	var deadline <-chan time.Time
	if opts.timeout > 0 {
		timer := time.NewTimer(opts.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-matched:
		_, _ = controller.Finish()
		return nil
	case <-finished:
		return ErrNoMatch
	case <-deadline:
		_, _ = controller.Finish()
		return fmt.Errorf("%w within %s", ErrNoMatch, opts.timeout)
	case <-cmd.Context().Done():
		_, _ = controller.Finish()
		return fmt.Errorf("%w: interrupted", ErrNoMatch)
	}
}
