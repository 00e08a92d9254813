package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cuongbtq/docintel/internal/chat"
	"github.com/cuongbtq/docintel/internal/config"
	"github.com/cuongbtq/docintel/internal/domain"
	"github.com/cuongbtq/docintel/internal/jobclient"
	"github.com/cuongbtq/docintel/internal/jobtype"
	"github.com/cuongbtq/docintel/internal/tracker"
)

type cli struct {
	cfg         *config.Config
	client      *jobclient.Client
	out         io.Writer
	trackerOpts tracker.Options
}

type jobOutcome struct {
	result any
	err    error
}

func (c *cli) spec(kind string) jobtype.Spec {
	iv := c.cfg.Jobs.Intervals
	switch kind {
	case "pdf":
		return jobtype.PdfAnalysisSpec.WithInterval(iv.PdfAnalysis)
	case "video":
		return jobtype.VideoGenerationSpec.WithInterval(iv.VideoGeneration)
	default:
		return jobtype.YoutubeAnalysisSpec.WithInterval(iv.YoutubeAnalysis)
	}
}

func payload(kind string, args []string) (any, error) {
	switch kind {
	case "pdf":
		req := jobtype.PdfAnalysisRequest{DocumentID: args[0]}
		for _, a := range args[1:] {
			page, err := strconv.Atoi(a)
			if err != nil {
				return nil, fmt.Errorf("invalid page number %q", a)
			}
			req.Pages = append(req.Pages, page)
		}
		return req, nil
	case "video":
		req := jobtype.VideoGenerationRequest{DocumentID: args[0]}
		if len(args) > 1 {
			req.Voice = args[1]
		}
		return req, nil
	default:
		return args[0], nil
	}
}

// runJob submits one job and prints its progress until it settles
func (c *cli) runJob(ctx context.Context, kind string, args []string) error {
	body, err := payload(kind, args)
	if err != nil {
		return err
	}

	a := jobtype.New(c.spec(kind), c.client)
	t := tracker.New(c.trackerOpts)
	defer t.Cancel()

	done := make(chan jobOutcome, 1)
	settle := func(o jobOutcome) {
		select {
		case done <- o:
		default:
		}
	}

	handle, err := t.Start(ctx, a, body, tracker.Callbacks{
		OnProgress: func(phase domain.Phase, progress int) {
			fmt.Fprintf(c.out, "%-11s %3d%%\n", phase, progress)
		},
		OnCompleted:  func(result any) { settle(jobOutcome{result: result}) },
		OnError:      func(err error) { settle(jobOutcome{err: err}) },
		OnLowBalance: func() { settle(jobOutcome{err: domain.ErrInsufficientBalance}) },
	})
	if err != nil {
		return describe(err)
	}
	fmt.Fprintf(c.out, "submitted %s job %s\n", a.Type(), handle.JobID)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case o := <-done:
		if o.err != nil {
			return describe(o.err)
		}
		return c.print(o.result)
	}
}

// runChat asks one question in the given session and prints the answer
func (c *cli) runChat(ctx context.Context, sessionID string, words []string) error {
	followup := jobtype.New(jobtype.ChatFollowupSpec.WithInterval(c.cfg.Jobs.Intervals.ChatFollowup), c.client)

	ctrl := chat.NewController(c.client, chat.Options{
		SessionID: sessionID,
		Followup:  followup,
		Tracker:   c.trackerOpts,
		Overlap:   c.cfg.Chat.Overlap,
	})
	defer ctrl.Close()

	turn, err := ctrl.Send(ctx, strings.Join(words, " "))
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-turn.Done():
	}

	switch turn.Outcome() {
	case chat.OutcomeDelivered:
		final, _ := turn.Final()
		fmt.Fprintln(c.out, final.Text)
		return nil
	case chat.OutcomeLowBalance:
		return describe(domain.ErrInsufficientBalance)
	default:
		if draft := ctrl.Draft(); draft != "" {
			fmt.Fprintf(c.out, "not sent: %s\n", draft)
		}
		return describe(turn.Err())
	}
}

func (c *cli) print(result any) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintln(c.out, string(data))
	return err
}

// describe maps lifecycle errors onto the messages shown to the user
func describe(err error) error {
	var failed *domain.JobFailedError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInsufficientBalance):
		return errors.New("insufficient credits: top up your balance and try again")
	case errors.Is(err, domain.ErrSessionExpired):
		return errors.New("session expired: sign in again")
	case errors.Is(err, domain.ErrTimedOut):
		return errors.New("lost contact with the server, try again later")
	case errors.As(err, &failed):
		return fmt.Errorf("job failed: %s", failed.Error())
	default:
		return err
	}
}
