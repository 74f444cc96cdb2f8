package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"avatarforge/internal/app"
	"avatarforge/internal/entity"
	"avatarforge/internal/jobstate"
	"avatarforge/internal/workflow"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Render avatar videos for an FAQ answer or a chatbot",
	}
	renderCmd.AddCommand(newRenderTargetCommand(ctx, entity.ScopeFAQ, "Render the answer video of an FAQ"))
	renderCmd.AddCommand(newRenderTargetCommand(ctx, entity.ScopeChatbot, "Render the greeting and idle videos of a chatbot"))
	return renderCmd
}

func newRenderTargetCommand(ctx *commandContext, scope entity.Scope, short string) *cobra.Command {
	var detach bool
	cmd := &cobra.Command{
		Use:   string(scope) + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := workflow.ParseRequest(string(scope), args[0])
			if err != nil {
				return err
			}
			if detach {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				return submitToDaemon(cmd.Context(), cmd.OutOrStdout(), cfg, req)
			}
			return ctx.withApp(cmd, func(runCtx context.Context, a *app.App) error {
				return runRender(runCtx, cmd.OutOrStdout(), a, req)
			})
		},
	}
	cmd.Flags().BoolVar(&detach, "detach", false, "Submit the job to the running daemon and return after admission")
	return cmd
}

// runRender admits the job into this process's runner and waits for it.
func runRender(ctx context.Context, out io.Writer, a *app.App, req workflow.Request) error {
	admission, err := a.Manager.RequestJob(context.WithoutCancel(ctx), req)
	if err != nil {
		return err
	}
	if admission.Busy {
		status := a.Manager.Status(ctx)
		return fmt.Errorf("another render is in progress (job %s, %s)", status.JobID, status.Status)
	}
	fmt.Fprintf(out, "Admitted job %s for %s %d\n", admission.JobID, req.Scope, req.ID)
	done := make(chan struct{})
	go func() {
		a.Manager.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		fmt.Fprintln(out, "Interrupted, cancelling render")
		if _, err := a.Manager.RequestCancel(context.WithoutCancel(ctx), true); err != nil {
			fmt.Fprintf(out, "cancel request failed: %v\n", err)
		}
		<-done
	}

	status := a.Manager.Status(context.WithoutCancel(ctx))
	last := status.Last
	if last == nil || last.JobID != admission.JobID {
		return errors.New("render finished without a recorded outcome")
	}
	fmt.Fprintf(out, "%s: %s\n", titleLabel(string(last.Status)), last.Message)
	switch last.Status {
	case jobstate.StatusDone:
		for _, ref := range targetsOf(req) {
			fmt.Fprintf(out, "  %s -> %s\n", ref, a.Staging.ArtifactPath(ref))
		}
		return nil
	case jobstate.StatusCancelled:
		return context.Canceled
	default:
		if last.Error != "" {
			return fmt.Errorf("render failed: %s", last.Error)
		}
		return errors.New("render failed")
	}
}

func targetsOf(req workflow.Request) []entity.Ref {
	_, refs, err := req.Job()
	if err != nil {
		return nil
	}
	return refs
}
