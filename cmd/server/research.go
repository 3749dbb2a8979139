package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ashureev/classgrade/internal/domain"
	"github.com/ashureev/classgrade/internal/orchestrator"
	"github.com/ashureev/classgrade/internal/research"
	"github.com/spf13/cobra"
)

type researchOutput struct {
	CourseID   string               `json:"courseId"`
	Status     orchestrator.Status  `json:"status"`
	SessionID  string               `json:"sessionId,omitempty"`
	StoredAt   time.Time            `json:"storedAt"`
	Path       []orchestrator.State `json:"path"`
	Assessment domain.Assessment    `json:"assessment"`
	Rating     domain.CourseRating  `json:"rating"`
}

func newResearchCmd(g *globals) *cobra.Command {
	var (
		fresh       bool
		instruction string
		verbose     bool
	)
	cmd := &cobra.Command{
		Use:   "research COURSE_ID",
		Short: "Assess one course through the cache and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			courseID, err := domain.NormalizeCourseID(args[0])
			if err != nil {
				return err
			}

			a, err := wire(cmd.Context(), g.cfg, g.logger, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := cmd.Context()
			if verbose {
				ctx = research.WithObserver(ctx, func(ev research.Event) {
					line, _ := json.Marshal(ev)
					fmt.Fprintln(cmd.ErrOrStderr(), string(line))
				})
			}

			res, err := a.orch.Assess(ctx, orchestrator.Request{
				CourseID:    courseID,
				Fresh:       fresh,
				Requester:   "cli",
				Instruction: instruction,
			})
			if err != nil {
				return fmt.Errorf("research %s: %w", courseID, err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(researchOutput{
				CourseID:   res.Entry.CourseID,
				Status:     res.Status,
				SessionID:  res.SessionID,
				StoredAt:   res.Entry.StoredAt,
				Path:       res.Path,
				Assessment: res.Entry.Assessment,
				Rating:     res.Entry.Assessment.Rating(),
			})
		},
	}
	cmd.Flags().BoolVar(&fresh, "fresh", false, "skip the cache and research again")
	cmd.Flags().StringVar(&instruction, "instruction", "", "override the research instruction")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print progress events to stderr")
	return cmd
}
