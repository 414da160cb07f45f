package portal

import (
	"context"
	"fmt"
	"log"

	"proposaldesk/api/internal/lifecycle"
	"proposaldesk/api/internal/session"
)

// Outcome is what a command left for the caller to apply locally. Err holds
// the request failure, if any; Effects are valid either way.
type Outcome struct {
	Effects  []lifecycle.Effect
	Comments []Comment
	Err      error
}

// Desk runs lifecycle commands for one signed-in user against the API.
type Desk struct {
	client *Client
	sess   session.Session
}

func NewDesk(client *Client, sess session.Session) *Desk {
	return &Desk{client: client, sess: sess}
}

// Proceed saves the selected plans and then submits the proposal for
// review. The status request only runs once the save succeeded.
func (d *Desk) Proceed(ctx context.Context, view lifecycle.View) Outcome {
	effects := lifecycle.Proceed(d.sess, view)
	if isAlert(effects) {
		return Outcome{Effects: effects}
	}

	var (
		result StatusResult
		err    error
	)
	for _, effect := range effects {
		switch effect.Type {
		case lifecycle.EffectSavePlans:
			if saveErr := d.client.UpdateChosenPlans(ctx, view.UniqueID, effect.Plans); saveErr != nil {
				return Outcome{Effects: lifecycle.PlansSaved(saveErr), Err: fmt.Errorf("save plans: %w", saveErr)}
			}
		case lifecycle.EffectUpdateStatus:
			result, err = d.client.UpdateApprovalStatus(ctx, view.UniqueID, effect.To, effect.Comment)
			if err != nil {
				log.Printf("portal: resubmit %s: %v", view.UniqueID, err)
				err = fmt.Errorf("update status: %w", err)
			}
		}
	}
	return d.finish(ctx, view.UniqueID, lifecycle.Resubmitted(result.SupervisorComments, err), err)
}

// Decide writes an approve or reject decision with its comment.
func (d *Desk) Decide(ctx context.Context, view lifecycle.View, approve bool, comment string) Outcome {
	effects := lifecycle.Decide(d.sess, view, approve, comment)
	if isAlert(effects) {
		return Outcome{Effects: effects}
	}

	effect := effects[0]
	if _, err := d.client.UpdateApprovalStatus(ctx, view.UniqueID, effect.To, effect.Comment); err != nil {
		return Outcome{Effects: lifecycle.Decided(effect.To, err), Err: fmt.Errorf("update status: %w", err)}
	}
	return d.finish(ctx, view.UniqueID, lifecycle.Decided(effect.To, nil), nil)
}

func (d *Desk) finish(ctx context.Context, uniqueID string, effects []lifecycle.Effect, err error) Outcome {
	outcome := Outcome{Effects: effects, Err: err}
	for _, effect := range effects {
		if effect.Type != lifecycle.EffectReloadComments {
			continue
		}
		comments, listErr := d.client.ListComments(ctx, uniqueID)
		if listErr != nil {
			log.Printf("portal: reload comments %s: %v", uniqueID, listErr)
			break
		}
		outcome.Comments = comments
		break
	}
	return outcome
}

func isAlert(effects []lifecycle.Effect) bool {
	return len(effects) == 1 && effects[0].Type == lifecycle.EffectAlert
}
