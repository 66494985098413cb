// Package workflow holds the music submission transition table and the
// checks every submission action runs before it mutates anything.
package workflow

import (
	"fmt"
	"strings"

	"studio-backend/internal/apperr"
	"studio-backend/internal/model"
)

type Action string

const (
	ActionCreate                   Action = "create"
	ActionUpdate                   Action = "update"
	ActionDelete                   Action = "delete"
	ActionTake                     Action = "take-request"
	ActionModify                   Action = "modify-request"
	ActionApprove                  Action = "approve-request"
	ActionReject                   Action = "reject-request"
	ActionStartArranging           Action = "start-arranging"
	ActionSubmitArrangement        Action = "submit-arrangement"
	ActionApproveArrangement       Action = "approve-arrangement"
	ActionRejectArrangement        Action = "reject-arrangement"
	ActionResubmitArrangement      Action = "resubmit-arrangement"
	ActionProcessArrangement       Action = "process-arrangement"
	ActionQCMusic                  Action = "qc-music"
	ActionAcceptSoundEngineering   Action = "accept-sound-engineering-work"
	ActionCompleteSoundEngineering Action = "complete-sound-engineering"
	ActionRejectBack               Action = "reject-arrangement-back-to-arranger"
	ActionApproveQuality           Action = "approve-quality"
	ActionAcceptCreativeWork       Action = "accept-creative-work"
	ActionSubmitCreativeWork       Action = "submit-creative-work"
	ActionFinalApprove             Action = "final-approve"
	ActionTransition               Action = "transition"
)

// Rule is one row of the transition table.
type Rule struct {
	Action Action
	Role   model.Role
	// From is the precondition set. Empty means no precondition.
	From []model.SubmissionState
	// To lists the permitted targets. Empty leaves the state unchanged.
	To []model.SubmissionState
	// Owner restricts the action to the arranger who created the submission.
	Owner bool
	// Payload marks actions whose body is mandatory (files, scores, scripts).
	// They are never reachable through a generic transition.
	Payload bool
	// Notes requires feedback text.
	Notes bool
}

type states = []model.SubmissionState

var nonTerminal = states{
	model.StateSubmitted,
	model.StateProducerReview,
	model.StateArranging,
	model.StateArrangementReview,
	model.StateProducerProcessing,
	model.StateQualityControl,
	model.StateSoundEngineering,
	model.StateCreativeWork,
	model.StateFinalApproval,
}

var table = []Rule{
	{Action: ActionCreate, Role: model.RoleMusicArranger, To: states{model.StateSubmitted}, Payload: true},
	{Action: ActionUpdate, Role: model.RoleMusicArranger, From: states{model.StateSubmitted, model.StateRejected}, Owner: true, Payload: true},
	{Action: ActionDelete, Role: model.RoleMusicArranger, From: states{model.StateSubmitted}, Owner: true},
	{Action: ActionTake, Role: model.RoleProducer, From: states{model.StateSubmitted}, To: states{model.StateProducerReview}},
	{Action: ActionModify, Role: model.RoleProducer, From: states{model.StateSubmitted, model.StateProducerReview}, To: states{model.StateArranging, model.StateProducerReview}, Payload: true},
	{Action: ActionApprove, Role: model.RoleProducer, From: states{model.StateSubmitted, model.StateProducerReview}, To: states{model.StateArranging}},
	{Action: ActionReject, Role: model.RoleProducer, From: nonTerminal, To: states{model.StateRejected}, Notes: true},
	{Action: ActionStartArranging, Role: model.RoleMusicArranger, From: states{model.StateSubmitted, model.StateProducerReview, model.StateArranging, model.StateRejected}, To: states{model.StateArranging}, Owner: true},
	{Action: ActionSubmitArrangement, Role: model.RoleMusicArranger, From: states{model.StateArranging}, To: states{model.StateArrangementReview}, Owner: true, Payload: true},
	{Action: ActionApproveArrangement, Role: model.RoleProducer, From: states{model.StateArrangementReview}, To: states{model.StateProducerProcessing}},
	{Action: ActionRejectArrangement, Role: model.RoleProducer, From: states{model.StateArrangementReview}, To: states{model.StateRejected}, Notes: true},
	{Action: ActionResubmitArrangement, Role: model.RoleMusicArranger, From: states{model.StateRejected}, To: states{model.StateSubmitted}, Owner: true, Payload: true},
	{Action: ActionProcessArrangement, Role: model.RoleProducer, From: states{model.StateArrangementReview}, To: states{model.StateQualityControl}},
	{Action: ActionQCMusic, Role: model.RoleProducer, From: states{model.StateProducerProcessing}, To: states{model.StateCreativeWork, model.StateSoundEngineering}, Payload: true},
	{Action: ActionAcceptSoundEngineering, Role: model.RoleSoundEngineer, From: states{model.StateSoundEngineering}},
	{Action: ActionCompleteSoundEngineering, Role: model.RoleSoundEngineer, From: states{model.StateSoundEngineering}, To: states{model.StateQualityControl}, Payload: true},
	{Action: ActionRejectBack, Role: model.RoleSoundEngineer, From: states{model.StateSoundEngineering}, To: states{model.StateArranging}, Notes: true},
	{Action: ActionApproveQuality, Role: model.RoleProducer, From: states{model.StateQualityControl}, To: states{model.StateCreativeWork, model.StateArranging}},
	{Action: ActionAcceptCreativeWork, Role: model.RoleCreative, From: states{model.StateCreativeWork}},
	{Action: ActionSubmitCreativeWork, Role: model.RoleCreative, From: states{model.StateCreativeWork}, To: states{model.StateFinalApproval}, Payload: true},
	{Action: ActionFinalApprove, Role: model.RoleProducer, From: states{model.StateFinalApproval}, To: states{model.StateCompleted}},
}

var byAction = func() map[Action]Rule {
	m := make(map[Action]Rule, len(table))
	for _, r := range table {
		m[r.Action] = r
	}
	return m
}()

// Rules returns a copy of the transition table.
func Rules() []Rule {
	out := make([]Rule, len(table))
	copy(out, table)
	return out
}

func RuleFor(a Action) (Rule, bool) {
	r, ok := byAction[a]
	return r, ok
}

func contains(list states, s model.SubmissionState) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Accepts reports whether target is a permitted outcome of the rule.
func (r Rule) Accepts(target model.SubmissionState) bool {
	return contains(r.To, target)
}

func (r Rule) permits(current model.SubmissionState) bool {
	return len(r.From) == 0 || contains(r.From, current)
}

func mustRule(action Action) (Rule, error) {
	r, ok := byAction[action]
	if !ok {
		return Rule{}, apperr.Field("action", fmt.Sprintf("unknown action %q", action))
	}
	return r, nil
}

// CheckRole is step one of every action: the caller's role must match.
func CheckRole(role model.Role, action Action) (Rule, error) {
	r, err := mustRule(action)
	if err != nil {
		return Rule{}, err
	}
	if role != r.Role {
		return Rule{}, apperr.Forbidden(fmt.Sprintf("only %s can %s", strings.ReplaceAll(string(r.Role), "_", " "), action))
	}
	return r, nil
}

// CheckActor verifies ownership for arranger actions and assignment for
// engineer and creative actions.
func CheckActor(caller model.Caller, r Rule, s *model.Submission) error {
	if r.Owner && !s.IsOwnedBy(caller.ID) {
		return apperr.Forbidden("only the arranger who created this submission can do this")
	}
	switch r.Role {
	case model.RoleSoundEngineer:
		if s.AssignedSoundEngineerID != nil && *s.AssignedSoundEngineerID != caller.ID {
			return apperr.Forbidden("submission is assigned to another sound engineer")
		}
	case model.RoleCreative:
		if s.AssignedCreativeID != nil && *s.AssignedCreativeID != caller.ID {
			return apperr.Forbidden("submission is assigned to another creative")
		}
	}
	return nil
}

// CheckState verifies the precondition state of the rule.
func CheckState(r Rule, current model.SubmissionState) error {
	if !r.permits(current) {
		return apperr.InvalidState(
			fmt.Sprintf("cannot %s while submission is %s", r.Action, current),
			string(current),
		)
	}
	return nil
}

// Authorize runs role, actor and state checks in order.
func Authorize(caller model.Caller, action Action, s *model.Submission) (Rule, error) {
	r, err := CheckRole(caller.Role, action)
	if err != nil {
		return Rule{}, err
	}
	if err := CheckActor(caller, r, s); err != nil {
		return Rule{}, err
	}
	if err := CheckState(r, s.CurrentState); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// AllowedActions lists what the caller may invoke on s right now.
func AllowedActions(caller model.Caller, s *model.Submission) []Action {
	out := []Action{}
	for _, r := range table {
		if r.Action == ActionCreate {
			continue
		}
		if _, err := Authorize(caller, r.Action, s); err == nil {
			out = append(out, r.Action)
		}
	}
	return out
}

// Edge is a generic transition step.
type Edge struct {
	From model.SubmissionState `json:"from"`
	To   model.SubmissionState `json:"to"`
}

func edgesOf(r Rule) []Edge {
	if r.Payload || len(r.To) == 0 {
		return nil
	}
	var out []Edge
	for _, f := range r.From {
		for _, t := range r.To {
			if f != t {
				out = append(out, Edge{From: f, To: t})
			}
		}
	}
	return out
}

// Edges returns the generic transition edges available to a role.
func Edges(role model.Role) []Edge {
	var out []Edge
	for _, r := range table {
		if r.Role == role {
			out = append(out, edgesOf(r)...)
		}
	}
	return out
}

// ResolveTransition maps a generic (from, to) request onto the table rule
// that owns that edge.
func ResolveTransition(role model.Role, from, to model.SubmissionState) (Rule, error) {
	if !to.Valid() {
		return Rule{}, apperr.Field("new_state", fmt.Sprintf("unknown state %q", to))
	}
	if len(Edges(role)) == 0 {
		return Rule{}, apperr.Forbidden(fmt.Sprintf("%s cannot change submission state", role))
	}
	var otherRole bool
	for _, r := range table {
		for _, e := range edgesOf(r) {
			if e.From != from || e.To != to {
				continue
			}
			if r.Role == role {
				return r, nil
			}
			otherRole = true
		}
	}
	if otherRole {
		return Rule{}, apperr.Forbidden(fmt.Sprintf("%s cannot move a submission from %s to %s", role, from, to))
	}
	return Rule{}, apperr.InvalidState(fmt.Sprintf("no transition from %s to %s", from, to), string(from))
}

// ActorRule is the rule used to check ownership and assignment before a
// generic transition is resolved. Ownership is required when any of the
// role's transition edges requires it.
func ActorRule(role model.Role) Rule {
	out := Rule{Role: role}
	for _, r := range table {
		if r.Role == role && r.Owner && len(edgesOf(r)) > 0 {
			out.Owner = true
		}
	}
	return out
}
