package dashboard

import (
	"slices"
	"time"

	"auditx/internal"
	"auditx/internal/pipeline"
)

type Persona string

const (
	PersonaAuditor  Persona = "auditor"
	PersonaEngineer Persona = "engineer"
	PersonaPartner  Persona = "partner"
)

func (p Persona) Valid() bool {
	switch p {
	case PersonaAuditor, PersonaEngineer, PersonaPartner:
		return true
	default:
		return false
	}
}

const FilterAll = "all"

type AgentResponse struct {
	Prompt   string               `json:"prompt"`
	AuditID  string               `json:"auditId,omitempty"`
	Response internal.RAGResponse `json:"response"`
}

// State backs the three role views. Reduce returns a fresh State; slices are
// never appended to in place, so older snapshots stay valid.
type State struct {
	Persona         Persona                      `json:"persona"`
	SelectedAuditID string                       `json:"selectedAuditId,omitempty"`
	Filter          string                       `json:"filter"`
	Audits          []internal.NormalizedAudit   `json:"audits"`
	Loading         bool                         `json:"loading"`
	Err             string                       `json:"error,omitempty"`
	PromptHistory   []string                     `json:"promptHistory"`
	AgentResponses  []AgentResponse              `json:"agentResponses"`
	Workflows       []WorkflowTemplate           `json:"workflowTemplates"`
	Submissions     []internal.PartnerSubmission `json:"submissions"`
}

func NewState(workflows []WorkflowTemplate) State {
	return State{
		Persona:        PersonaAuditor,
		Filter:         FilterAll,
		Audits:         []internal.NormalizedAudit{},
		Loading:        true,
		PromptHistory:  []string{},
		AgentResponses: []AgentResponse{},
		Workflows:      slices.Clone(workflows),
		Submissions:    []internal.PartnerSubmission{},
	}
}

// Selected returns the selected audit if it is still loaded.
func (s State) Selected() (internal.NormalizedAudit, bool) {
	if s.SelectedAuditID == "" {
		return internal.NormalizedAudit{}, false
	}
	a, ok := BuildIndex(s.Audits)[s.SelectedAuditID]
	return a, ok
}

// Visible applies the current filter.
func (s State) Visible() []internal.NormalizedAudit {
	return Filter(s.Audits, s.Filter)
}

type Action interface {
	isAction()
}

type (
	SetPersona        struct{ Persona Persona }
	SetFilter         struct{ Status string }
	SelectAudit       struct{ AuditID string }
	AddPrompt         struct{ Prompt string }
	AddAgentResponse  struct{ Response AgentResponse }
	CreateWorkflow    struct{ Template WorkflowTemplate }
	ClearPrompts      struct{}
	SetAudits         struct{ Audits []internal.NormalizedAudit }
	SetLoading        struct{ Loading bool }
	SetError          struct{ Err string }
	SubmitEvidence    struct{ Submission internal.PartnerSubmission }
	UpdateAuditStatus struct {
		AuditID  string
		Status   internal.AuditStatus
		Reviewer string
		Note     string
		At       time.Time
	}
)

func (SetPersona) isAction()        {}
func (SetFilter) isAction()         {}
func (SelectAudit) isAction()       {}
func (AddPrompt) isAction()         {}
func (AddAgentResponse) isAction()  {}
func (UpdateAuditStatus) isAction() {}
func (CreateWorkflow) isAction()    {}
func (ClearPrompts) isAction()      {}
func (SetAudits) isAction()         {}
func (SetLoading) isAction()        {}
func (SetError) isAction()          {}
func (SubmitEvidence) isAction()    {}

// Reduce is pure. Unknown actions return the state unchanged.
func Reduce(s State, a Action) State {
	switch act := a.(type) {
	case SetPersona:
		s.Persona = act.Persona
		s.SelectedAuditID = ""
	case SetFilter:
		s.Filter = act.Status
		if s.Filter == "" {
			s.Filter = FilterAll
		}
	case SelectAudit:
		s.SelectedAuditID = act.AuditID
	case AddPrompt:
		s.PromptHistory = slices.Concat(s.PromptHistory, []string{act.Prompt})
	case AddAgentResponse:
		s.AgentResponses = slices.Concat(s.AgentResponses, []AgentResponse{act.Response})
	case UpdateAuditStatus:
		s.Audits = updateStatus(s.Audits, act)
	case CreateWorkflow:
		tpl := act.Template
		if tpl.ID == "" {
			tpl.ID = NextWorkflowID(s.Workflows)
		}
		s.Workflows = slices.Concat(s.Workflows, []WorkflowTemplate{tpl})
	case ClearPrompts:
		s.PromptHistory = []string{}
		s.AgentResponses = []AgentResponse{}
	case SetAudits:
		s.Audits = slices.Clone(act.Audits)
		if s.Audits == nil {
			s.Audits = []internal.NormalizedAudit{}
		}
		s.Loading = false
		s.Err = ""
	case SetLoading:
		s.Loading = act.Loading
	case SetError:
		s.Err = act.Err
		s.Loading = false
	case SubmitEvidence:
		s.Submissions = slices.Concat([]internal.PartnerSubmission{act.Submission}, s.Submissions)
	}
	return s
}

func updateStatus(audits []internal.NormalizedAudit, act UpdateAuditStatus) []internal.NormalizedAudit {
	out := make([]internal.NormalizedAudit, len(audits))
	for i, a := range audits {
		if a.ID == act.AuditID || a.AuditID == act.AuditID {
			a = pipeline.WithStatus(a, act.Status, act.Reviewer, act.Note, act.At)
		}
		out[i] = a
	}
	return out
}
