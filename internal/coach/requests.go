package coach

// Endpoints of the coaching backend.
const (
	EndpointAnalyzeResume = "/api/analyze-resume"
	EndpointSuggestRoles  = "/api/suggest-roles"
	EndpointExplorePath   = "/api/explore-path"
	EndpointChat          = "/api/chat"
)

// Input limits, in characters.
const (
	MaxTargetRoleLength  = 150
	MaxCareerFieldLength = 150
	MaxMessageLength     = 4000
	MaxHistoryTurns      = 20
)

// AnalyzeResumeRequest is the body of EndpointAnalyzeResume.
type AnalyzeResumeRequest struct {
	ResumePath string `json:"resumePath" validate:"required" label:"Resume path"`
	TargetRole string `json:"targetRole" validate:"required,max=150" label:"Target role"`
}

func (r AnalyzeResumeRequest) Validate() error { return validateStruct(r) }

// SuggestRolesRequest is the body of EndpointSuggestRoles.
type SuggestRolesRequest struct {
	ResumePath string `json:"resumePath" validate:"required" label:"Resume path"`
}

func (r SuggestRolesRequest) Validate() error { return validateStruct(r) }

// ExplorePathRequest is the body of EndpointExplorePath.
type ExplorePathRequest struct {
	CareerField string `json:"careerField" validate:"required,max=150" label:"Career field"`
}

func (r ExplorePathRequest) Validate() error { return validateStruct(r) }

// Roles of chat turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatTurn is one earlier message of a conversation.
type ChatTurn struct {
	Role    string `json:"role" validate:"oneof=user assistant" label:"Role"`
	Content string `json:"content" validate:"required" label:"Content"`
}

// ChatRequest is the body of EndpointChat.
type ChatRequest struct {
	Message string     `json:"message" validate:"required,max=4000" label:"Message"`
	History []ChatTurn `json:"history,omitempty" validate:"max=20,dive" label:"History"`
}

func (r ChatRequest) Validate() error { return validateStruct(r) }
