// Package coach defines the coaching features driven by the orchestrator:
// resume analysis, role suggestions, career exploration and chat.
package coach

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spigell/aspiro/internal/document"
	"github.com/spigell/aspiro/internal/orchestrator"
)

// FileReferencer turns a local file into a stable reference the backend can
// read. storage.Store implements it.
type FileReferencer interface {
	Ensure(ctx context.Context, localPath string) (string, error)
}

// ResumeAnalysisInput asks for feedback on a resume for one target role.
type ResumeAnalysisInput struct {
	TargetRole string `validate:"required,max=150" label:"Target role"`
	ResumeFile string `validate:"required" label:"Resume file"`
}

// RoleSuggestionsInput asks for roles matching a resume.
type RoleSuggestionsInput struct {
	ResumeFile string `validate:"required" label:"Resume file"`
}

// CareerExplorationInput asks for a report on a career field.
type CareerExplorationInput struct {
	CareerField string `validate:"required,max=150" label:"Career field"`
}

// ChatInput is one chat message with the conversation so far.
type ChatInput struct {
	Message string
	History []ChatTurn
}

var (
	_ orchestrator.Feature[ResumeAnalysisInput]    = ResumeAnalysis{}
	_ orchestrator.Feature[RoleSuggestionsInput]   = RoleSuggestions{}
	_ orchestrator.Feature[CareerExplorationInput] = CareerExploration{}
	_ orchestrator.Feature[ChatInput]              = Chat{}
)

// ResumeAnalysis reviews a resume against a target role.
type ResumeAnalysis struct {
	Files FileReferencer
}

func (ResumeAnalysis) Name() string     { return "resume_analysis" }
func (ResumeAnalysis) Endpoint() string { return EndpointAnalyzeResume }
func (ResumeAnalysis) Structured() bool { return true }

func (f ResumeAnalysis) Prepare(ctx context.Context, in ResumeAnalysisInput) (any, error) {
	in.TargetRole = strings.TrimSpace(in.TargetRole)
	in.ResumeFile = strings.TrimSpace(in.ResumeFile)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	key, err := reference(ctx, f.Files, in.ResumeFile)
	if err != nil {
		return nil, err
	}

	return AnalyzeResumeRequest{ResumePath: key, TargetRole: in.TargetRole}, nil
}

// RoleSuggestions proposes roles that fit a resume.
type RoleSuggestions struct {
	Files FileReferencer
}

func (RoleSuggestions) Name() string     { return "role_suggestions" }
func (RoleSuggestions) Endpoint() string { return EndpointSuggestRoles }
func (RoleSuggestions) Structured() bool { return true }

func (f RoleSuggestions) Prepare(ctx context.Context, in RoleSuggestionsInput) (any, error) {
	in.ResumeFile = strings.TrimSpace(in.ResumeFile)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	key, err := reference(ctx, f.Files, in.ResumeFile)
	if err != nil {
		return nil, err
	}

	return SuggestRolesRequest{ResumePath: key}, nil
}

// CareerExploration reports on a career field.
type CareerExploration struct{}

func (CareerExploration) Name() string     { return "career_exploration" }
func (CareerExploration) Endpoint() string { return EndpointExplorePath }
func (CareerExploration) Structured() bool { return true }

func (CareerExploration) Prepare(_ context.Context, in CareerExplorationInput) (any, error) {
	in.CareerField = strings.TrimSpace(in.CareerField)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	return ExplorePathRequest{CareerField: in.CareerField}, nil
}

// Chat is a free-text conversation with the coach.
type Chat struct{}

func (Chat) Name() string     { return "chat" }
func (Chat) Endpoint() string { return EndpointChat }
func (Chat) Structured() bool { return false }

func (Chat) Prepare(_ context.Context, in ChatInput) (any, error) {
	req := ChatRequest{
		Message: strings.TrimSpace(in.Message),
		History: in.History,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return req, nil
}

// reference checks that a resume is readable and uploads it.
func reference(ctx context.Context, files FileReferencer, path string) (string, error) {
	if _, err := document.ExtractFile(path); err != nil {
		return "", resumeError(path, err)
	}

	if files == nil {
		return "", errors.New("file storage is not configured")
	}

	key, err := files.Ensure(ctx, path)
	if err != nil {
		return "", fmt.Errorf("upload resume: %w", err)
	}

	return key, nil
}

func resumeError(path string, err error) error {
	msg := "Could not extract text from file. It might be corrupted or an unsupported format variant."
	switch {
	case errors.Is(err, document.ErrUnsupportedType):
		msg = "Invalid file type. Allowed types: pdf, docx, txt"
	case errors.Is(err, document.ErrTooLarge):
		msg = "File exceeds maximum size of 10MB"
	case errors.Is(err, fs.ErrNotExist):
		msg = fmt.Sprintf("Resume file %s does not exist", path)
	}

	return &ValidationError{Field: "Resume file", Message: msg}
}
