package backend

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/spigell/aspiro/internal/ai"
	"github.com/spigell/aspiro/internal/coach"
	"github.com/spigell/aspiro/internal/document"
	"github.com/spigell/aspiro/internal/logger"
	"github.com/spigell/aspiro/internal/utils"
)

const (
	msgUnavailable   = "AI service is not configured or unavailable."
	msgNoStorage     = "File storage is not configured."
	msgGeneration    = "AI content generation failed."
	msgUnreadable    = "Could not extract text from file. It might be corrupted or an unsupported format variant."
	msgResumeMissing = "Resume could not be retrieved."
)

type validatable interface {
	Validate() error
}

// decodeRequest reads and validates a JSON body, answering 400 on failure.
func decodeRequest[T validatable](w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing JSON request body.")
		return req, false
	}

	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, false
	}

	return req, true
}

func (s *Server) available(w http.ResponseWriter) bool {
	if s.generator == nil {
		writeError(w, http.StatusServiceUnavailable, msgUnavailable)
		return false
	}
	return true
}

func (s *Server) handleAnalyzeResume(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[coach.AnalyzeResumeRequest](w, r)
	if !ok || !s.available(w) {
		return
	}

	resume, ok := s.resumeText(w, r, req.ResumePath)
	if !ok {
		return
	}

	s.stream(w, r, "resume_analysis", ai.Request{
		System: systemPrompt,
		Prompt: render(analyzePrompt, map[string]string{
			"TARGET_ROLE": req.TargetRole,
			"RESUME_TEXT": resume,
		}),
	})
}

func (s *Server) handleSuggestRoles(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[coach.SuggestRolesRequest](w, r)
	if !ok || !s.available(w) {
		return
	}

	resume, ok := s.resumeText(w, r, req.ResumePath)
	if !ok {
		return
	}

	s.stream(w, r, "role_suggestions", ai.Request{
		System: systemPrompt,
		Prompt: render(suggestPrompt, map[string]string{"RESUME_TEXT": resume}),
	})
}

func (s *Server) handleExplorePath(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[coach.ExplorePathRequest](w, r)
	if !ok || !s.available(w) {
		return
	}

	s.stream(w, r, "career_exploration", ai.Request{
		System: systemPrompt,
		Prompt: render(explorePrompt, map[string]string{"CAREER_FIELD": req.CareerField}),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[coach.ChatRequest](w, r)
	if !ok || !s.available(w) {
		return
	}

	history := make([]ai.Turn, 0, len(req.History))
	for _, turn := range req.History {
		role := ai.RoleUser
		if turn.Role == coach.RoleAssistant {
			role = ai.RoleModel
		}
		history = append(history, ai.Turn{Role: role, Text: turn.Content})
	}

	s.stream(w, r, "chat", ai.Request{
		System:  chatPrompt,
		History: history,
		Prompt:  req.Message,
	})
}

// resumeText downloads a stored resume and extracts its text.
func (s *Server) resumeText(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	if s.resumes == nil {
		writeError(w, http.StatusServiceUnavailable, msgNoStorage)
		return "", false
	}

	data, err := s.resumes.Download(r.Context(), key)
	if err != nil {
		s.logger.Warn("resume download failed", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusNotFound, msgResumeMissing)
		return "", false
	}

	text, err := document.Extract(key, data)
	if err != nil {
		s.logger.Warn("resume extraction failed", zap.String("key", key), zap.Error(err))
		if errors.Is(err, document.ErrTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File exceeds maximum size of 10MB")
			return "", false
		}
		writeError(w, http.StatusBadRequest, msgUnreadable)
		return "", false
	}

	return text, true
}

// stream relays generator output as content frames. Failures before the
// first fragment are answered with a JSON error; later ones end the stream
// without the done sentinel.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, feature string, req ai.Request) {
	log := logger.WithFields(s.logger,
		logger.StringFields(
			logger.StringField{Key: logger.FieldFeature, Value: feature},
			logger.StringField{Key: "subject", Value: subject(r)},
		)...,
	)
	log.Debug("generation started", zap.String("prompt_preview", utils.TruncateForLog(req.Prompt, 200)))

	var (
		events *eventWriter
		size   int
		err    error
	)

	for text, genErr := range s.generator.Stream(r.Context(), req) {
		if genErr != nil {
			if r.Context().Err() != nil {
				log.Debug("client went away")
				return
			}

			log.Error("generation failed", zap.Error(genErr))
			if events == nil {
				writeError(w, http.StatusBadGateway, msgGeneration)
				return
			}
			events.writeError(msgGeneration)
			return
		}

		if events == nil {
			if events, err = newEventWriter(w); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}

		if err := events.writeContent(text); err != nil {
			log.Debug("client went away", zap.Error(err))
			return
		}
		size += len(text)
	}

	if events == nil {
		if events, err = newEventWriter(w); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	if err := events.writeDone(); err != nil {
		log.Debug("client went away", zap.Error(err))
		return
	}

	log.Info("generation finished", zap.Int("bytes", size))
}
