// Package tools exposes running and finished sessions for inspection
// through a small named-tool registry, shared by the HTTP surface and
// the CLI.
package tools

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"council-trader/internal/council"
	apperrors "council-trader/internal/errors"
)

// ArgSchema describes a tool's arguments for discovery clients.
type ArgSchema struct {
	Required   []string          `json:"required,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Tool is one invokable inspection operation.
type Tool struct {
	Name        string                                                        `json:"name"`
	Description string                                                        `json:"description"`
	Args        ArgSchema                                                     `json:"args"`
	Run         func(ctx context.Context, args map[string]any) (any, error)   `json:"-"`
}

// Registry holds the fixed tool set over a session registry. Tool
// registration happens once at construction; Invoke is safe for
// concurrent use because the set never changes afterwards.
type Registry struct {
	sessions *council.Registry
	tools    map[string]*Tool
	order    []string
	logger   zerolog.Logger
}

func NewRegistry(sessions *council.Registry, logger zerolog.Logger) *Registry {
	r := &Registry{
		sessions: sessions,
		tools:    make(map[string]*Tool),
		logger:   logger,
	}
	r.register(&Tool{
		Name:        "list_sessions",
		Description: "List all known analysis sessions with their status and stage",
		Run:         r.listSessions,
	})
	r.register(&Tool{
		Name:        "get_session",
		Description: "Get one session's status, stage, warnings, and decision",
		Args: ArgSchema{
			Required:   []string{"session_id"},
			Properties: map[string]string{"session_id": "session identifier"},
		},
		Run: r.getSession,
	})
	r.register(&Tool{
		Name:        "get_transcript",
		Description: "Get the research or risk debate transcript of a session",
		Args: ArgSchema{
			Required: []string{"session_id", "debate"},
			Properties: map[string]string{
				"session_id": "session identifier",
				"debate":     "which transcript: research or risk",
			},
		},
		Run: r.getTranscript,
	})
	r.register(&Tool{
		Name:        "get_ledger",
		Description: "Get a session's per-role token accounting",
		Args: ArgSchema{
			Required:   []string{"session_id"},
			Properties: map[string]string{"session_id": "session identifier"},
		},
		Run: r.getLedger,
	})
	r.register(&Tool{
		Name:        "cancel_session",
		Description: "Request cooperative cancellation of a running session",
		Args: ArgSchema{
			Required:   []string{"session_id"},
			Properties: map[string]string{"session_id": "session identifier"},
		},
		Run: r.cancelSession,
	})
	return r
}

func (r *Registry) register(t *Tool) {
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
}

// List returns the tools in registration order.
func (r *Registry) List() []*Tool {
	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Error codes carried in the envelope so transport layers can map
// outcomes to status codes without parsing error text.
const (
	CodeNotFound   = "not_found"
	CodeBadRequest = "bad_request"
)

// Invoke runs a named tool and folds the outcome into a status envelope
// so transport layers never have to branch on error shape.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) map[string]any {
	tool, ok := r.tools[name]
	if !ok {
		return map[string]any{
			"status": "error",
			"code":   CodeNotFound,
			"error":  fmt.Sprintf("%v: %s", apperrors.ErrToolNotFound, name),
		}
	}
	result, err := tool.Run(ctx, args)
	if err != nil {
		r.logger.Warn().Err(err).Str("tool", name).Msg("tool invocation failed")
		code := CodeBadRequest
		if apperrors.Is(err, apperrors.ErrSessionNotFound) {
			code = CodeNotFound
		}
		return map[string]any{"status": "error", "code": code, "error": err.Error()}
	}
	return map[string]any{"status": "success", "result": result}
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string", key)
	}
	return s, nil
}

func (r *Registry) session(args map[string]any) (*council.Session, error) {
	id, err := stringArg(args, "session_id")
	if err != nil {
		return nil, err
	}
	s, ok := r.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrSessionNotFound, id)
	}
	return s, nil
}

func sessionSummary(s *council.Session) map[string]any {
	return map[string]any{
		"session_id": s.ID,
		"ticker":     s.Subject.Ticker,
		"as_of":      s.Subject.AsOf.Format("2006-01-02"),
		"status":     string(s.Status()),
		"stage":      string(s.Stage()),
		"created_at": s.CreatedAt,
	}
}

func (r *Registry) listSessions(_ context.Context, _ map[string]any) (any, error) {
	sessions := r.sessions.List()
	out := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionSummary(s))
	}
	return out, nil
}

func (r *Registry) getSession(_ context.Context, args map[string]any) (any, error) {
	s, err := r.session(args)
	if err != nil {
		return nil, err
	}
	out := sessionSummary(s)
	out["warnings"] = s.Warnings()
	out["tokens_total"] = s.Ledger.Total()
	if d := s.Decision(); d != nil {
		out["decision"] = d
	}
	if err := s.Err(); err != nil {
		out["error"] = err.Error()
	}
	return out, nil
}

func (r *Registry) getTranscript(_ context.Context, args map[string]any) (any, error) {
	s, err := r.session(args)
	if err != nil {
		return nil, err
	}
	which, err := stringArg(args, "debate")
	if err != nil {
		return nil, err
	}
	switch which {
	case "research":
		if t := s.ResearchDebate(); t != nil {
			return t, nil
		}
	case "risk":
		if t := s.RiskDebate(); t != nil {
			return t, nil
		}
	default:
		return nil, fmt.Errorf("unknown debate %q, want research or risk", which)
	}
	return nil, fmt.Errorf("debate %q has not run for session %s", which, s.ID)
}

func (r *Registry) getLedger(_ context.Context, args map[string]any) (any, error) {
	s, err := r.session(args)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"per_role": s.Ledger.Snapshot(),
		"total":    s.Ledger.Total(),
	}, nil
}

func (r *Registry) cancelSession(_ context.Context, args map[string]any) (any, error) {
	s, err := r.session(args)
	if err != nil {
		return nil, err
	}
	s.Cancel()
	r.logger.Info().Str("session", s.ID).Msg("cancellation requested")
	return map[string]any{"session_id": s.ID, "cancelled": true}, nil
}
