package council

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"council-trader/internal/contextmw"
	apperrors "council-trader/internal/errors"
	"council-trader/internal/llm"
	"council-trader/internal/models"
	"council-trader/internal/stream"
)

// ConvergenceFunc decides, from the moderator's raw response, whether a
// debate has converged and what the synthesis is. The default reads the
// CONVERGED/SYNTHESIS contract; callers may install their own.
type ConvergenceFunc func(moderatorResponse string) Verdict

// DebateConfig describes one adversarial debate: its named sides, the
// moderator role that closes it, and the round budget. A round is one
// statement from every surviving side followed by a moderator check.
type DebateConfig struct {
	Name      string
	Sides     []models.Role
	Moderator models.Role
	MaxRounds int
	Converged ConvergenceFunc
	// Contract overrides the moderator response format; empty means the
	// default CONVERGED/SYNTHESIS contract.
	Contract string
}

// DebateStage runs a bounded adversarial debate to a synthesis. Sides
// speak in fixed order each round; a side whose call fails is dropped
// from the remaining rounds rather than aborting the debate. When the
// round budget runs out without convergence, the moderator is forced
// to synthesize anyway.
type DebateStage struct {
	reasoner llm.Reasoner
	config   DebateConfig
	timeout  time.Duration
	logger   zerolog.Logger
}

func NewDebateStage(reasoner llm.Reasoner, config DebateConfig, timeout time.Duration, logger zerolog.Logger) *DebateStage {
	if config.Converged == nil {
		config.Converged = ParseVerdict
	}
	if config.Contract == "" {
		config.Contract = moderatorResponseContract
	}
	return &DebateStage{
		reasoner: reasoner,
		config:   config,
		timeout:  timeout,
		logger:   logger.With().Str("debate", config.Name).Logger(),
	}
}

// Run returns the transcript even on error so partial rounds are
// visible to callers. A debate where every side has failed degrades to
// ErrDebateNoParticipants with an empty-synthesis transcript; the
// caller decides whether that is fatal for its stage.
func (s *DebateStage) Run(ctx context.Context, subject models.Subject, materials string, emitter stream.Emitter) (*models.DebateTranscript, error) {
	transcript := &models.DebateTranscript{Name: s.config.Name}

	alive := make([]models.Role, len(s.config.Sides))
	copy(alive, s.config.Sides)
	if len(alive) == 0 {
		return transcript, apperrors.Wrapf(apperrors.ErrDebateNoParticipants,
			"debate %s has no sides configured", s.config.Name)
	}

	index := 0
	for round := 1; round <= s.config.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return transcript, err
		}

		var surviving []models.Role
		for _, side := range alive {
			if err := ctx.Err(); err != nil {
				return transcript, err
			}
			content, err := s.invoke(ctx, side,
				debateSystemPrompts[side], sideUserPrompt(subject, materials, transcript, round))
			if err != nil {
				s.logger.Warn().Err(err).Str("role", string(side)).
					Int("round", round).
					Msg("debate side dropped")
				emitter.Progress(nil, fmt.Sprintf("%s dropped from %s debate", side, s.config.Name))
				transcript.Dropped = append(transcript.Dropped, side)
				continue
			}
			index++
			transcript.Rounds = append(transcript.Rounds, models.DebateRound{
				Index:      index,
				Speaker:    side,
				Content:    content,
				TokenCount: contextmw.EstimateTokens(content),
			})
			surviving = append(surviving, side)
		}
		alive = surviving
		if len(alive) == 0 {
			return transcript, apperrors.Wrapf(apperrors.ErrDebateNoParticipants,
				"all sides of debate %s failed by round %d", s.config.Name, round)
		}
		emitter.Progress(nil, fmt.Sprintf("%s debate round %d complete", s.config.Name, round))

		if err := ctx.Err(); err != nil {
			return transcript, err
		}
		response, err := s.invoke(ctx, s.config.Moderator,
			debateSystemPrompts[s.config.Moderator],
			moderatorUserPrompt(subject, materials, transcript, s.config.Contract))
		if err != nil {
			s.logger.Warn().Err(err).Int("round", round).
				Msg("moderator check failed, continuing debate")
			continue
		}
		if verdict := s.config.Converged(response); verdict.Converged {
			transcript.Synthesis = verdict.Synthesis
			s.logger.Info().Int("rounds", round).Msg("debate converged")
			emitter.Progress(nil, fmt.Sprintf("%s debate converged after %d rounds", s.config.Name, round))
			return transcript, nil
		}
	}

	// Round budget exhausted without convergence: force a synthesis.
	if err := ctx.Err(); err != nil {
		return transcript, err
	}
	response, err := s.invoke(ctx, s.config.Moderator,
		debateSystemPrompts[s.config.Moderator],
		forcedSynthesisPrompt(subject, materials, transcript))
	if err != nil {
		return transcript, apperrors.NewStageError(s.config.Name,
			apperrors.Wrap(err, "forced synthesis failed"))
	}
	transcript.Synthesis = ParseSynthesis(response)
	transcript.Forced = true
	s.logger.Info().Int("rounds", s.config.MaxRounds).Msg("debate synthesis forced at round budget")
	emitter.Progress(nil, fmt.Sprintf("%s debate synthesis forced after %d rounds", s.config.Name, s.config.MaxRounds))
	return transcript, nil
}

func (s *DebateStage) invoke(ctx context.Context, role models.Role, systemPrompt, userPrompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	return s.reasoner.Invoke(callCtx, string(role), systemPrompt, userPrompt)
}
