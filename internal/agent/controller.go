// Package agent implements the dialogue loop of the shopping
// assistant: a bounded Thought/Action/Observation cycle driven by the
// LLM, with the catalog tools dispatched in between.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tiendamx/asistente-catalogo/internal/llm"
	"github.com/tiendamx/asistente-catalogo/internal/ordinal"
	"github.com/tiendamx/asistente-catalogo/internal/session"
	"github.com/tiendamx/asistente-catalogo/internal/tools"
)

// fallbackAnswer closes a turn whose budget ran out before the model
// produced a final answer.
const fallbackAnswer = "Lo siento, no pude completar tu solicitud esta vez. ¿Puedes intentarlo de nuevo?"

const malformedObservation = `Observation: {"error": "Formato inválido. Usa 'Action: ...' seguido de 'Action Input: ...', o bien 'Final Answer: ...'."}`

// Config bounds one dialogue turn.
type Config struct {
	MaxIterations int           // Thought/Action cycles per turn
	TurnTimeout   time.Duration // wall clock per turn
	Temperature   float64
	MaxTokens     int
}

// Controller runs dialogue turns against a session. It does no
// locking; the caller serializes access per session.
type Controller struct {
	client   llm.Client
	registry *tools.Registry
	cfg      Config
	logger   *slog.Logger
}

func New(client llm.Client, registry *tools.Registry, cfg Config, logger *slog.Logger) *Controller {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 60 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 400
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		client:   client,
		registry: registry,
		cfg:      cfg,
		logger:   logger.With("component", "agent"),
	}
}

// HandleTurn processes one user utterance and returns the assistant's
// answer. Both sides of the exchange are appended to the session
// history before returning.
func (c *Controller) HandleTurn(ctx context.Context, sess *session.Session, userText string) (string, error) {
	if len(sess.ChatHistory) == 0 {
		sess.Clear(Greeting)
	}

	// A bare "sí"/"más" right after a details view means "show me the
	// full description": answered from the cache, zero tool calls.
	if ordinal.IsAffirmation(userText) && sess.LastProductDetails != nil && sess.LastProductDetails.Description != "" {
		answer := sess.LastProductDetails.Description
		c.finishTurn(sess, userText, answer)
		c.logger.Debug("turn short-circuited from detail cache", "session", sess.ID)
		return answer, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.TurnTimeout)
	defer cancel()

	system := systemPrompt(c.registry)
	msgs := []llm.Message{{Role: "user", Content: openingMessage(sess, userText)}}

	answer := fallbackAnswer
	for i := 0; i < c.cfg.MaxIterations; i++ {
		resp, err := c.client.Chat(ctx, llm.Request{
			System:      system,
			Messages:    msgs,
			Temperature: c.cfg.Temperature,
			MaxTokens:   c.cfg.MaxTokens,
		})
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.Warn("turn budget exhausted", "session", sess.ID, "iteration", i)
			break
		}
		if err != nil {
			return "", fmt.Errorf("dialogue model: %w", err)
		}

		st, ok := parseStep(resp)
		if !ok {
			c.logger.Debug("malformed step, retrying", "session", sess.ID, "iteration", i)
			msgs = append(msgs,
				llm.Message{Role: "assistant", Content: resp},
				llm.Message{Role: "user", Content: malformedObservation},
			)
			continue
		}

		if st.final != "" {
			answer = st.final
			break
		}

		obs, err := c.dispatch(ctx, st, sess)
		if err != nil {
			return "", err
		}
		msgs = append(msgs,
			llm.Message{Role: "assistant", Content: resp},
			llm.Message{Role: "user", Content: "Observation: " + obs},
		)
	}

	c.finishTurn(sess, userText, answer)
	return answer, nil
}

// dispatch runs one tool call. Unknown tool names come back as an
// error observation so the model can correct itself; tool
// infrastructure failures abort the turn.
func (c *Controller) dispatch(ctx context.Context, st step, sess *session.Session) (string, error) {
	tool := c.registry.Get(st.action)
	if tool == nil {
		c.logger.Debug("unknown action", "action", st.action)
		return fmt.Sprintf(`{"error": "Herramienta desconocida: %s"}`, st.action), nil
	}
	obs, err := tool.Handler(ctx, st.input, sess)
	if err != nil {
		return "", fmt.Errorf("tool %s: %w", st.action, err)
	}
	return obs, nil
}

func (c *Controller) finishTurn(sess *session.Session, userText, answer string) {
	sess.Append("user", userText)
	sess.Append("agent", answer)
}

// ClearSession resets the conversation to the greeting and empties
// both caches. Returns the greeting for the caller to display.
func (c *Controller) ClearSession(sess *session.Session) string {
	sess.Clear(Greeting)
	return Greeting
}
