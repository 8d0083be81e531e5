package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/sandevgo/parley/internal/config"
	"github.com/sandevgo/parley/internal/core"
	"github.com/sandevgo/parley/internal/service/chat"
	"github.com/sandevgo/parley/internal/service/ui"
	"github.com/sandevgo/parley/pkg/log"
)

// ReadLine is the local chat transport: one session per process, answers
// streamed to the terminal as they are generated.
type ReadLine struct {
	cfg          *config.AppConfig
	sessions     *chat.SessionService
	orchestrator *chat.Orchestrator
	rl           *readline.Instance
	sessionID    string
}

func NewReadLine(sessions *chat.SessionService, orchestrator *chat.Orchestrator, cfg *config.AppConfig) (*ReadLine, error) {
	if err := os.MkdirAll(cfg.RuntimePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runtime directory: %w", err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          ">>> ",
		HistoryFile:     filepath.Join(cfg.RuntimePath, "input_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}

	return &ReadLine{
		cfg:          cfg,
		sessions:     sessions,
		orchestrator: orchestrator,
		rl:           rl,
	}, nil
}

func (r *ReadLine) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)

	session, err := r.sessions.Create(ctx, "Local terminal")
	if err != nil {
		return fmt.Errorf("failed to create terminal session: %w", err)
	}
	r.sessionID = session.ID

	logger.Info().Str("session_id", session.ID).Msg("terminal chat started, type 'exit' to quit")

	for {
		// Check context before blocking read
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := r.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if len(line) == 0 {
					return nil // Exit on Ctrl+C
				}
				continue
			} else if err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "exit" {
			return nil
		}
		if line == "" {
			continue
		}

		r.handleTurn(ctx, line)
	}
}

func (r *ReadLine) handleTurn(ctx context.Context, line string) {
	logger := log.FromCtx(ctx)
	out := r.rl.Stdout()

	result, err := r.orchestrator.CreateTurnStream(ctx, r.sessionID, line, func(fragment string) error {
		_, werr := fmt.Fprint(out, fragment)
		return werr
	})
	if err != nil {
		if errors.Is(err, core.ErrGenerationUnavailable) && result.Text != "" {
			// Partial answer already printed and persisted; note the cut.
			fmt.Fprintln(out)
			fmt.Fprintln(out, ui.NoticeStyle.Render("[response interrupted]"))
			return
		}
		logger.Error().Err(err).Msg("turn failed")
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}

	switch result.Type {
	case chat.TurnClarify:
		fmt.Fprintln(out, ui.QuestionStyle.Render("I need a bit more detail:"))
		for _, q := range result.Questions {
			fmt.Fprintln(out, ui.QuestionStyle.Render("  - "+q))
		}
	default:
		fmt.Fprintln(out)
		if result.WasCompacted {
			fmt.Fprintln(out, ui.NoticeStyle.Render("[older history folded into session memory]"))
		}
	}
}

func (r *ReadLine) Shutdown(ctx context.Context) error {
	if r.rl != nil {
		return r.rl.Close()
	}
	return nil
}
