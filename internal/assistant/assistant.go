package assistant

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/seetheplay/internal/engine"
	"github.com/DoyleJ11/seetheplay/internal/session"
	"github.com/DoyleJ11/seetheplay/pkg/types"
)

var ErrEmptyQuestion = errors.New("question is empty")
var ErrNoPlayerContext = errors.New("no player to ask about")
var ErrNotSent = errors.New("question not sent")

type Sender interface {
	Send(ctx context.Context, v any) bool
}

// Session is the part of a session the bridge reads from and records into.
type Session interface {
	View(ctx context.Context) (session.View, error)
	Post(msg session.Msg)
}

type Bridge struct {
	sender  Sender
	session Session
	log     *zap.SugaredLogger
}

func NewBridge(sender Sender, sess Session, logger *zap.Logger) *Bridge {
	return &Bridge{sender: sender, session: sess, log: logger.Sugar().Named("assistant")}
}

// Ask sends question about the selected player, or the first forecast's player when
// nothing is selected, and records it in the conversation. The answer arrives later
// as a cedar_answer event.
func (b *Bridge) Ask(ctx context.Context, question string) (engine.PlayerContext, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return engine.PlayerContext{}, ErrEmptyQuestion
	}

	v, err := b.session.View(ctx)
	if err != nil {
		return engine.PlayerContext{}, err
	}
	pc, ok := engine.ResolvePlayerContext(v.State)
	if !ok {
		return engine.PlayerContext{}, ErrNoPlayerContext
	}

	// Recorded ahead of the send so a fast answer always lands after its question.
	id := uuid.NewString()
	b.session.Post(session.AskQuestion{ID: id, Question: q, PlayerID: pc.PlayerID})
	if !b.sender.Send(ctx, types.NewCedarQuestion(q, pc.PlayerID)) {
		b.session.Post(session.WithdrawQuestion{ID: id})
		return pc, ErrNotSent
	}
	b.log.Debugw("question sent", "player_id", pc.PlayerID)
	return pc, nil
}
