package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/seetheplay/internal/engine"
	"github.com/DoyleJ11/seetheplay/internal/session"
	"github.com/DoyleJ11/seetheplay/pkg/types"
)

type recordingSender struct {
	connected bool
	sent      []any
}

func (r *recordingSender) Send(_ context.Context, v any) bool {
	if !r.connected {
		return false
	}
	r.sent = append(r.sent, v)
	return true
}

func sessionWithForecasts(t *testing.T, ids ...string) *session.Session {
	t.Helper()
	st := engine.NewInitialState()
	for _, id := range ids {
		st.Forecasts = append(st.Forecasts, types.ForecastRecord{PlayerID: id, PlayerName: "Player " + id})
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return session.New(ctx, session.Options{Initial: &st}, zap.NewNop())
}

func currentView(t *testing.T, s *session.Session) session.View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := s.View(ctx)
	require.NoError(t, err)
	return v
}

func TestAskUsesSelectedPlayer(t *testing.T) {
	sess := sessionWithForecasts(t, "p1", "p2")
	sess.Post(session.SelectPlayer{PlayerID: "p2"})

	sender := &recordingSender{connected: true}
	b := NewBridge(sender, sess, zap.NewNop())

	pc, err := b.Ask(context.Background(), "  Will he top 80 yards?  ")
	require.NoError(t, err)
	assert.Equal(t, "p2", pc.PlayerID)

	require.Len(t, sender.sent, 1)
	q := sender.sent[0].(types.CedarQuestion)
	assert.Equal(t, types.TypeCedarQuestion, q.Type)
	assert.Equal(t, "Will he top 80 yards?", q.Question)
	assert.Equal(t, "p2", q.PlayerID)

	v := currentView(t, sess)
	assert.True(t, v.State.Composing)
	require.Len(t, v.State.Conversation, 1)
	assert.Equal(t, engine.RoleUser, v.State.Conversation[0].Role)
	assert.Equal(t, "Player p2", v.State.Conversation[0].PlayerName)
}

func TestAskFallsBackToFirstForecast(t *testing.T) {
	sess := sessionWithForecasts(t, "p1", "p2")
	b := NewBridge(&recordingSender{connected: true}, sess, zap.NewNop())

	pc, err := b.Ask(context.Background(), "Touchdown?")
	require.NoError(t, err)
	assert.Equal(t, "p1", pc.PlayerID)
}

func TestAskErrors(t *testing.T) {
	t.Run("empty question", func(t *testing.T) {
		b := NewBridge(&recordingSender{connected: true}, sessionWithForecasts(t, "p1"), zap.NewNop())
		_, err := b.Ask(context.Background(), "   ")
		require.ErrorIs(t, err, ErrEmptyQuestion)
	})

	t.Run("nobody to ask about", func(t *testing.T) {
		sender := &recordingSender{connected: true}
		b := NewBridge(sender, sessionWithForecasts(t), zap.NewNop())
		_, err := b.Ask(context.Background(), "Anyone?")
		require.ErrorIs(t, err, ErrNoPlayerContext)
		assert.Empty(t, sender.sent)
	})

	t.Run("stream down", func(t *testing.T) {
		sess := sessionWithForecasts(t, "p1")
		b := NewBridge(&recordingSender{}, sess, zap.NewNop())
		_, err := b.Ask(context.Background(), "Anyone?")
		require.ErrorIs(t, err, ErrNotSent)
		v := currentView(t, sess)
		assert.False(t, v.State.Composing)
		assert.Empty(t, v.State.Conversation)
	})
}

// answeringSender replies on the inbound path before Send returns, like a server
// that rejects the question immediately.
type answeringSender struct {
	sess *session.Session
}

func (a answeringSender) Send(_ context.Context, v any) bool {
	q := v.(types.CedarQuestion)
	a.sess.Post(session.FromStream{Msg: types.CedarAnswer{Question: q.Question, Answer: "fast", PlayerID: q.PlayerID}})
	return true
}

func TestAskImmediateAnswerFollowsQuestion(t *testing.T) {
	sess := sessionWithForecasts(t, "p1")
	b := NewBridge(answeringSender{sess: sess}, sess, zap.NewNop())

	_, err := b.Ask(context.Background(), "how many yards?")
	require.NoError(t, err)

	v := currentView(t, sess)
	require.Len(t, v.State.Conversation, 2)
	assert.Equal(t, engine.RoleUser, v.State.Conversation[0].Role)
	assert.Equal(t, "how many yards?", v.State.Conversation[0].Text)
	assert.Equal(t, engine.RoleAssistant, v.State.Conversation[1].Role)
	assert.Equal(t, "fast", v.State.Conversation[1].Text)
	assert.False(t, v.State.Composing)
}
