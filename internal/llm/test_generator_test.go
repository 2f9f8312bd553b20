package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func fastGenerator(c LLMClient) *Generator {
	return NewGenerator(c, GeneratorOptions{BaseDelay: time.Millisecond})
}

func TestGenerateExtractsFencedJSON(t *testing.T) {
	fake := NewFakeClient(FakeReply{Text: "Her er opskriften:\n```json\n{\"title\": \"Asbest\"}\n```\nGod fornøjelse."})
	out, err := fastGenerator(fake).Generate(context.Background(), "Asbest i skoler", []string{"Arbejdstilsyn"})
	require.NoError(t, err)
	assert.Equal(t, "Asbest", out["title"])
	assert.Equal(t, 1, fake.Calls())
	assert.Equal(t, map[string]any{"goal": "Asbest i skoler", "modules": []string{"Arbejdstilsyn"}}, fake.LastInput())
}

func TestGenerateRetriesMalformedOutput(t *testing.T) {
	fake := NewFakeClient(FakeReply{Text: "Beklager, jeg kan ikke"}, FakeReply{Text: `{"title":"ok"}`})
	out, err := fastGenerator(fake).Generate(context.Background(), "mål", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out["title"])
	assert.Equal(t, 2, fake.Calls())
}

func TestGenerateUnwrapsQuotedAndDoubleEscapedOutput(t *testing.T) {
	fake := NewFakeClient(FakeReply{Text: `"{\"title\":\"Asbest\"}"`})
	out, err := fastGenerator(fake).Generate(context.Background(), "mål", nil)
	require.NoError(t, err)
	assert.Equal(t, "Asbest", out["title"])

	fake = NewFakeClient(FakeReply{Text: `{"title":"Asbest i sk\\u00f8ler","steps":[{"module":"Arbejdstilsyn \\u0026 Status"}]}`})
	out, err = fastGenerator(fake).Generate(context.Background(), "mål", nil)
	require.NoError(t, err)
	assert.Equal(t, "Asbest i skøler", out["title"])
	assert.Equal(t, []any{map[string]any{"module": "Arbejdstilsyn & Status"}}, out["steps"])
	assert.Equal(t, 1, fake.Calls())
}

func TestGenerateGivesUpAfterThreeAttempts(t *testing.T) {
	boom := errors.New("connection reset")
	fake := NewFakeClient(FakeReply{Err: boom})
	_, err := fastGenerator(fake).Generate(context.Background(), "mål", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, DefaultAttempts, fake.Calls())

	fake = NewFakeClient(FakeReply{Text: "[1, 2]"})
	_, err = fastGenerator(fake).Generate(context.Background(), "mål", nil)
	assert.ErrorIs(t, err, ErrInvalidJSON)
	assert.Equal(t, DefaultAttempts, fake.Calls())
}

func TestGenerateStopsOnPermanentError(t *testing.T) {
	fake := NewFakeClient(FakeReply{Err: NewPermanentError(errors.New("API key not valid"))})
	_, err := fastGenerator(fake).Generate(context.Background(), "mål", nil)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, fake.Calls())
}

func TestGenerateHonoursContextDuringBackoff(t *testing.T) {
	fake := NewFakeClient(FakeReply{Err: errors.New("unavailable")})
	g := NewGenerator(fake, GeneratorOptions{BaseDelay: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.Generate(ctx, "mål", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, fake.Calls())
}

func TestGenerateRejectsEmptyGoal(t *testing.T) {
	fake := NewFakeClient(FakeReply{Text: `{}`})
	_, err := fastGenerator(fake).Generate(context.Background(), "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyGoal)
	assert.Zero(t, fake.Calls())
}

func TestWrapOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next LLMClient) LLMClient {
			order = append(order, name)
			return next
		}
	}
	Wrap(NewFakeClient(), mw("outer"), mw("inner"))
	assert.Equal(t, []string{"inner", "outer"}, order)
}
