package analyze

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/hydra/internal/llm"
)

const tree = `app/
  page.tsx
  layout.tsx
  components/
    Header.tsx`

func TestRelevantFiles(t *testing.T) {
	tests := []struct {
		name      string
		replies   []string
		want      []string
		wantCalls int
	}{
		{
			name:      "thinking block then array",
			replies:   []string{"<thinking>\npage.tsx is the main page\n</thinking>\n[\"app/page.tsx\"]"},
			want:      []string{"app/page.tsx"},
			wantCalls: 1,
		},
		{
			name:      "array embedded in prose without closing tag",
			replies:   []string{`I think these are relevant: ["app/page.tsx", "app/components/Header.tsx"] and nothing else.`},
			want:      []string{"app/page.tsx", "app/components/Header.tsx"},
			wantCalls: 1,
		},
		{
			name:      "duplicates and blanks removed",
			replies:   []string{`</thinking> ["app/page.tsx", " app/page.tsx ", ""]`},
			want:      []string{"app/page.tsx"},
			wantCalls: 1,
		},
		{
			name:      "retried after prose",
			replies:   []string{"The page file is relevant.", `["app/layout.tsx"]`},
			want:      []string{"app/layout.tsx"},
			wantCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := llm.NewScriptedClient(tt.replies...)
			a := New(client)

			got, err := a.RelevantFiles(context.Background(), tree, "Add a hello world to the main page")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCalls, client.Calls())
		})
	}
}

func TestRelevantFiles_GivesUp(t *testing.T) {
	client := llm.NewScriptedClient("I cannot decide which files matter.")
	a := New(client, WithMaxAttempts(2))

	got, err := a.RelevantFiles(context.Background(), tree, "anything")
	assert.Error(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 2, client.Calls())
}

func TestPlanChanges(t *testing.T) {
	client := llm.NewScriptedClient(
		`{"modify": ["app/page.tsx"]}`,
		"```json\n{\"modify\": [\"app/page.tsx\"], \"create\": [\"app/components/HelloWorld.tsx\"]}\n```",
	)
	a := New(client)

	plan, err := a.PlanChanges(context.Background(), tree, "Add a hello world component")
	require.NoError(t, err)
	assert.Equal(t, []string{"app/page.tsx"}, plan.Modify)
	assert.Equal(t, []string{"app/components/HelloWorld.tsx"}, plan.Create)
	assert.Empty(t, plan.Delete)
	assert.False(t, plan.Empty())
	assert.Equal(t, 2, client.Calls(), "missing create key triggers a retry")
}

func TestReview(t *testing.T) {
	client := llm.NewScriptedClient("❌ NO, the component is never rendered.")
	a := New(client)

	v, err := a.Review(context.Background(), "Render hello world", "app/page.tsx", "export default function Page() {}")
	require.NoError(t, err)
	assert.False(t, v.Approved)
	assert.Equal(t, "app/page.tsx", v.File)
	assert.Equal(t, "the component is never rendered.", v.Problem)
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		approved bool
		problem  string
		wantErr  bool
	}{
		{name: "check mark", raw: "✅ YES, the task is completed.", approved: true},
		{name: "bare yes", raw: "Yes. Looks good.", approved: true},
		{name: "bold yes", raw: "**YES** the code is fine", approved: true},
		{name: "cross mark", raw: "❌ NO, the button is missing.", problem: "the button is missing."},
		{name: "bare no", raw: "No - imports are wrong", problem: "imports are wrong"},
		{name: "check before cross", raw: "✅ done. (❌ would mean failure)", approved: true},
		{name: "think block ignored", raw: "<think>YES maybe</think>❌ NO: wrong file", problem: "wrong file"},
		{name: "no verdict", raw: "The code compiles.", wantErr: true},
		{name: "yesterday is not yes", raw: "Yesterday this worked.", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseVerdict(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.approved, v.Approved)
			assert.Equal(t, tt.problem, v.Problem)
		})
	}
}

func TestShouldMerge(t *testing.T) {
	tests := []struct {
		name     string
		verdicts []Verdict
		want     bool
	}{
		{"none", nil, false},
		{"all approved", []Verdict{{Approved: true}, {Approved: true}}, true},
		{"one rejected", []Verdict{{Approved: true}, {Problem: "bad"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldMerge(tt.verdicts))
		})
	}
}
