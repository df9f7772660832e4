package swarm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coordinator/swarmd/internal/sampling"
)

func TestRenderDecomposeEscapesTaskText(t *testing.T) {
	req := sampling.DecomposeRequest{
		TaskID:      "t-1",
		Text:        `<script>alert("x")</script>`,
		Priority:    5,
		Constraints: []string{`no <b>bold</b> allowed`},
	}
	out, err := render(decomposeTmpl, req)
	require.NoError(t, err)
	require.NotContains(t, out, "<script>")
	require.Contains(t, out, "&lt;script&gt;")
	require.Contains(t, out, "&lt;b&gt;bold&lt;/b&gt;")
}

func TestRenderDecomposeLargeSpecialistPool(t *testing.T) {
	pool := make([]sampling.SpecialistSnapshot, 1200)
	for i := range pool {
		pool[i] = sampling.SpecialistSnapshot{Kind: "backend", Capabilities: []string{"go"}, Available: 1}
	}
	req := sampling.DecomposeRequest{TaskID: "t-2", Text: "big project", Priority: 1, SpecialistPool: pool}

	out, err := render(decomposeTmpl, req)
	require.NoError(t, err)
	require.Equal(t, 1200, strings.Count(out, "- backend"))
}

func TestRenderContextEscapesDescription(t *testing.T) {
	req := sampling.ContextRequest{
		SubtaskID:    "s-1",
		ParentTaskID: "t-1",
		Specialist:   "backend",
		Description:  `fix the <img src=x onerror=alert(1)> bug`,
	}
	out, err := render(contextTmpl, req)
	require.NoError(t, err)
	require.NotContains(t, out, "<img")
	require.Contains(t, out, "&lt;img")
}

func TestRenderResolveEscapesProposals(t *testing.T) {
	req := sampling.ResolveRequest{
		ConflictID: "c-1",
		Context:    `shared state <script>`,
		Solutions: []sampling.ResolveProposal{
			{InstanceID: "i-1", Approach: "<b>A</b>", Reasoning: "because <i>reasons</i>"},
		},
	}
	out, err := render(resolveTmpl, req)
	require.NoError(t, err)
	require.NotContains(t, out, "<b>A</b>")
	require.NotContains(t, out, "<script>")
	require.Contains(t, out, "&lt;b&gt;A&lt;/b&gt;")
}

func TestRenderSynthesizeEscapesCompletedSubtasks(t *testing.T) {
	req := sampling.SynthesizeRequest{
		TaskID:     "t-1",
		ParentText: `<h1>done</h1>`,
		CompletedSubtasks: []sampling.CompletedSubtask{
			{ID: "a", Description: "<b>x</b>", Output: "<script>evil()</script>"},
		},
	}
	out, err := render(synthesizeTmpl, req)
	require.NoError(t, err)
	require.NotContains(t, out, "<h1>")
	require.NotContains(t, out, "<script>")
}
