package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semibot/gateway/pkg/models"
)

func TestExecuteRequestGetSession(t *testing.T) {
	deps := newTestDeps()
	sessions := deps.Sessions.(*fakeSessions)
	sessions.sessions["sess-1"] = &models.Session{ID: "sess-1", OrgID: "org-1", AgentID: "agent-1"}
	agents := deps.Agents.(*fakeAgents)
	agents.agents["agent-1"] = &models.Agent{ID: "agent-1", OrgID: "org-1", Name: "helper"}

	h := newTestHub(deps)
	conn := newTestConn("user-1")

	result, frameErr := h.executeRequest(context.Background(), conn, &inboundFrame{
		Method:    "get_session",
		SessionID: "sess-1",
	})
	require.Nil(t, frameErr)

	payload, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, sessions.sessions["sess-1"], payload["session"])
	assert.Equal(t, agents.agents["agent-1"], payload["agent"])
}

func TestExecuteRequestGetSessionIDFromParams(t *testing.T) {
	deps := newTestDeps()
	sessions := deps.Sessions.(*fakeSessions)
	sessions.sessions["sess-1"] = &models.Session{ID: "sess-1", OrgID: "org-1", AgentID: "agent-1"}
	deps.Agents.(*fakeAgents).agents["agent-1"] = &models.Agent{ID: "agent-1", OrgID: "org-1"}

	h := newTestHub(deps)
	conn := newTestConn("user-1")

	// session_id may arrive in params when the frame-level field is unset.
	_, frameErr := h.executeRequest(context.Background(), conn, &inboundFrame{
		Method: "get_session",
		Params: map[string]any{"session_id": "sess-1"},
	})
	require.Nil(t, frameErr)
	assert.Equal(t, []string{"sess-1"}, sessions.getQueries)
}

func TestExecuteRequestGetSessionFailure(t *testing.T) {
	deps := newTestDeps()
	deps.Sessions.(*fakeSessions).getErr = errors.New("db down")

	h := newTestHub(deps)
	conn := newTestConn("user-1")

	result, frameErr := h.executeRequest(context.Background(), conn, &inboundFrame{
		Method:    "get_session",
		SessionID: "sess-1",
	})
	assert.Nil(t, result)
	require.NotNil(t, frameErr)
	assert.Equal(t, codeRequestFailed, frameErr.Code)
	assert.Contains(t, frameErr.Message, "db down")
}

func TestExecuteRequestGetConfig(t *testing.T) {
	deps := newTestDeps()
	agent := &models.Agent{ID: "agent-1", OrgID: "org-1", Name: "helper", Model: "gpt-4o"}
	deps.Agents.(*fakeAgents).agents["agent-1"] = agent

	h := newTestHub(deps)
	conn := newTestConn("user-1")

	result, frameErr := h.executeRequest(context.Background(), conn, &inboundFrame{
		Method: "get_config",
		Params: map[string]any{"agent_id": "agent-1"},
	})
	require.Nil(t, frameErr)
	assert.Equal(t, agent, result)
}

func TestExecuteRequestMCPCall(t *testing.T) {
	deps := newTestDeps()
	mcp := deps.MCP.(*fakeMCP)
	mcp.result = map[string]any{"content": "ok"}

	h := newTestHub(deps)
	conn := newTestConn("user-1")

	result, frameErr := h.executeRequest(context.Background(), conn, &inboundFrame{
		Method: "mcp_call",
		Params: map[string]any{
			"server":    "github",
			"tool":      "list_prs",
			"arguments": map[string]any{"repo": "x"},
		},
	})
	require.Nil(t, frameErr)
	assert.Equal(t, mcp.result, result)
	assert.Equal(t, "github", mcp.lastServer)
	assert.Equal(t, "list_prs", mcp.lastTool)
	assert.Equal(t, map[string]any{"repo": "x"}, mcp.lastArgs)
}

func TestExecuteRequestMCPCallFailure(t *testing.T) {
	deps := newTestDeps()
	deps.MCP.(*fakeMCP).err = errors.New("server unreachable")

	h := newTestHub(deps)
	conn := newTestConn("user-1")

	_, frameErr := h.executeRequest(context.Background(), conn, &inboundFrame{
		Method: "mcp_call",
		Params: map[string]any{"server": "github", "tool": "list_prs"},
	})
	require.NotNil(t, frameErr)
	assert.Equal(t, codeRequestFailed, frameErr.Code)
}

func TestExecuteRequestUnsupportedMethod(t *testing.T) {
	h := newTestHub(newTestDeps())
	conn := newTestConn("user-1")

	result, frameErr := h.executeRequest(context.Background(), conn, &inboundFrame{
		Method: "launch_rocket",
	})
	assert.Nil(t, result)
	require.NotNil(t, frameErr)
	assert.Equal(t, codeUnsupportedMethod, frameErr.Code)
	assert.Contains(t, frameErr.Message, "launch_rocket")
}

func TestMemorySearchEmptyQuery(t *testing.T) {
	deps := newTestDeps()
	memories := deps.Memories.(*fakeMemories)

	h := newTestHub(deps)
	conn := newTestConn("user-1")

	for _, query := range []string{"", "   "} {
		result, frameErr := h.executeRequest(context.Background(), conn, &inboundFrame{
			Method: "memory_search",
			Params: map[string]any{"query": query},
		})
		require.Nil(t, frameErr)
		assert.Equal(t, map[string]any{"results": []models.MemoryHit{}}, result)
	}
	assert.Zero(t, memories.substrCalls)
	assert.Zero(t, memories.vectorCalls)
}

func TestMemorySearchTopKClamp(t *testing.T) {
	tests := []struct {
		name   string
		topK   any
		expect int
	}{
		{name: "below minimum", topK: float64(0), expect: 1},
		{name: "above maximum", topK: float64(500), expect: 20},
		{name: "within range", topK: float64(7), expect: 7},
		{name: "absent defaults to minimum", topK: nil, expect: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestDeps()
			memories := deps.Memories.(*fakeMemories)
			h := newTestHub(deps)
			conn := newTestConn("user-1")

			params := map[string]any{"query": "deploy steps"}
			if tt.topK != nil {
				params["top_k"] = tt.topK
			}
			_, frameErr := h.executeRequest(context.Background(), conn, &inboundFrame{
				Method: "memory_search",
				Params: params,
			})
			require.Nil(t, frameErr)
			assert.Equal(t, tt.expect, memories.lastTopK)
		})
	}
}

func TestMemorySearchSubstringFallbackWithoutEmbedder(t *testing.T) {
	deps := newTestDeps()
	memories := deps.Memories.(*fakeMemories)
	memories.hits = []models.MemoryHit{{Content: "remembered", Score: 0.9}}

	h := newTestHub(deps)
	conn := newTestConn("user-1")

	result, frameErr := h.executeRequest(context.Background(), conn, &inboundFrame{
		Method: "memory_search",
		Params: map[string]any{"query": "remembered", "agent_id": "agent-1"},
	})
	require.Nil(t, frameErr)
	assert.Equal(t, 1, memories.substrCalls)
	assert.Zero(t, memories.vectorCalls)
	assert.Equal(t, "remembered", memories.lastQuery)
	assert.Equal(t, "agent-1", memories.lastAgentID)
	assert.Equal(t, map[string]any{"results": memories.hits}, result)
}

func TestMemorySearchVectorPath(t *testing.T) {
	deps := newTestDeps()
	deps.Embedder = &fakeEmbedder{vector: []float32{0.1, 0.2}}
	memories := deps.Memories.(*fakeMemories)

	h := newTestHub(deps)
	conn := newTestConn("user-1")

	_, frameErr := h.executeRequest(context.Background(), conn, &inboundFrame{
		Method: "memory_search",
		Params: map[string]any{"query": "deploy steps"},
	})
	require.Nil(t, frameErr)
	assert.Equal(t, 1, memories.vectorCalls)
	assert.Zero(t, memories.substrCalls)
}

func TestMemorySearchFallsBackWhenEmbeddingFails(t *testing.T) {
	deps := newTestDeps()
	deps.Embedder = &fakeEmbedder{err: errors.New("embedding service down")}
	memories := deps.Memories.(*fakeMemories)

	h := newTestHub(deps)
	conn := newTestConn("user-1")

	_, frameErr := h.executeRequest(context.Background(), conn, &inboundFrame{
		Method: "memory_search",
		Params: map[string]any{"query": "deploy steps"},
	})
	require.Nil(t, frameErr)
	assert.Zero(t, memories.vectorCalls)
	assert.Equal(t, 1, memories.substrCalls)
}

func TestMemorySearchNilHitsBecomeEmptySlice(t *testing.T) {
	deps := newTestDeps()
	h := newTestHub(deps)
	conn := newTestConn("user-1")

	result, frameErr := h.executeRequest(context.Background(), conn, &inboundFrame{
		Method: "memory_search",
		Params: map[string]any{"query": "nothing matches"},
	})
	require.Nil(t, frameErr)
	assert.Equal(t, map[string]any{"results": []models.MemoryHit{}}, result)
}

func TestGetSkillPackage(t *testing.T) {
	deps := newTestDeps()
	skills := deps.Skills.(*fakeSkills)
	skills.definition = &models.SkillDefinition{ID: "def-1", SkillID: "web-scraper", PackageID: "pkg-1"}
	skills.record = &models.SkillPackageRecord{ID: "pkg-1", DefinitionID: "def-1", Path: "/srv/skills/web-scraper"}
	skills.pkg = &models.SkillPackage{SkillID: "web-scraper", Version: "current"}

	h := newTestHub(deps)
	conn := newTestConn("user-1")

	result, frameErr := h.executeRequest(context.Background(), conn, &inboundFrame{
		Method: "get_skill_package",
		Params: map[string]any{"skill_id": "web-scraper"},
	})
	require.Nil(t, frameErr)
	assert.Equal(t, map[string]any{"package": skills.pkg}, result)
}

func TestGetSkillPackageSoftMisses(t *testing.T) {
	tests := []struct {
		name  string
		prime func(*fakeSkills)
	}{
		{name: "empty skill id", prime: func(*fakeSkills) {}},
		{name: "no definition", prime: func(f *fakeSkills) {
			f.defErr = errNotFound
		}},
		{name: "no package record", prime: func(f *fakeSkills) {
			f.definition = &models.SkillDefinition{ID: "def-1"}
			f.recErr = errNotFound
		}},
		{name: "package directory unreadable", prime: func(f *fakeSkills) {
			f.definition = &models.SkillDefinition{ID: "def-1"}
			f.record = &models.SkillPackageRecord{ID: "pkg-1", Path: "/gone"}
			f.loadErr = errNotFound
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestDeps()
			skills := deps.Skills.(*fakeSkills)
			tt.prime(skills)

			h := newTestHub(deps)
			conn := newTestConn("user-1")

			params := map[string]any{"skill_id": "web-scraper"}
			if tt.name == "empty skill id" {
				params = map[string]any{}
			}
			result, frameErr := h.executeRequest(context.Background(), conn, &inboundFrame{
				Method: "get_skill_package",
				Params: params,
			})
			require.Nil(t, frameErr)
			assert.Equal(t, map[string]any{"package": nil}, result)
		})
	}
}

func TestHandleRequestCachesOutcome(t *testing.T) {
	deps := newTestDeps()
	agent := &models.Agent{ID: "agent-1", OrgID: "org-1"}
	deps.Agents.(*fakeAgents).agents["agent-1"] = agent

	h := newTestHub(deps)
	// No socket behind the connection: the response write fails and is
	// logged; the resume cache is what this test asserts.
	conn := newTestConn("user-1")
	conn.markDisconnected()

	h.handleRequest(conn, &inboundFrame{
		Type:   frameRequest,
		ID:     "req-1",
		Method: "get_config",
		Params: map[string]any{"agent_id": "agent-1"},
	})
	h.handleRequest(conn, &inboundFrame{
		Type:   frameRequest,
		ID:     "req-2",
		Method: "get_config",
		Params: map[string]any{"agent_id": "missing"},
	})

	results := conn.lookupPending([]string{"req-1", "req-2"})
	assert.Equal(t, resumeCompleted, results["req-1"].Status)
	assert.Equal(t, agent, results["req-1"].Data)
	assert.Equal(t, resumeFailed, results["req-2"].Status)
	require.NotNil(t, results["req-2"].Error)
	assert.Equal(t, codeRequestFailed, results["req-2"].Error.Code)
}

func TestParamHelpers(t *testing.T) {
	params := map[string]any{
		"name":  "x",
		"count": float64(3),
		"score": 0.75,
		"obj":   map[string]any{"k": "v"},
		"wrong": []any{},
	}

	assert.Equal(t, "x", stringParam(params, "name"))
	assert.Empty(t, stringParam(params, "count"))
	assert.Empty(t, stringParam(params, "absent"))

	assert.Equal(t, 3, intParam(params, "count", 9))
	assert.Equal(t, 9, intParam(params, "absent", 9))
	assert.Equal(t, 9, intParam(params, "wrong", 9))

	assert.Equal(t, 0.75, floatParam(params, "score", 0.5))
	assert.Equal(t, 0.5, floatParam(params, "absent", 0.5))

	assert.Equal(t, map[string]any{"k": "v"}, mapParam(params, "obj"))
	assert.Equal(t, map[string]any{}, mapParam(params, "absent"))
}
