package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/semibot/gateway/pkg/config"
	"github.com/semibot/gateway/pkg/models"
	"github.com/semibot/gateway/pkg/uievent"
)

// In-memory fakes for the hub's collaborator interfaces. Each fake records
// the calls it receives and returns whatever its fields are primed with.

type fakeSessions struct {
	mu         sync.Mutex
	sessions   map[string]*models.Session
	getErr     error
	addErr     error
	nextMsgID  string
	added      []models.NewMessage
	addedTo    []string
	addedOrgs  []string
	getQueries []string
}

func (f *fakeSessions) GetSession(_ context.Context, orgID, sessionID string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getQueries = append(f.getQueries, sessionID)
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.sessions[sessionID]
	if !ok || s.OrgID != orgID {
		return nil, errNotFound
	}
	return s, nil
}

func (f *fakeSessions) AddMessage(_ context.Context, orgID, sessionID string, msg models.NewMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return "", f.addErr
	}
	f.added = append(f.added, msg)
	f.addedTo = append(f.addedTo, sessionID)
	f.addedOrgs = append(f.addedOrgs, orgID)
	return f.nextMsgID, nil
}

func (f *fakeSessions) addedMessages() []models.NewMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.NewMessage(nil), f.added...)
}

type fakeAgents struct {
	agents map[string]*models.Agent
	err    error
}

func (f *fakeAgents) GetAgent(_ context.Context, orgID, agentID string) (*models.Agent, error) {
	if f.err != nil {
		return nil, f.err
	}
	a, ok := f.agents[agentID]
	if !ok || a.OrgID != orgID {
		return nil, errNotFound
	}
	return a, nil
}

type fakeMCP struct {
	result     any
	err        error
	lastServer string
	lastTool   string
	lastArgs   map[string]any
}

func (f *fakeMCP) CallTool(_ context.Context, server, _ string, tool string, args map[string]any) (any, error) {
	f.lastServer = server
	f.lastTool = tool
	f.lastArgs = args
	return f.result, f.err
}

type fakeLogs struct {
	mu      sync.Mutex
	usage   []models.UsageRecord
	entries []models.ExecutionLogEntry
	err     error
}

func (f *fakeLogs) RecordUsage(_ context.Context, rec models.UsageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.usage = append(f.usage, rec)
	return nil
}

func (f *fakeLogs) LogExecution(_ context.Context, entry models.ExecutionLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

type fakeMemories struct {
	mu          sync.Mutex
	writes      []models.MemoryWrite
	hits        []models.MemoryHit
	err         error
	vectorCalls int
	substrCalls int
	lastTopK    int
	lastQuery   string
	lastAgentID string
}

func (f *fakeMemories) Upsert(_ context.Context, w models.MemoryWrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, w)
	return nil
}

func (f *fakeMemories) SearchByVector(_ context.Context, _, agentID string, _ []float32, topK int) ([]models.MemoryHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectorCalls++
	f.lastTopK = topK
	f.lastAgentID = agentID
	return f.hits, f.err
}

func (f *fakeMemories) SearchBySubstring(_ context.Context, _, agentID, query string, topK int) ([]models.MemoryHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.substrCalls++
	f.lastTopK = topK
	f.lastQuery = query
	f.lastAgentID = agentID
	return f.hits, f.err
}

type fakeSnapshots struct {
	mu    sync.Mutex
	saved []models.Snapshot
	err   error
}

func (f *fakeSnapshots) Save(_ context.Context, snap models.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, snap)
	return nil
}

type fakeSkills struct {
	mu         sync.Mutex
	created    []models.EvolvedSkill
	createErr  error
	definition *models.SkillDefinition
	defErr     error
	record     *models.SkillPackageRecord
	recErr     error
	pkg        *models.SkillPackage
	loadErr    error
}

func (f *fakeSkills) CreateEvolvedSkill(_ context.Context, skill models.EvolvedSkill) (*models.EvolvedSkill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, skill)
	return &skill, nil
}

func (f *fakeSkills) FindDefinitionBySkillID(_ context.Context, _ string) (*models.SkillDefinition, error) {
	if f.defErr != nil {
		return nil, f.defErr
	}
	return f.definition, nil
}

func (f *fakeSkills) FindPackageByDefinition(_ context.Context, _ string) (*models.SkillPackageRecord, error) {
	if f.recErr != nil {
		return nil, f.recErr
	}
	return f.record, nil
}

func (f *fakeSkills) LoadPackage(skillID, _ string) (*models.SkillPackage, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.pkg != nil {
		return f.pkg, nil
	}
	return &models.SkillPackage{SkillID: skillID, Version: "current"}, nil
}

type fakeVMs struct {
	mu           sync.Mutex
	ready        int
	disconnected int
	touched      int
}

func (f *fakeVMs) MarkReady(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready++
	return nil
}

func (f *fakeVMs) MarkDisconnected(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected++
	return nil
}

func (f *fakeVMs) TouchHeartbeat(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched++
	return nil
}

type fakeAuth struct {
	identity  *models.Identity
	verifyErr error
	ticketErr error
}

func (f *fakeAuth) VerifyToken(_ context.Context, _ string) (*models.Identity, error) {
	return f.identity, f.verifyErr
}

func (f *fakeAuth) ConsumeTicket(_ context.Context, _, _ string) error {
	return f.ticketErr
}

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	return f.vector, f.err
}

// forwarded is one event the fake relay received.
type forwarded struct {
	sessionID string
	event     string
	payload   any
}

type fakeRelay struct {
	mu          sync.Mutex
	events      []forwarded
	closed      []string
	subscribers map[string]bool
}

func (f *fakeRelay) Forward(sessionID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, forwarded{sessionID: sessionID, event: event, payload: payload})
}

func (f *fakeRelay) CloseSession(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, sessionID)
}

func (f *fakeRelay) HasSubscribers(sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribers == nil {
		return true
	}
	return f.subscribers[sessionID]
}

func (f *fakeRelay) forwardedEvents() []forwarded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]forwarded(nil), f.events...)
}

func (f *fakeRelay) closedSessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.closed...)
}

var errNotFound = errors.New("not found")

// testGatewayConfig returns hub tunables sized for tests.
func testGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		HeartbeatInterval: config.Duration(5 * time.Second),
		HeartbeatTimeout:  config.Duration(30 * time.Second),
		PendingResultCap:  200,
		PendingEvictBatch: 50,
		ProcessBufferCap:  500,
		SnapshotRetention: 3,
		MemoryTopKMin:     1,
		MemoryTopKMax:     20,
		WriteTimeout:      config.Duration(time.Second),
		SSEWriteTimeout:   config.Duration(time.Second),
		AuthTimeout:       config.Duration(time.Second),
	}
}

// newTestDeps primes every collaborator with an empty fake.
func newTestDeps() Deps {
	return Deps{
		Sessions:  &fakeSessions{sessions: map[string]*models.Session{}},
		Agents:    &fakeAgents{agents: map[string]*models.Agent{}},
		MCP:       &fakeMCP{},
		Logs:      &fakeLogs{},
		Memories:  &fakeMemories{},
		Snapshots: &fakeSnapshots{},
		Skills:    &fakeSkills{},
		VMs:       &fakeVMs{},
		Auth:      &fakeAuth{identity: &models.Identity{UserID: "user-1", OrgID: "org-1"}},
		Relay:     &fakeRelay{},
	}
}

func newTestHub(deps Deps) *Hub {
	return NewHub(testGatewayConfig(), deps, nil, nil)
}

// newTestConn builds an authenticated connection with no backing socket.
// Tests that trigger outbound frames first flip it to disconnected so the
// send is refused before it reaches the nil socket.
func newTestConn(userID string) *Connection {
	conn := newConnection(context.Background(), userID, nil, time.Second, 200, 50)
	conn.markReady("org-1", "token-1")
	return conn
}

// processMessage builds a minimal buffered process event.
func processMessage(content string) *uievent.Message {
	return &uievent.Message{
		ID:        content,
		Type:      uievent.TypeThinking,
		Data:      map[string]any{"content": content},
		Timestamp: uievent.Timestamp(time.Now()),
	}
}
