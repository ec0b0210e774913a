// Package tui provides the Bubble Tea interactive session view: a live
// transcript attached to a remote agent run, with optimistic task moves,
// permission prompts and lazy history loading.
package tui

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joss/tether/internal/api"
	"github.com/joss/tether/internal/config"
	"github.com/joss/tether/internal/debounce"
	"github.com/joss/tether/internal/domain"
	"github.com/joss/tether/internal/logging"
	"github.com/joss/tether/internal/mutation"
	"github.com/joss/tether/internal/pager"
	"github.com/joss/tether/internal/rules"
	"github.com/joss/tether/internal/state"
	"github.com/joss/tether/internal/timeline"
	"github.com/joss/tether/internal/transcript"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(0, 1)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	agentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	thinkingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)

	toolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	permStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("226")).
			Bold(true).
			Padding(0, 1)

	groupStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("105"))

	selectedGroupStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("205")).
				Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Background(lipgloss.Color("236")).
			Padding(0, 1)

	inputBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(0, 1)
)

// layout is shared across model copies so the pager's measure closure
// always sees the current width.
type layout struct {
	width int
}

// Model is the attach TUI model.
type Model struct {
	sessionID string
	title     string

	client    *api.Client
	store     *state.Store
	router    *state.Router
	projector *timeline.Projector
	pager     *pager.Controller
	coord     *mutation.Coordinator
	rules     *rules.Set
	cache     *transcript.Cache
	diffs     *state.DiffCache
	log       *logging.Logger

	// ctx bounds the event feed and every background fetch; cancel runs
	// on detach so stream goroutines do not outlive the model.
	ctx    context.Context
	cancel context.CancelFunc

	snap     state.Snapshot
	items    []timeline.Item
	diffStat string

	sub    chan state.Snapshot
	events <-chan domain.Event

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	draft    *debounce.Buffer

	layout    *layout
	selected  int // index into items of the selected group, -1 = none
	ready     bool
	quitting  bool
	connected bool
	notice    string
	err       error

	opTimeout time.Duration
}

// Messages
type (
	snapshotMsg     state.Snapshot
	eventMsg        domain.Event
	connectedMsg    struct{ events <-chan domain.Event }
	disconnectedMsg struct{ err error }
	reconnectMsg    time.Time
	pageMsg         domain.Page
	pageErrMsg      struct{ err error }
	mutationDoneMsg struct {
		op  string
		err error
	}
	elapsedTickMsg time.Time
	savedMsg       struct{ err error }
	diffMsg        struct {
		diff string
		err  error
	}
)

// NewModel wires one session's full sync stack. cache may be nil when
// the local database could not be opened; everything else is required.
func NewModel(client *api.Client, cache *transcript.Cache, sess domain.Session) Model {
	env := config.Env()
	log := logging.New("tui").WithSession(sess.ID)

	store := state.NewStore(sess.ID)
	diffs := state.NewDiffCache(30 * time.Second)
	router := state.NewRouter(store, diffs, log)

	lay := &layout{width: 80}
	pg := pager.New(store, env.PageSize, log)

	sub := make(chan state.Snapshot, 8)
	store.Subscribe([]state.Partition{
		state.PartitionTasks, state.PartitionRun, state.PartitionMessages,
		state.PartitionPermissions, state.PartitionGit,
	}, func(s state.Snapshot) {
		select {
		case sub <- s:
		default:
		}
	})

	ruleSet, err := rules.Load(config.GetPaths().Rules)
	if err != nil {
		log.Warn("rules unavailable", nil, err)
		ruleSet, _ = rules.Parse(strings.NewReader(""))
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ti := textarea.New()
	ti.Placeholder = "Message the agent... (Enter to send, / for commands)"
	ti.CharLimit = 4000
	ti.SetWidth(80)
	ti.SetHeight(3)
	ti.Focus()

	ctx, cancel := context.WithCancel(context.Background())

	m := Model{
		sessionID: sess.ID,
		title:     sess.Title,
		client:    client,
		store:     store,
		router:    router,
		projector: timeline.New(),
		pager:     pg,
		coord:     mutation.NewCoordinator(store, log),
		rules:     ruleSet,
		cache:     cache,
		diffs:     diffs,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		sub:       sub,
		viewport:  viewport.New(80, 20),
		input:     ti,
		spinner:   sp,
		layout:    lay,
		selected:  -1,
		opTimeout: env.OperationTimeout,
	}
	m.draft = debounce.New(2*time.Second, func(v string) {
		saveDraft(sess.ID, v)
	})
	if v := loadDraft(sess.ID); v != "" {
		m.input.SetValue(v)
	}
	return m
}

// Init starts the event feed, the first transcript page and the spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		connect(m.ctx, m.client, m.sessionID),
		loadPage(m.client, m.sessionID, domain.PageRequest{Limit: config.Env().PageSize}),
		waitSnapshot(m.sub),
	)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		return m.handleWindowSize(msg)

	case snapshotMsg:
		return m.handleSnapshot(msg)

	case connectedMsg:
		m.connected = true
		m.events = msg.events
		return m, waitEvent(m.events)

	case disconnectedMsg:
		m.connected = false
		if msg.err != nil {
			m.log.Warn("event feed lost", nil, msg.err)
		}
		return m, tea.Tick(3*time.Second, func(t time.Time) tea.Msg { return reconnectMsg(t) })

	case reconnectMsg:
		return m, connect(m.ctx, m.client, m.sessionID)

	case eventMsg:
		return m.handleEvent(domain.Event(msg))

	case pageMsg:
		added := m.pager.FinishLoad(domain.Page(msg))
		if added > 0 {
			// The anchor shifts by the rendered height of the splice;
			// grouping can collapse a prepended run into far fewer lines
			// than its message count.
			before := m.viewport.TotalLineCount()
			m.snap = m.store.Get()
			m.refreshContent()
			after := m.viewport.TotalLineCount()
			m.viewport.SetYOffset(m.pager.OnPrepend(after - before))
		}
		if m.cache != nil {
			cmds = append(cmds, saveTranscript(m.cache, m.sessionID, msg.Messages))
		}
		return m, tea.Batch(cmds...)

	case pageErrMsg:
		m.pager.FailLoad(msg.err)
		m.err = msg.err
		return m, nil

	case mutationDoneMsg:
		return m.handleMutationDone(msg)

	case savedMsg:
		if msg.err != nil {
			m.log.Warn("transcript save failed", nil, msg.err)
		}
		return m, nil

	case diffMsg:
		if msg.err != nil {
			m.log.Debug("diff fetch failed", map[string]any{"cause": msg.err.Error()})
			return m, nil
		}
		m.diffStat = diffSummary(msg.diff)
		return m, nil

	case elapsedTickMsg:
		if m.snap.Run.State.Active() {
			m.refreshContent()
			return m, elapsedTick()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) handleSnapshot(msg snapshotMsg) (tea.Model, tea.Cmd) {
	// Coalesce to the latest pending snapshot.
	snap := state.Snapshot(msg)
	for {
		select {
		case s := <-m.sub:
			snap = s
			continue
		default:
		}
		break
	}

	wasRunning := m.snap.Run.State.Active()
	m.snap = snap

	before := m.viewport.TotalLineCount()
	m.refreshContent()
	after := m.viewport.TotalLineCount()

	if after > before {
		if _, snapToBottom := m.pager.OnAppend(after - before); snapToBottom {
			m.viewport.GotoBottom()
		}
	}
	m.syncPager()

	var cmds []tea.Cmd
	cmds = append(cmds, waitSnapshot(m.sub))
	if !wasRunning && m.snap.Run.State.Active() {
		cmds = append(cmds, elapsedTick())
	}
	if req, ok := m.pager.MaybeLoadOlder(); ok {
		cmds = append(cmds, loadPage(m.client, m.sessionID, req))
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleEvent(ev domain.Event) (tea.Model, tea.Cmd) {
	m.router.Route(ev)

	cmds := []tea.Cmd{waitEvent(m.events)}

	if ev.Type == domain.EventPermissionRequested {
		if cmd := m.autoAnswer(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	if m.cache != nil && (ev.Type == domain.EventMessageAdded || ev.Type == domain.EventMessageUpdated) {
		cmds = append(cmds, saveTranscript(m.cache, m.sessionID, m.store.Get().Messages))
	}
	if ev.Type == domain.EventGitStatusChanged {
		if m.store.Get().Git.Dirty {
			cmds = append(cmds, loadDiff(m.ctx, m.client, m.diffs, m.sessionID))
		} else {
			m.diffStat = ""
		}
	}
	return m, tea.Batch(cmds...)
}

// autoAnswer runs pending permissions through the local rule set and
// responds without prompting when a rule matches.
func (m Model) autoAnswer() tea.Cmd {
	if m.rules.Len() == 0 {
		return nil
	}
	var cmds []tea.Cmd
	for _, req := range m.store.Get().Permissions {
		if req.Status.Resolved() {
			continue
		}
		verdict, ok := m.rules.Match(req)
		if !ok {
			continue
		}
		m.log.Info("permission auto-answered", map[string]any{
			"toolCallId": req.ToolCallID, "status": string(verdict),
		})
		cmds = append(cmds, respondPermission(m.coord, m.client, req.ToolCallID, verdict, m.opTimeout))
	}
	if len(cmds) == 0 {
		return nil
	}
	return tea.Batch(cmds...)
}

func (m Model) handleMutationDone(msg mutationDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.err = msg.err
		m.notice = ""
		return m, nil
	}
	m.err = nil
	m.notice = msg.op + " ok"
	return m, nil
}

func (m Model) handleWindowSize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.layout.width = msg.Width

	headerHeight := 2
	statusHeight := 1
	inputHeight := 5
	vpHeight := msg.Height - headerHeight - statusHeight - inputHeight
	if vpHeight < 5 {
		vpHeight = 5
	}

	if !m.ready {
		m.viewport = viewport.New(msg.Width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
		m.viewport.Height = vpHeight
	}
	m.refreshContent()

	if offset, snapToBottom := m.pager.OnResize(vpHeight); snapToBottom {
		m.viewport.SetYOffset(offset)
	}
	m.syncPager()

	m.input.SetWidth(msg.Width - 4)
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.draft.Flush()
		m.cancel()
		m.quitting = true
		return m, tea.Quit

	case "esc":
		if !m.input.Focused() {
			m.input.Focus()
			return m, nil
		}
		m.draft.Flush()
		m.cancel()
		m.quitting = true
		return m, tea.Quit

	case "enter":
		return m.handleEnter()

	case "y", "n":
		if !m.input.Focused() || m.input.Value() == "" {
			if cmd := m.respondFirstPending(msg.String() == "y"); cmd != nil {
				return m, cmd
			}
		}

	case "tab":
		if m.input.Focused() {
			m.input.Blur()
		} else {
			m.input.Focus()
		}
		return m, nil

	case " ":
		if !m.input.Focused() {
			m.toggleSelected()
			m.refreshContent()
			return m, nil
		}

	case "[":
		if !m.input.Focused() {
			m.moveSelection(-1)
			m.refreshContent()
			return m, nil
		}

	case "]":
		if !m.input.Focused() {
			m.moveSelection(1)
			m.refreshContent()
			return m, nil
		}

	case "g":
		if !m.input.Focused() {
			m.viewport.GotoTop()
			return m, m.afterScroll()
		}

	case "G":
		if !m.input.Focused() {
			m.viewport.GotoBottom()
			return m, m.afterScroll()
		}

	case "up", "down", "pgup", "pgdown", "ctrl+u", "ctrl+d":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, tea.Batch(cmd, m.afterScroll())

	case "k", "j":
		if !m.input.Focused() {
			if msg.String() == "k" {
				m.viewport.LineUp(1)
			} else {
				m.viewport.LineDown(1)
			}
			return m, m.afterScroll()
		}
	}

	if m.input.Focused() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		m.draft.Set(m.input.Value())
		return m, cmd
	}
	return m, nil
}

func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	if !m.input.Focused() {
		return m, nil
	}
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(tea.KeyMsg{Type: tea.KeyEnter})
		return m, cmd
	}

	m.input.SetValue("")
	m.draft.Stop()
	clearDraft(m.sessionID)

	if strings.HasPrefix(text, "/") {
		return m.handleSlashCommand(text)
	}
	return m, sendMessage(m.coord, m.client, m.sessionID, text, m.opTimeout)
}

// handleSlashCommand dispatches /move, /approve, /reject and /help.
func (m Model) handleSlashCommand(text string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(text)
	switch fields[0] {
	case "/move":
		if len(fields) < 3 {
			m.err = nil
			m.notice = "usage: /move <taskId> <step> [position]"
			return m, nil
		}
		position := 0
		if len(fields) > 3 {
			position, _ = strconv.Atoi(fields[3])
		}
		return m, moveTask(m.coord, m.client, fields[1], fields[2], position, m.opTimeout)

	case "/approve", "/reject":
		if cmd := m.respondFirstPending(fields[0] == "/approve"); cmd != nil {
			return m, cmd
		}
		m.notice = "no pending permission"
		return m, nil

	case "/help":
		m.notice = "/move <taskId> <step> [pos] · /approve · /reject · y/n answer permission · space toggle group"
		return m, nil

	default:
		m.notice = "unknown command " + fields[0]
		return m, nil
	}
}

func (m *Model) respondFirstPending(approve bool) tea.Cmd {
	var pending *domain.PermissionRequest
	for _, e := range m.snap.Messages {
		if e.Meta.ToolCallID == "" {
			continue
		}
		if req, ok := m.snap.Permissions[e.Meta.ToolCallID]; ok && !req.Status.Resolved() {
			pending = &req
			break
		}
	}
	if pending == nil {
		return nil
	}
	status := domain.PermissionApproved
	if !approve {
		status = domain.PermissionRejected
	}
	return respondPermission(m.coord, m.client, pending.ToolCallID, status, m.opTimeout)
}

// afterScroll feeds the new scroll position to the pager and starts a
// backward fetch when the view is near the top.
func (m *Model) afterScroll() tea.Cmd {
	m.syncPager()
	if req, ok := m.pager.MaybeLoadOlder(); ok {
		return loadPage(m.client, m.sessionID, req)
	}
	return nil
}

func (m *Model) syncPager() {
	m.pager.Sync(m.viewport.YOffset, m.viewport.Height, m.viewport.TotalLineCount())
}

func (m *Model) refreshContent() {
	m.items = m.projector.Project(m.snap.Messages, m.snap.Permissions, m.snap.Children, m.snap.Run)
	m.clampSelection()
	m.viewport.SetContent(m.renderItems())
}

// --- Group selection ---

func (m *Model) groupIndexes() []int {
	var idx []int
	for i, it := range m.items {
		if it.ItemKind() == timeline.KindGroup {
			idx = append(idx, i)
		}
	}
	return idx
}

func (m *Model) clampSelection() {
	if m.selected < 0 {
		return
	}
	groups := m.groupIndexes()
	if len(groups) == 0 {
		m.selected = -1
		return
	}
	if m.selected >= len(m.items) || m.items[m.selected].ItemKind() != timeline.KindGroup {
		m.selected = groups[len(groups)-1]
	}
}

func (m *Model) moveSelection(dir int) {
	groups := m.groupIndexes()
	if len(groups) == 0 {
		return
	}
	cur := -1
	for i, gi := range groups {
		if gi == m.selected {
			cur = i
			break
		}
	}
	if cur == -1 {
		m.selected = groups[len(groups)-1]
		return
	}
	cur += dir
	if cur < 0 {
		cur = 0
	}
	if cur >= len(groups) {
		cur = len(groups) - 1
	}
	m.selected = groups[cur]
}

func (m *Model) toggleSelected() {
	m.clampSelection()
	if m.selected < 0 {
		groups := m.groupIndexes()
		if len(groups) == 0 {
			return
		}
		m.selected = groups[len(groups)-1]
	}
	if gi, ok := m.items[m.selected].(timeline.GroupItem); ok {
		m.projector.Toggle(gi.Group)
	}
}

// --- Draft persistence ---

func draftPath(sessionID string) string {
	return filepath.Join(config.GetPaths().Data, "draft-"+sessionID+".txt")
}

func saveDraft(sessionID, v string) {
	if strings.TrimSpace(v) == "" {
		clearDraft(sessionID)
		return
	}
	if err := config.EnsureDir(config.GetPaths().Data); err != nil {
		return
	}
	os.WriteFile(draftPath(sessionID), []byte(v), 0644)
}

func loadDraft(sessionID string) string {
	data, err := os.ReadFile(draftPath(sessionID))
	if err != nil {
		return ""
	}
	return string(data)
}

func clearDraft(sessionID string) {
	os.Remove(draftPath(sessionID))
}
