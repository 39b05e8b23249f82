package toolsurface

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/browseragent/control-plane/internal/browser"
	"github.com/browseragent/control-plane/internal/errs"
)

// sessionState tracks one browser session and its open tabs. A session may
// be owned by a run (closed when the run ends) or created explicitly via
// create_session (closed only by close_session or process shutdown).
type sessionState struct {
	mu         sync.Mutex
	id         string
	session    browser.Session
	activeTab  string
	owningRun  string // run id if this session was implicitly created by a run
}

// SessionManager owns every live browser session, keyed by session id.
// Sessions are not shared across runs unless a caller supplies a
// sessionId explicitly.
type SessionManager struct {
	driver browser.Driver

	mu       sync.Mutex
	sessions map[string]*sessionState
}

// NewSessionManager wraps a browser.Driver with session bookkeeping.
func NewSessionManager(driver browser.Driver) *SessionManager {
	return &SessionManager{driver: driver, sessions: make(map[string]*sessionState)}
}

// Create opens a new browser session and its first tab, returning the
// session id.
func (sm *SessionManager) Create(ctx context.Context, owningRun string) (string, error) {
	sess, err := sm.driver.NewSession(ctx)
	if err != nil {
		return "", errs.New(errs.InternalError, "create session: "+err.Error())
	}
	tab, err := sess.NewTab(ctx)
	if err != nil {
		_ = sess.Close()
		return "", errs.New(errs.InternalError, "create initial tab: "+err.Error())
	}
	id := uuid.NewString()
	sm.mu.Lock()
	sm.sessions[id] = &sessionState{id: id, session: sess, activeTab: tab.ID(), owningRun: owningRun}
	sm.mu.Unlock()
	return id, nil
}

// Close closes a session and releases its bookkeeping.
func (sm *SessionManager) Close(sessionID string) error {
	sm.mu.Lock()
	st, ok := sm.sessions[sessionID]
	if ok {
		delete(sm.sessions, sessionID)
	}
	sm.mu.Unlock()
	if !ok {
		return errs.New(errs.SessionNotFound, sessionID)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.session.Close()
}

// CloseIfOwnedBy closes sessionID only if it was implicitly created by
// runID (used to reap ephemeral sessions template executors open when the
// caller did not supply one).
func (sm *SessionManager) CloseIfOwnedBy(sessionID, runID string) {
	sm.mu.Lock()
	st, ok := sm.sessions[sessionID]
	if ok && st.owningRun == runID {
		delete(sm.sessions, sessionID)
	} else {
		ok = false
	}
	sm.mu.Unlock()
	if ok {
		st.mu.Lock()
		_ = st.session.Close()
		st.mu.Unlock()
	}
}

// List returns every live session id, for the session CRUD surface.
func (sm *SessionManager) List() []string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (sm *SessionManager) get(sessionID string) (*sessionState, error) {
	sm.mu.Lock()
	st, ok := sm.sessions[sessionID]
	sm.mu.Unlock()
	if !ok {
		return nil, errs.New(errs.SessionNotFound, sessionID)
	}
	return st, nil
}

// ActiveTab returns the session's current tab.
func (sm *SessionManager) ActiveTab(sessionID string) (browser.Tab, error) {
	st, err := sm.get(sessionID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	tab, ok := st.session.Tab(st.activeTab)
	if !ok {
		return nil, errs.New(errs.SessionNotFound, "active tab not found for "+sessionID)
	}
	return tab, nil
}

// CreateTab opens a new tab on sessionID and makes it active.
func (sm *SessionManager) CreateTab(ctx context.Context, sessionID string) (browser.Tab, error) {
	st, err := sm.get(sessionID)
	if err != nil {
		return nil, err
	}
	tab, tErr := st.session.NewTab(ctx)
	if tErr != nil {
		return nil, errs.New(errs.InternalError, "create tab: "+tErr.Error())
	}
	st.mu.Lock()
	st.activeTab = tab.ID()
	st.mu.Unlock()
	return tab, nil
}

// CloseTab closes tabID on sessionID. If it was the active tab and other
// tabs remain, the last tab the session's Tabs() lists becomes active;
// that is not necessarily the most recently opened one.
func (sm *SessionManager) CloseTab(sessionID, tabID string) error {
	st, err := sm.get(sessionID)
	if err != nil {
		return err
	}
	if cErr := st.session.CloseTab(tabID); cErr != nil {
		return errs.New(errs.InternalError, cErr.Error())
	}
	st.mu.Lock()
	if st.activeTab == tabID {
		tabs := st.session.Tabs()
		if len(tabs) > 0 {
			st.activeTab = tabs[len(tabs)-1].ID()
		} else {
			st.activeTab = ""
		}
	}
	st.mu.Unlock()
	return nil
}

// SwitchTab makes tabID the session's active tab.
func (sm *SessionManager) SwitchTab(sessionID, tabID string) error {
	st, err := sm.get(sessionID)
	if err != nil {
		return err
	}
	if _, ok := st.session.Tab(tabID); !ok {
		return errs.New(errs.InvalidParameter, "unknown tab: "+tabID)
	}
	st.mu.Lock()
	st.activeTab = tabID
	st.mu.Unlock()
	return nil
}

// ListTabs returns every tab id on sessionID.
func (sm *SessionManager) ListTabs(sessionID string) ([]string, error) {
	st, err := sm.get(sessionID)
	if err != nil {
		return nil, err
	}
	tabs := st.session.Tabs()
	ids := make([]string, len(tabs))
	for i, t := range tabs {
		ids[i] = t.ID()
	}
	return ids, nil
}
