package clubauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clubsuite/clubauth/session"
)

// ListSessions returns the principal's active sessions, newest first. The
// session matching currentSessionID (usually from the caller's own token) is
// flagged Current.
func (e *Engine) ListSessions(ctx context.Context, principalID, currentSessionID string) ([]SessionInfo, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	sessions, err := e.sessions.ActiveSessions(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		if sess.Used {
			continue
		}
		infos = append(infos, SessionInfo{
			SessionID:    sess.SessionID,
			IP:           sess.IP,
			UserAgent:    sess.UserAgent,
			CreatedAt:    time.Unix(sess.CreatedAt, 0),
			LastActivity: time.Unix(sess.LastActivityAt, 0),
			Current:      sess.SessionID == currentSessionID,
		})
	}

	for i := 0; i < len(infos); i++ {
		for j := i + 1; j < len(infos); j++ {
			if infos[j].CreatedAt.After(infos[i].CreatedAt) {
				infos[i], infos[j] = infos[j], infos[i]
			}
		}
	}
	return infos, nil
}

// TerminateSession ends one session of the principal. A session that is
// already gone counts as success; one owned by someone else is denied.
func (e *Engine) TerminateSession(ctx context.Context, principalID, sessionID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	sess, err := e.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if sess.PrincipalID != principalID {
		return ErrPermissionDenied
	}

	if err := e.sessions.Terminate(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.metrics.Inc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventSessionTerminated, true, principalID, sessionID, nil, nil)
	return nil
}
