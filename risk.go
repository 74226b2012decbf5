package clubauth

import "time"

// RiskSignals are the contextual inputs to the login risk score. The Engine
// gathers them (IP history, clock, principal record); scoring itself is pure
// computation with no I/O.
type RiskSignals struct {
	// KnownIP is false when the login IP has no history for this principal,
	// including when the history store could not be reached (fail open:
	// absence of information reads as higher risk, never as a block).
	KnownIP bool
	// LoginAt is the wall-clock time of the attempt.
	LoginAt time.Time
	// CredentialChangedAt is zero when never changed.
	CredentialChangedAt time.Time
	// HighPrivilege is true when the principal holds any configured
	// high-privilege permission.
	HighPrivilege bool
}

// riskScore computes an additive score in [0,1]. Scores alert, never block:
// the trade-off chosen here favors availability of the login path for an
// internal tool over hard risk gating.
func riskScore(cfg RiskConfig, sig RiskSignals) (float64, []string) {
	var (
		score   float64
		reasons []string
	)

	if !sig.KnownIP {
		score += 0.3
		reasons = append(reasons, "unknown_ip")
	}

	hour := sig.LoginAt.Hour()
	if hour < cfg.NormalHoursStart || hour >= cfg.NormalHoursEnd {
		score += 0.2
		reasons = append(reasons, "off_hours")
	}

	if !sig.CredentialChangedAt.IsZero() &&
		sig.LoginAt.Sub(sig.CredentialChangedAt) < cfg.RecentCredentialChangeWindow {
		score += 0.3
		reasons = append(reasons, "recent_credential_change")
	}

	if sig.HighPrivilege {
		score += 0.2
		reasons = append(reasons, "high_privilege")
	}

	if score > 1.0 {
		score = 1.0
	}
	return score, reasons
}
