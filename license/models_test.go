package license

import (
	"testing"
	"time"
)

func TestStatusAt(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		status    Status
		severity  Severity
		days      int
		inGrace   bool
		warning   WarningClass
	}{
		{
			name:      "far from expiry",
			expiresAt: now.Add(200 * 24 * time.Hour),
			status:    StatusActive,
			severity:  SeverityNone,
			days:      200,
		},
		{
			name:      "just inside 30 day window",
			expiresAt: now.Add(29 * 24 * time.Hour),
			status:    StatusExpiring,
			severity:  SeverityInfo,
			days:      29,
			warning:   Warning30Days,
		},
		{
			name:      "inside 14 day window",
			expiresAt: now.Add(10 * 24 * time.Hour),
			status:    StatusExpiring,
			severity:  SeverityWarning,
			days:      10,
			warning:   Warning14Days,
		},
		{
			name:      "inside 7 day window",
			expiresAt: now.Add(5 * 24 * time.Hour),
			status:    StatusExpiring,
			severity:  SeverityWarning,
			days:      5,
			warning:   Warning7Days,
		},
		{
			name:      "last day",
			expiresAt: now.Add(12 * time.Hour),
			status:    StatusExpiring,
			severity:  SeverityCritical,
			days:      0,
			warning:   Warning1Day,
		},
		{
			name:      "expired ten days, in grace",
			expiresAt: now.Add(-10 * 24 * time.Hour),
			status:    StatusGracePeriod,
			severity:  SeverityCritical,
			days:      -10,
			inGrace:   true,
			warning:   WarningLapsed,
		},
		{
			name:      "expired one hour, in grace",
			expiresAt: now.Add(-1 * time.Hour),
			status:    StatusGracePeriod,
			severity:  SeverityCritical,
			days:      -1,
			inGrace:   true,
			warning:   WarningLapsed,
		},
		{
			name:      "expired beyond grace",
			expiresAt: now.Add(-35 * 24 * time.Hour),
			status:    StatusExpired,
			severity:  SeverityCritical,
			days:      -35,
			warning:   WarningLapsed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &License{ExpiresAt: tt.expiresAt}
			got := l.StatusAt(now)

			if got.Status != tt.status {
				t.Errorf("Status: got %s, want %s", got.Status, tt.status)
			}
			if got.Severity != tt.severity {
				t.Errorf("Severity: got %s, want %s", got.Severity, tt.severity)
			}
			if got.DaysRemaining != tt.days {
				t.Errorf("DaysRemaining: got %d, want %d", got.DaysRemaining, tt.days)
			}
			if got.InGrace != tt.inGrace {
				t.Errorf("InGrace: got %v, want %v", got.InGrace, tt.inGrace)
			}
			if got.Warning != tt.warning {
				t.Errorf("Warning: got %q, want %q", got.Warning, tt.warning)
			}
		})
	}
}

func TestStatusAtGraceWindowBoundary(t *testing.T) {
	expires := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := &License{ExpiresAt: expires}

	justInside := expires.Add(GracePeriod - time.Minute)
	if got := l.StatusAt(justInside); got.Status != StatusGracePeriod {
		t.Errorf("just inside grace: got %s, want %s", got.Status, StatusGracePeriod)
	}

	justOutside := expires.Add(GracePeriod + time.Minute)
	if got := l.StatusAt(justOutside); got.Status != StatusExpired {
		t.Errorf("just outside grace: got %s, want %s", got.Status, StatusExpired)
	}
}

func TestAvailableSeats(t *testing.T) {
	l := &License{TotalSeats: 5, UsedSeats: 3}
	if got := l.AvailableSeats(); got != 2 {
		t.Errorf("AvailableSeats: got %d, want 2", got)
	}
}
