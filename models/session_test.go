package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleOther(t *testing.T) {
	assert.Equal(t, RoleDefender, RoleAttacker.Other())
	assert.Equal(t, RoleAttacker, RoleDefender.Other())
}

func TestRoleOfMatchesConnectionThenIdentity(t *testing.T) {
	sess := NewGameSession("S1", time.Now())
	sess.Attacker = PlayerSlot{ConnectionID: "c1", UserID: "alice", Connected: true}
	sess.Defender = PlayerSlot{UserID: "bob"}

	role, ok := sess.RoleOf("c1", "")
	require.True(t, ok)
	assert.Equal(t, RoleAttacker, role)

	// Bob is disconnected but still resolvable by stable identity.
	role, ok = sess.RoleOf("c-new", "bob")
	require.True(t, ok)
	assert.Equal(t, RoleDefender, role)

	_, ok = sess.RoleOf("unknown", "carol")
	assert.False(t, ok)
}

func TestSnapshotIsDetachedCopy(t *testing.T) {
	sess := NewGameSession("S1", time.Now())
	sess.History = append(sess.History, RoundResult{RoundNumber: 1, ScoreGained: 100, WinnerUserID: "bob"})
	sess.PlayedThemes = append(sess.PlayedThemes, "theme-one")
	budget := Theme{ID: "theme-one", Name: "Theme One", TimeBudgetSec: 30}
	sess.ActiveTheme = &budget

	view := sess.Snapshot()

	// Mutating the snapshot must not leak back into the live record.
	view.History = append(view.History, RoundResult{RoundNumber: 2})
	view.PlayedThemes[0] = "changed"
	view.Theme.Name = "changed"

	assert.Len(t, sess.History, 1)
	assert.Equal(t, "theme-one", sess.PlayedThemes[0])
	assert.Equal(t, "Theme One", sess.ActiveTheme.Name)
}

func TestSnapshotExposesLastResponseTime(t *testing.T) {
	sess := NewGameSession("S1", time.Now())
	assert.Zero(t, sess.Snapshot().ResponseTimeSec)

	sess.History = append(sess.History,
		RoundResult{ResponseTimeSec: 3.5},
		RoundResult{ResponseTimeSec: 7.25},
	)
	assert.Equal(t, 7.25, sess.Snapshot().ResponseTimeSec)
}

func TestWinnerKeyFallsBackToConnection(t *testing.T) {
	r := RoundResult{WinnerUserID: "alice", WinnerConnID: "c1"}
	assert.Equal(t, "alice", r.WinnerKey())

	r = RoundResult{WinnerConnID: "c1"}
	assert.Equal(t, "c1", r.WinnerKey())
}
