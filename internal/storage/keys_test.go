package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	t.Run("default prefix", func(t *testing.T) {
		keys := NewKeys("")
		assert.Equal(t, "dashboard.current_account", keys.CurrentAccount())
	})

	t.Run("custom prefix", func(t *testing.T) {
		keys := NewKeys("staging")

		assert.Equal(t, "staging.current_account", keys.CurrentAccount())
		assert.Equal(t, "staging.acct-1.account_data", keys.AccountData("acct-1"))
		assert.Equal(t, "staging.acct-1.", keys.AccountPrefix("acct-1"))
		assert.Equal(t, "staging.last_refresh_time", keys.LastRefreshTime())
		assert.Equal(t, "staging.last_update_time", keys.LastUpdateTime())
		assert.Equal(t, "staging.auto_update_active_instance", keys.LeaderInstance())
		assert.Equal(t, "staging.auto_update_enabled", keys.AutoUpdateEnabled())
	})
}
