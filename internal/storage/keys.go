package storage

import "fmt"

// Keys generates the deterministic, namespaced key scheme used on the
// persistent store. All engine instances for one deployment share a prefix,
// and account-scoped keys embed the account id so that switching accounts
// can never leak one account's data into another's read path.
type Keys struct {
	prefix string
}

// DefaultKeyPrefix is the namespace used when none is configured
const DefaultKeyPrefix = "dashboard"

// NewKeys creates a key scheme under the given namespace prefix
func NewKeys(prefix string) Keys {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return Keys{prefix: prefix}
}

// Prefix returns the namespace prefix
func (k Keys) Prefix() string {
	return k.prefix
}

// CurrentAccount is the key holding the active account id
func (k Keys) CurrentAccount() string {
	return k.prefix + ".current_account"
}

// AccountData is the key holding the JSON-serialized snapshot for an account
func (k Keys) AccountData(accountID string) string {
	return fmt.Sprintf("%s.%s.account_data", k.prefix, accountID)
}

// AccountPrefix is the prefix under which all of one account's keys live
func (k Keys) AccountPrefix(accountID string) string {
	return fmt.Sprintf("%s.%s.", k.prefix, accountID)
}

// LastRefreshTime is the epoch-millisecond staleness marker
func (k Keys) LastRefreshTime() string {
	return k.prefix + ".last_refresh_time"
}

// LastUpdateTime is the epoch-millisecond throttling marker
func (k Keys) LastUpdateTime() string {
	return k.prefix + ".last_update_time"
}

// LeaderInstance is the key holding the current leader's instance claim
func (k Keys) LeaderInstance() string {
	return k.prefix + ".auto_update_active_instance"
}

// AutoUpdateEnabled is the key holding the persisted auto-update toggle
func (k Keys) AutoUpdateEnabled() string {
	return k.prefix + ".auto_update_enabled"
}
